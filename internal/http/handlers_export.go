package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"elsa/internal/core"
	"elsa/internal/export"
	applog "elsa/internal/log"
	"elsa/internal/services"
	"elsa/internal/sink"
)

// downloadSink streams a single export into the HTTP response as an
// attachment.
type downloadSink struct {
	w      http.ResponseWriter
	opened bool
}

func (d *downloadSink) Open(_ context.Context, f sink.File) (io.WriteCloser, error) {
	if d.opened {
		return nil, errors.New("download already started")
	}
	d.opened = true
	h := d.w.Header()
	h.Set("Content-Type", f.ContentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	d.w.WriteHeader(http.StatusOK)
	return nopCloser{d.w}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type exportRequest struct {
	kind   services.ExportKind
	format export.Format
}

func parseExportRequest(r *http.Request) (exportRequest, *ResponseBuilder) {
	kind, err := services.ParseExportKind(r.PathValue("kind"))
	if err != nil {
		return exportRequest{}, NotFoundError(msgNotFound)
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return exportRequest{}, BadRequestError(err.Error())
	}
	return exportRequest{kind: kind, format: format}, nil
}

// handleExportDownload sends the export as a file download. Nothing is
// written before the file is ready, so failures still get a JSON error.
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request, owner string) {
	req, errResp := parseExportRequest(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	dst := &downloadSink{w: w}
	_, err := s.deps.Exports.Export(r.Context(), dst, owner, req.kind, req.format)
	if err == nil {
		return
	}
	if dst.opened {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Export failed mid-download",
			applog.FieldOwner, owner, applog.FieldError, err)
		return
	}
	s.exportError(w, r, owner, err)
}

type archiveResult struct {
	Filename string `json:"filename"`
	Format   string `json:"format"`
	Rows     int    `json:"rows"`
	Bytes    int    `json:"bytes"`
}

// handleExportArchive delivers the export to the configured destination
// (directory, bucket or spreadsheet).
func (s *Server) handleExportArchive(w http.ResponseWriter, r *http.Request, owner string) {
	if s.deps.Archive == nil {
		NotFoundError(msgNotFound).Write(w)
		return
	}
	req, errResp := parseExportRequest(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	res, err := s.deps.Exports.Export(r.Context(), s.deps.Archive, owner, req.kind, req.format)
	if err != nil {
		s.exportError(w, r, owner, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(archiveResult{
		Filename: res.Filename,
		Format:   string(res.Format),
		Rows:     res.Rows,
		Bytes:    res.Bytes,
	}).Write(w)
}

func (s *Server) exportError(w http.ResponseWriter, r *http.Request, owner string, err error) {
	switch {
	case errors.Is(err, export.ErrEmptyDataset):
		NotFoundError(msgNothingToExport).Write(w)
	case errors.Is(err, core.ErrEmptyOwner):
		UnauthorizedError().Write(w)
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
			"Export failed", err, applog.ComponentExport, applog.OpExport,
			applog.NewFields().WithOwner(owner))
		InternalServerError().Write(w)
	}
}
