// Package google delivers CSV exports into a Google Sheets spreadsheet,
// one tab per exported file.
package google

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	gsheet "google.golang.org/api/sheets/v4"

	applog "elsa/internal/log"
	"elsa/internal/sink"
)

// maxTitle is the longest tab title Sheets accepts.
const maxTitle = 100

// ErrUnsupportedContent is returned when a non-CSV file is offered.
var ErrUnsupportedContent = errors.New("sheets sink accepts csv only")

// Sink writes each CSV file into a tab named after the file.
type Sink struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *applog.Logger
}

var _ sink.Sink = (*Sink)(nil)

type Option func(*Sink)

func WithLogger(l *applog.Logger) Option {
	return func(s *Sink) { s.logger = l.WithComponent(applog.ComponentSink) }
}

// NewFromEnv creates a Sheets sink from the environment.
// Required: GOOGLE_SPREADSHEET_ID plus either an OAuth client and token
// (GOOGLE_OAUTH_CLIENT_* and GOOGLE_OAUTH_TOKEN_*) or service account
// credentials (GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS).
func NewFromEnv(ctx context.Context, opts ...Option) (*Sink, error) {
	return Dial(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"), opts...)
}

// Dial connects to spreadsheetID with credentials taken from the environment.
func Dial(ctx context.Context, spreadsheetID string, opts ...Option) (*Sink, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	clientOpts, err := clientOptionsFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return New(svc, spreadsheetID, opts...), nil
}

// New wraps an existing service.
func New(svc *gsheet.Service, spreadsheetID string, opts ...Option) *Sink {
	s := &Sink{svc: svc, spreadsheetID: spreadsheetID, logger: applog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func credentialsFromEnv() ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// TabTitle turns a file name into a tab title: extension dropped, characters
// Sheets rejects in ranges replaced, length capped.
func TabTitle(name string) string {
	base := path.Base("/" + name)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("'", "", "!", "-", ":", "-").Replace(base)
	if r := []rune(base); len(r) > maxTitle {
		base = string(r[:maxTitle])
	}
	if strings.TrimSpace(base) == "" {
		base = "export"
	}
	return base
}

// ParseRows reads CSV produced by the exporter. Quotes are read leniently
// so legacy output with unescaped quotes still loads.
func ParseRows(body []byte) ([][]any, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]any
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Sink) Open(ctx context.Context, f sink.File) (io.WriteCloser, error) {
	if !strings.HasPrefix(f.ContentType, "text/csv") {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedContent, f.ContentType)
	}
	return &tab{ctx: ctx, s: s, title: TabTitle(f.Name)}, nil
}

type tab struct {
	ctx    context.Context
	s      *Sink
	title  string
	buf    bytes.Buffer
	closed bool
}

func (t *tab) Write(p []byte) (int, error) {
	if t.closed {
		return 0, os.ErrClosed
	}
	return t.buf.Write(p)
}

func (t *tab) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	rows, err := ParseRows(t.buf.Bytes())
	if err != nil {
		return err
	}
	if err := t.s.ensureTab(t.ctx, t.title); err != nil {
		return err
	}

	rng := fmt.Sprintf("'%s'!A1", t.title)
	vr := &gsheet.ValueRange{Values: rows}
	_, err = t.s.svc.Spreadsheets.Values.Update(t.s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(t.ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet %s: %w", t.title, err)
	}
	t.s.logger.InfoContext(t.ctx, "Export written to sheet",
		"sheet", t.title, applog.FieldRows, len(rows))
	return nil
}

// ensureTab creates the tab, or clears it when a previous export left one
// with the same title.
func (s *Sink) ensureTab(ctx context.Context, title string) error {
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, fmt.Sprintf("'%s'", title), &gsheet.ClearValuesRequest{}).
				Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("clear sheet %s: %w", title, err)
			}
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	return nil
}
