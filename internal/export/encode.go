package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" (case-insensitive); "" means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Extension is the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// ContentType is the MIME type sent along with the file.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv;charset=utf-8"
}

// CSVOptions tune CSV serialisation.
type CSVOptions struct {
	// Legacy disables doubling of embedded double quotes, reproducing the
	// historic byte-for-byte output (which is malformed for such values).
	Legacy bool
}

// EncodeCSV writes the header line (labels joined by commas, unquoted)
// followed by one line per row where every field is wrapped in double
// quotes. Lines are separated by "\n" with no trailing newline.
func EncodeCSV(w io.Writer, doc Document, opts CSVOptions) error {
	if len(doc.headers) == 0 {
		return ErrNoHeaders
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(strings.Join(doc.headers, ","))

	for i := range doc.rows {
		bw.WriteByte('\n')
		for j, v := range doc.Values(i) {
			if j > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(quote(v, opts.Legacy))
		}
	}
	return bw.Flush()
}

func quote(v string, legacy bool) string {
	if !legacy {
		v = strings.ReplaceAll(v, `"`, `""`)
	}
	return `"` + v + `"`
}

// sheetName is the worksheet every XLSX export is written to.
const sheetName = "Data"

// EncodeXLSX writes the document into a single worksheet: headers on row 1,
// data from row 2, columns in declared header order.
func EncodeXLSX(w io.Writer, doc Document) error {
	if len(doc.headers) == 0 {
		return ErrNoHeaders
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(doc.headers))
	for i, h := range doc.headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}

	for i := range doc.rows {
		values := doc.Values(i)
		row := make([]any, len(values))
		for j, v := range values {
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Encode dispatches on format.
func Encode(w io.Writer, doc Document, format Format, opts CSVOptions) error {
	switch format {
	case FormatCSV:
		return EncodeCSV(w, doc, opts)
	case FormatXLSX:
		return EncodeXLSX(w, doc)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
