// Package export turns in-memory record collections into downloadable
// tabular files.
//
// A record is first projected into a Row keyed by data keys. Each data key
// is derived from its human-readable header label (see DeriveKey). Rows are
// then serialised in declared header order, never in map order.
package export

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyDataset is returned when an export is requested over zero records.
	ErrEmptyDataset = errors.New("no data to export")
	// ErrNoHeaders is returned when a document declares no columns.
	ErrNoHeaders = errors.New("export requires at least one header")
)

// Row maps data keys to stringified values for one record.
type Row map[string]string

// Document is an ordered set of rows plus the authoritative column order.
// It is not mutated after construction.
type Document struct {
	headers []string
	rows    []Row
}

// DeriveKey turns a header label into its row data key: lower-cased, with
// every space replaced by an underscore ("Jatuh Tempo" -> "jatuh_tempo").
func DeriveKey(header string) string {
	return strings.ReplaceAll(strings.ToLower(header), " ", "_")
}

// NewDocument builds a document. Headers must be non-empty; rows may be empty.
func NewDocument(headers []string, rows []Row) (Document, error) {
	if len(headers) == 0 {
		return Document{}, ErrNoHeaders
	}
	return Document{
		headers: append([]string(nil), headers...),
		rows:    append([]Row(nil), rows...),
	}, nil
}

// Project applies fieldMap to each record in order.
func Project[T any](records []T, fieldMap func(T) Row) []Row {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, fieldMap(r))
	}
	return rows
}

// Headers returns a copy of the declared header labels.
func (d Document) Headers() []string {
	return append([]string(nil), d.headers...)
}

// Len is the number of data rows.
func (d Document) Len() int {
	return len(d.rows)
}

// IsEmpty reports whether the document has no data rows.
func (d Document) IsEmpty() bool {
	return len(d.rows) == 0
}

// Values returns row i as a positional slice following the header order.
// Keys absent from the row yield "".
func (d Document) Values(i int) []string {
	row := d.rows[i]
	out := make([]string, len(d.headers))
	for j, h := range d.headers {
		out[j] = row[DeriveKey(h)]
	}
	return out
}

// MissingKeys lists header-derived keys that row i does not provide.
func (d Document) MissingKeys(i int) []string {
	var missing []string
	for _, h := range d.headers {
		if _, ok := d.rows[i][DeriveKey(h)]; !ok {
			missing = append(missing, DeriveKey(h))
		}
	}
	return missing
}
