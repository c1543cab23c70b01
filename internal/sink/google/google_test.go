package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"elsa/internal/sink"
)

func TestTabTitle(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"elsa-transaksi-2025-08-17.csv", "elsa-transaksi-2025-08-17"},
		{"dir/report.csv", "report"},
		{"a'b!c.csv", "ab-c"},
		{".csv", "export"},
		{strings.Repeat("x", 150) + ".csv", strings.Repeat("x", 100)},
	}
	for _, tt := range tests {
		if got := TabTitle(tt.name); got != tt.want {
			t.Errorf("TabTitle(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseRows(t *testing.T) {
	body := "Tanggal,Deskripsi\n\"2025-08-01\",\"nasi \"\"spesial\"\"\"\n\"2025-08-02\",\"legacy \"quote\"\""
	rows, err := ParseRows([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Tanggal" || rows[1][1] != `nasi "spesial"` {
		t.Fatalf("unexpected rows %v", rows)
	}
}

// fakeSheets answers the three Sheets calls the sink makes.
type fakeSheets struct {
	mu      sync.Mutex
	tabs    []string
	added   []string
	cleared int
	written *gsheet.ValueRange
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		ss := gsheet.Spreadsheet{}
		for _, title := range f.tabs {
			ss.Sheets = append(ss.Sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: title}})
		}
		json.NewEncoder(w).Encode(ss)
	case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.added = append(f.added, rq.AddSheet.Properties.Title)
		}
		io.WriteString(w, `{}`)
	case strings.HasSuffix(r.URL.Path, ":clear"):
		f.cleared++
		io.WriteString(w, `{}`)
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.written = &vr
		io.WriteString(w, `{}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestSink(t *testing.T, fake *fakeSheets) *Sink {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("sheets service: %v", err)
	}
	return New(svc, "sheet-1")
}

func TestSinkAddsTabAndWritesRows(t *testing.T) {
	fake := &fakeSheets{}
	s := newTestSink(t, fake)

	body := "Judul,Target\n\"Laptop\",\"1000\""
	err := sink.Deliver(context.Background(), s, sink.File{Name: "elsa-target-tabungan-2025-08-17.csv", ContentType: "text/csv;charset=utf-8"}, []byte(body))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.added) != 1 || fake.added[0] != "elsa-target-tabungan-2025-08-17" {
		t.Fatalf("unexpected tabs added %v", fake.added)
	}
	if fake.written == nil || len(fake.written.Values) != 2 || fake.written.Values[1][0] != "Laptop" {
		t.Fatalf("unexpected values %+v", fake.written)
	}
}

func TestSinkClearsExistingTab(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"report"}}
	s := newTestSink(t, fake)

	if err := sink.Deliver(context.Background(), s, sink.File{Name: "report.csv", ContentType: "text/csv"}, []byte("A\n\"1\"")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.cleared != 1 || len(fake.added) != 0 {
		t.Fatalf("expected clear without add, got cleared=%d added=%v", fake.cleared, fake.added)
	}
}

func TestSinkRejectsXLSX(t *testing.T) {
	s := New(nil, "sheet-1")
	_, err := s.Open(context.Background(), sink.File{Name: "x.xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"})
	if err == nil || !strings.Contains(err.Error(), "csv only") {
		t.Fatalf("expected unsupported content error, got %v", err)
	}
}
