package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"elsa/internal/sink"
)

type putRecorder struct {
	mu          sync.Mutex
	path        string
	body        string
	contentType string
}

func (p *putRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	if r.Method == http.MethodPut {
		p.path = r.URL.Path
		p.body = string(b)
		p.contentType = r.Header.Get("Content-Type")
	}
	p.mu.Unlock()
	w.Header().Set("ETag", `"abc"`)
	w.WriteHeader(http.StatusOK)
}

func TestSinkUploadsOnClose(t *testing.T) {
	rec := &putRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s, err := New(context.Background(), Config{
		Endpoint:     srv.URL,
		Bucket:       "exports",
		Prefix:       "/elsa/",
		AccessKey:    "key",
		SecretKey:    "secret",
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	body := "Judul,Target\n\"Laptop\",\"1000\""
	err = sink.Deliver(context.Background(), s, sink.File{Name: "elsa-target-tabungan-2025-08-17.csv", ContentType: "text/csv;charset=utf-8"}, []byte(body))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.path != "/exports/elsa/elsa-target-tabungan-2025-08-17.csv" {
		t.Fatalf("unexpected object path %q", rec.path)
	}
	if rec.body != body {
		t.Fatalf("unexpected body %q", rec.body)
	}
	if rec.contentType != "text/csv;charset=utf-8" {
		t.Fatalf("unexpected content type %q", rec.contentType)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := (Config{Bucket: "b", AccessKey: "a", SecretKey: "s"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKey(t *testing.T) {
	s := NewWithClient(nil, "b", "", nil...)
	if got := s.Key("../x.csv"); got != "x.csv" {
		t.Fatalf("Key() = %q", got)
	}
	s = NewWithClient(nil, "b", "exports/", nil...)
	if got := s.Key("x.csv"); got != "exports/x.csv" {
		t.Fatalf("Key() = %q", got)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		ssl    bool
		expect string
	}{
		{"", false, ""},
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.local", true, "https://minio.local"},
		{"https://s3.example.com", false, "https://s3.example.com"},
	}
	for _, tt := range tests {
		got, err := normalizeEndpoint(tt.in, tt.ssl)
		if err != nil || got != tt.expect {
			t.Fatalf("normalizeEndpoint(%q) = %q, %v", tt.in, got, err)
		}
	}
}
