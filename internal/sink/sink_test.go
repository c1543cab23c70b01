package sink

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryDeliver(t *testing.T) {
	m := NewMemory()
	f := File{Name: "a.csv", ContentType: "text/csv"}
	if err := Deliver(context.Background(), m, f, []byte("x,y")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	got, ok := m.Get("a.csv")
	if !ok || string(got) != "x,y" {
		t.Fatalf("unexpected content %q", got)
	}
	if m.ContentType("a.csv") != "text/csv" {
		t.Fatalf("content type not kept")
	}
	if m.Opens() != 1 || m.Outstanding() != 0 {
		t.Fatalf("handle leaked: opens=%d outstanding=%d", m.Opens(), m.Outstanding())
	}
}

func TestDirDeliver(t *testing.T) {
	root := filepath.Join(t.TempDir(), "exports")
	d, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	if err := Deliver(context.Background(), d, File{Name: "../escape.csv"}, []byte("hello")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	b, err := os.ReadFile(d.Path("escape.csv"))
	if err != nil || string(b) != "hello" {
		t.Fatalf("unexpected file: %q err=%v", b, err)
	}

	entries, _ := os.ReadDir(root)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

type failingSink struct{ closed int }

type failingHandle struct{ s *failingSink }

func (f *failingSink) Open(context.Context, File) (io.WriteCloser, error) {
	return failingHandle{s: f}, nil
}
func (h failingHandle) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (h failingHandle) Close() error { h.s.closed++; return nil }

func TestDeliverClosesOnWriteError(t *testing.T) {
	s := &failingSink{}
	err := Deliver(context.Background(), s, File{Name: "x.csv"}, []byte("data"))
	if err == nil {
		t.Fatalf("expected write error")
	}
	if s.closed != 1 {
		t.Fatalf("handle closed %d times, want 1", s.closed)
	}
}
