// Package sink hands finished export files to wherever the user collects them.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File describes a named blob handed to a Sink.
type File struct {
	Name        string
	ContentType string
}

// Sink accepts a named byte stream. The returned handle must be closed by
// the caller exactly once; closing finalises (and releases) the file.
type Sink interface {
	Open(ctx context.Context, f File) (io.WriteCloser, error)
}

// Deliver writes body to a freshly opened handle and always closes it.
func Deliver(ctx context.Context, s Sink, f File, body []byte) (err error) {
	w, err := s.Open(ctx, f)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", f.Name, cerr)
		}
	}()

	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	return nil
}

// Memory keeps delivered files in memory. Used by tests and dry runs.
type Memory struct {
	mu    sync.Mutex
	files map[string][]byte
	types map[string]string
	opens int
	open  int
}

func NewMemory() *Memory {
	return &Memory{files: map[string][]byte{}, types: map[string]string{}}
}

func (m *Memory) Open(_ context.Context, f File) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	m.open++
	return &memoryHandle{m: m, f: f}, nil
}

// Get returns the delivered content for name.
func (m *Memory) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[name]
	return b, ok
}

// ContentType returns the declared content type of a delivered file.
func (m *Memory) ContentType(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[name]
}

// Opens reports how many handles were ever opened.
func (m *Memory) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Outstanding reports handles opened but not yet closed.
func (m *Memory) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

type memoryHandle struct {
	m      *Memory
	f      File
	buf    bytes.Buffer
	closed bool
}

func (h *memoryHandle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	return h.buf.Write(p)
}

func (h *memoryHandle) Close() error {
	if h.closed {
		return os.ErrClosed
	}
	h.closed = true
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	h.m.files[h.f.Name] = append([]byte(nil), h.buf.Bytes()...)
	h.m.types[h.f.Name] = h.f.ContentType
	h.m.open--
	return nil
}

// Dir writes files into a directory. Content goes to a temp file first and is
// renamed into place on Close, so readers never see a partial export.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Open(_ context.Context, f File) (io.WriteCloser, error) {
	name := filepath.Base(f.Name)
	if name == "." || name == string(filepath.Separator) || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("invalid file name %q", f.Name)
	}
	tmp, err := os.CreateTemp(d.root, "."+name+".*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &dirHandle{tmp: tmp, final: filepath.Join(d.root, name)}, nil
}

// Path returns where a file named name ends up.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, filepath.Base(name))
}

type dirHandle struct {
	tmp    *os.File
	final  string
	failed bool
}

func (h *dirHandle) Write(p []byte) (int, error) {
	n, err := h.tmp.Write(p)
	if err != nil {
		h.failed = true
	}
	return n, err
}

func (h *dirHandle) Close() error {
	tmpName := h.tmp.Name()
	if err := h.tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if h.failed {
		return os.Remove(tmpName)
	}
	if err := os.Rename(tmpName, h.final); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
