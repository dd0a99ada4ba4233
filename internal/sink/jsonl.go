package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/loykin/trackr/internal/event"
)

// JSONL appends records to a file, one JSON object per line. The file is
// opened with O_APPEND and each batch goes out in a single Write call, so a
// reader never observes a batch half-written by this process.
type JSONL struct {
	path    string
	f       *os.File
	skipped atomic.Uint64
}

// NewJSONL opens (creating if needed) the log file at path. Parent
// directories are created.
func NewJSONL(path string) (*JSONL, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &JSONL{path: path, f: f}, nil
}

func (s *JSONL) Append(_ context.Context, batch []event.Record) error {
	buf := encodeLines(batch, &s.skipped)
	if buf.Len() == 0 {
		return nil
	}
	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONL) Name() string { return "jsonl:" + s.path }

// Skipped reports how many records were dropped because they could not be
// encoded.
func (s *JSONL) Skipped() uint64 { return s.skipped.Load() }

func (s *JSONL) Close() error { return s.f.Close() }

// Writer is the JSONL encoder over an arbitrary io.Writer: stdout, a test
// buffer. It does not own the writer and Close is a no-op.
type Writer struct {
	w       io.Writer
	name    string
	skipped atomic.Uint64
}

func NewWriter(w io.Writer, name string) *Writer {
	return &Writer{w: w, name: name}
}

func (s *Writer) Append(_ context.Context, batch []event.Record) error {
	buf := encodeLines(batch, &s.skipped)
	if buf.Len() == 0 {
		return nil
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append %s: %w", s.name, err)
	}
	return nil
}

func (s *Writer) Name() string { return s.name }

func (s *Writer) Skipped() uint64 { return s.skipped.Load() }

func (s *Writer) Close() error { return nil }

// encodeLines renders each record as one line. A record that fails to
// encode is logged and counted, the rest still go out.
func encodeLines(batch []event.Record, skipped *atomic.Uint64) *bytes.Buffer {
	var buf bytes.Buffer
	for _, rec := range batch {
		b, err := json.Marshal(rec)
		if err != nil {
			skipped.Add(1)
			slog.Warn("skipping unencodable record", "function", rec.FuncName, "seq", rec.Seq, "error", err)
			continue
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return &buf
}
