package factory

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSinkFromDSN(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		dsn      string
		wantName string
	}{
		{filepath.Join(dir, "calls.jsonl"), "jsonl:"},
		{"file://" + filepath.Join(dir, "calls2.jsonl"), "jsonl:"},
		{"stdout", "stdout"},
		{"sqlite://" + filepath.Join(dir, "calls.db"), "sqlite"},
		{"opensearch://localhost:9200/calls", "opensearch"},
		{"http://localhost:9313/api/logs", "http:"},
	}
	for _, tc := range cases {
		s, err := NewSinkFromDSN(tc.dsn)
		if err != nil {
			t.Fatalf("NewSinkFromDSN(%q): %v", tc.dsn, err)
		}
		if !strings.HasPrefix(s.Name(), tc.wantName) {
			t.Fatalf("NewSinkFromDSN(%q) picked %q, want prefix %q", tc.dsn, s.Name(), tc.wantName)
		}
		_ = s.Close()
	}
}

func TestNewSinkFromDSNErrors(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if _, err := NewSinkFromDSN("ftp://example.com/logs"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
