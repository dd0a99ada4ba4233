package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/loykin/trackr/internal/event"
)

// maxLineBytes bounds a single persisted record line when reading back.
const maxLineBytes = 1 << 20

// ReadFile loads records from a JSONL log. Unparseable lines, including a
// trailing partial line left by a crash mid-write, are counted and skipped;
// they never fail the whole read.
func ReadFile(path string) ([]event.Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read is ReadFile over an arbitrary reader.
func Read(r io.Reader) ([]event.Record, int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var recs []event.Record
	skipped := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec event.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return recs, skipped, fmt.Errorf("scan log: %w", err)
	}
	return recs, skipped, nil
}
