package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/loykin/trackr/internal/event"
)

// Sink writes call records to a SQLite database. Each batch is inserted in
// one transaction so an append is all-or-nothing.
type Sink struct {
	db      *sql.DB
	skipped atomic.Uint64
}

// New creates a SQLite sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS function_calls(
		seq INTEGER NOT NULL,
		event_id TEXT,
		function_name TEXT NOT NULL,
		arguments TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		result TEXT,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		execution_ns INTEGER NOT NULL,
		kind TEXT,
		level TEXT,
		caller TEXT,
		session_id TEXT,
		hostname TEXT,
		pid INTEGER,
		meta TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_function_calls_name ON function_calls(function_name);
	CREATE INDEX IF NOT EXISTS idx_function_calls_started ON function_calls(started_at);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Append(ctx context.Context, batch []event.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO function_calls(
			seq, event_id, function_name, arguments, success, result, error,
			started_at, execution_ns, kind, level, caller, session_id,
			hostname, pid, meta)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range batch {
		args, meta, err := encodeRow(rec)
		if err != nil {
			s.skipped.Add(1)
			slog.Warn("skipping unencodable record", "function", rec.FuncName, "seq", rec.Seq, "error", err)
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			rec.Seq, rec.EventID, rec.FuncName, args, rec.Result.OK(),
			nullable(rec.Result.Value()), nullable(rec.Result.Err()),
			rec.StartedAt.UTC(), int64(rec.ExecutionTime),
			string(rec.Kind), string(rec.Level), nullable(rec.Caller),
			nullable(rec.SessionID), rec.Origin.Hostname, rec.Origin.PID, meta,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Sink) Name() string { return "sqlite" }

func (s *Sink) Skipped() uint64 { return s.skipped.Load() }

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func encodeRow(rec event.Record) (args string, meta any, err error) {
	a, err := json.Marshal(rec.Args)
	if err != nil {
		return "", nil, err
	}
	if rec.Meta == nil {
		return string(a), nil, nil
	}
	m, err := json.Marshal(rec.Meta)
	if err != nil {
		return "", nil, err
	}
	return string(a), string(m), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
