package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/trackr/internal/event"
)

// Sink writes call records to ClickHouse using the official Go client. A
// batch of records maps onto one native-protocol insert block.
type Sink struct {
	conn    driver.Conn
	table   string
	skipped atomic.Uint64
}

func New(addr, database, table string) (*Sink, error) {
	if database == "" {
		database = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		seq UInt64,
		event_id String,
		function_name String,
		arguments String,
		success Bool,
		result String,
		error String,
		started_at DateTime64(9),
		execution_ns Int64,
		kind String,
		level String,
		caller String,
		session_id String,
		hostname String,
		pid Int32,
		meta String
	) ENGINE = MergeTree() ORDER BY (started_at, seq)`, s.table)
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Append(ctx context.Context, batch []event.Record) error {
	ins, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s (
		seq, event_id, function_name, arguments, success, result, error,
		started_at, execution_ns, kind, level, caller, session_id,
		hostname, pid, meta)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare ClickHouse batch: %w", err)
	}

	for _, rec := range batch {
		args, meta, err := encodeRow(rec)
		if err != nil {
			s.skipped.Add(1)
			slog.Warn("skipping unencodable record", "function", rec.FuncName, "seq", rec.Seq, "error", err)
			continue
		}
		if err := ins.Append(
			rec.Seq, rec.EventID, rec.FuncName, args, rec.Result.OK(),
			rec.Result.Value(), rec.Result.Err(),
			rec.StartedAt.UTC(), int64(rec.ExecutionTime),
			string(rec.Kind), string(rec.Level), rec.Caller,
			rec.SessionID, rec.Origin.Hostname, int32(rec.Origin.PID), meta,
		); err != nil {
			return fmt.Errorf("failed to append record to ClickHouse batch: %w", err)
		}
	}
	if err := ins.Send(); err != nil {
		return fmt.Errorf("failed to insert batch into ClickHouse: %w", err)
	}
	return nil
}

func (s *Sink) Name() string { return "clickhouse" }

func (s *Sink) Skipped() uint64 { return s.skipped.Load() }

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func encodeRow(rec event.Record) (args, meta string, err error) {
	a, err := json.Marshal(rec.Args)
	if err != nil {
		return "", "", err
	}
	if rec.Meta == nil {
		return string(a), "", nil
	}
	m, err := json.Marshal(rec.Meta)
	if err != nil {
		return "", "", err
	}
	return string(a), string(m), nil
}
