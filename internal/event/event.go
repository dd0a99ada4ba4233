package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind tells which producer path created a record.
type Kind string

const (
	KindSync  Kind = "sync"
	KindAsync Kind = "async"
)

// Level classifies a finished call for downstream filtering.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// slowCallThreshold is the latency above which a successful call is
// classified as warn instead of info.
const slowCallThreshold = time.Second

// LevelFor derives the record level from the call outcome and latency.
func LevelFor(res Result, elapsed time.Duration) Level {
	switch {
	case !res.OK():
		return LevelError
	case elapsed > slowCallThreshold:
		return LevelWarn
	default:
		return LevelInfo
	}
}

// Result is the outcome of one instrumented call: either a success value
// representation or a failure description, never both. The zero value is an
// empty failure.
type Result struct {
	ok    bool
	value string
}

// Success builds the success arm from an arbitrary return value.
func Success(v any) Result {
	return Result{ok: true, value: FormatArg(v)}
}

// Failure builds the error arm from the call's error.
func Failure(err error) Result {
	if err == nil {
		return Result{value: "unknown error"}
	}
	return Result{value: err.Error()}
}

// OK reports whether the success arm is set.
func (r Result) OK() bool { return r.ok }

// Value returns the success representation, empty for failures.
func (r Result) Value() string {
	if !r.ok {
		return ""
	}
	return r.value
}

// Err returns the failure description, empty for successes.
func (r Result) Err() string {
	if r.ok {
		return ""
	}
	return r.value
}

func (r Result) String() string {
	if r.ok {
		return "success: " + r.value
	}
	return "error: " + r.value
}

type successArm struct {
	Success string `json:"success"`
}

type errorArm struct {
	Error string `json:"error"`
}

// MarshalJSON encodes exactly one arm, {"success": ...} or {"error": ...}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.ok {
		return json.Marshal(successArm{Success: r.value})
	}
	return json.Marshal(errorArm{Error: r.value})
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var arms struct {
		Success *string `json:"success"`
		Error   *string `json:"error"`
	}
	if err := json.Unmarshal(b, &arms); err != nil {
		return err
	}
	switch {
	case arms.Success != nil && arms.Error == nil:
		*r = Result{ok: true, value: *arms.Success}
	case arms.Error != nil && arms.Success == nil:
		*r = Result{value: *arms.Error}
	default:
		return errors.New("result: exactly one of success or error must be set")
	}
	return nil
}

// Origin identifies the process that produced a record.
type Origin struct {
	Hostname string `json:"hostname,omitempty"`
	PID      int    `json:"pid,omitempty"`
}

var currentOrigin = sync.OnceValue(func() Origin {
	host, _ := os.Hostname()
	return Origin{Hostname: host, PID: os.Getpid()}
})

// CurrentOrigin returns the origin of this process, captured once.
func CurrentOrigin() Origin { return currentOrigin() }

// Record describes one instrumented function invocation. Records are value
// types; once enqueued they are never mutated, ownership just moves from the
// producer through the queue and a batch into a sink.
type Record struct {
	EventID       string         `json:"event_id,omitempty"`
	Seq           uint64         `json:"sequence_id"`
	FuncName      string         `json:"function_name"`
	Args          []string       `json:"arguments"`
	Result        Result         `json:"result"`
	StartedAt     time.Time      `json:"started_at"`
	ExecutionTime time.Duration  `json:"execution_time"`
	Kind          Kind           `json:"kind,omitempty"`
	Level         Level          `json:"level,omitempty"`
	Caller        string         `json:"caller,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Origin        Origin         `json:"origin,omitzero"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// New builds a record for one finished call. Seq stays zero until the queue
// assigns it at enqueue time.
func New(funcName string, args []string, res Result, startedAt time.Time, elapsed time.Duration) Record {
	return Record{
		EventID:       uuid.NewString(),
		FuncName:      funcName,
		Args:          args,
		Result:        res,
		StartedAt:     startedAt,
		ExecutionTime: elapsed,
		Level:         LevelFor(res, elapsed),
		Origin:        CurrentOrigin(),
	}
}

// maxArgLen bounds a single argument representation; longer values are cut
// at a rune boundary.
const maxArgLen = 256

// FormatArg renders one argument in a display-safe form. JSON encoding is
// attempted first so strings stay quoted and structures keep their shape;
// values that cannot be encoded fall back to fmt. Not reversible.
func FormatArg(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return truncateArg(fmt.Sprintf("%v", v))
	}
	return truncateArg(string(b))
}

// FormatArgs renders every argument in order. The result is never nil so the
// wire form is always an array.
func FormatArgs(vs ...any) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, FormatArg(v))
	}
	return out
}

func truncateArg(s string) string {
	if len(s) <= maxArgLen {
		return s
	}
	cut := maxArgLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
