// Package track wraps function calls and records their outcome into a
// trackr pipeline or a remote collector. Recording never interferes with
// the wrapped call: enqueue failures are logged and dropped, and panics
// are recorded before resuming their unwind.
package track

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/loykin/trackr/internal/event"
)

// Ingestor receives finished call records. Both the in-process pipeline and
// the remote collector client satisfy it.
type Ingestor interface {
	Enqueue(event.Record) error
}

// Options holds tracker configuration
type Options struct {
	SessionID string
	Logger    *slog.Logger // Optional logger for dropped records
}

// Tracker stamps and forwards records for instrumented calls.
// A nil Tracker is valid and records nothing.
type Tracker struct {
	ing     Ingestor
	session string
	logger  *slog.Logger
}

// New creates a tracker over an ingestor.
func New(ing Ingestor, opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{ing: ing, session: opts.SessionID, logger: opts.Logger}
}

// Do runs fn and records its outcome under name. The error returned is
// fn's own, untouched by recording.
func (t *Tracker) Do(name string, fn func() error, args ...any) error {
	if t == nil || t.ing == nil {
		return fn()
	}
	caller := callerSite(1)
	formatted := event.FormatArgs(args...)
	startedAt := time.Now()
	defer t.recoverPanic(name, formatted, startedAt, event.KindSync, caller)
	err := fn()
	t.emit(name, formatted, resultOf(err), startedAt, time.Since(startedAt), event.KindSync, caller)
	return err
}

// Call runs fn and records its outcome together with the returned value.
func Call[R any](t *Tracker, name string, fn func() (R, error), args ...any) (R, error) {
	if t == nil || t.ing == nil {
		return fn()
	}
	caller := callerSite(1)
	formatted := event.FormatArgs(args...)
	startedAt := time.Now()
	defer t.recoverPanic(name, formatted, startedAt, event.KindSync, caller)
	out, err := fn()
	elapsed := time.Since(startedAt)
	if err != nil {
		t.emit(name, formatted, event.Failure(err), startedAt, elapsed, event.KindSync, caller)
	} else {
		t.emit(name, formatted, event.Success(out), startedAt, elapsed, event.KindSync, caller)
	}
	return out, err
}

// Go runs fn in a new goroutine and records the call as asynchronous.
// The returned channel receives fn's error (or nil) exactly once. A panic
// inside fn is recorded and surfaced on the channel instead of crashing
// the process.
func (t *Tracker) Go(name string, fn func() error, args ...any) <-chan error {
	done := make(chan error, 1)
	if t == nil || t.ing == nil {
		go func() { done <- fn() }()
		return done
	}
	caller := callerSite(1)
	formatted := event.FormatArgs(args...)
	go func() {
		startedAt := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				t.emit(name, formatted, event.Failure(err), startedAt, time.Since(startedAt), event.KindAsync, caller)
				done <- err
			}
		}()
		err := fn()
		t.emit(name, formatted, resultOf(err), startedAt, time.Since(startedAt), event.KindAsync, caller)
		done <- err
	}()
	return done
}

// recoverPanic records a panicking call as a failure and resumes the panic.
func (t *Tracker) recoverPanic(name string, args []string, startedAt time.Time, kind event.Kind, caller string) {
	r := recover()
	if r == nil {
		return
	}
	t.emit(name, args, event.Failure(fmt.Errorf("panic: %v", r)), startedAt, time.Since(startedAt), kind, caller)
	panic(r)
}

func (t *Tracker) emit(name string, args []string, res event.Result, startedAt time.Time, elapsed time.Duration, kind event.Kind, caller string) {
	rec := event.New(name, args, res, startedAt, elapsed)
	rec.Kind = kind
	rec.Caller = caller
	rec.SessionID = t.session
	if err := t.ing.Enqueue(rec); err != nil {
		// Recording must never disturb the instrumented call.
		t.logger.Debug("call record dropped", "function", name, "error", err)
	}
}

func resultOf(err error) event.Result {
	if err != nil {
		return event.Failure(err)
	}
	return event.Success(nil)
}

func callerSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
