package track

import (
	"fmt"
	"net/http"
	"time"

	"github.com/loykin/trackr/internal/event"
)

// Middleware records one call per request served by next, named after the
// method and path. Responses with a 5xx status and handler panics are
// recorded as failures; panics resume after recording.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t == nil || t.ing == nil {
			next.ServeHTTP(w, r)
			return
		}
		name := r.Method + " " + r.URL.Path
		args := event.FormatArgs(r.RemoteAddr)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		defer t.recoverPanic(name, args, startedAt, event.KindSync, "")
		next.ServeHTTP(sw, r)
		elapsed := time.Since(startedAt)
		if sw.status >= http.StatusInternalServerError {
			t.emit(name, args, event.Failure(fmt.Errorf("status %d", sw.status)), startedAt, elapsed, event.KindSync, "")
		} else {
			t.emit(name, args, event.Success(sw.status), startedAt, elapsed, event.KindSync, "")
		}
	})
}

// statusWriter remembers the last status code written so the outcome can
// be judged after the handler returns.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
