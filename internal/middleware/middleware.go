package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"sbvc/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// recorder remembers what the handler sent so the access log and the panic
// handler can see it.
type recorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rec *recorder) WriteHeader(status int) {
	if rec.status == 0 {
		rec.status = status
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *recorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.written += int64(n)
	return n, err
}

func (rec *recorder) started() bool { return rec.status != 0 }

func (rec *recorder) code() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

func wrap(w http.ResponseWriter) *recorder {
	if rec, ok := w.(*recorder); ok {
		return rec
	}
	return &recorder{ResponseWriter: w}
}

type Middleware func(http.Handler) http.Handler

// Chain applies middlewares in order, so the last one listed sees the
// request first.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}

// RequestID stores an id in the request context and echoes it back. A
// caller-supplied id is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// Logger writes one access line per request.
func Logger(logger *logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			begin := time.Now()
			rec := wrap(w)
			next.ServeHTTP(rec, r)

			l := logger.WithRequestID(r.Context())
			write := l.Info
			if rec.code() >= http.StatusInternalServerError {
				write = l.Warn
			}
			write("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.code()),
				zap.Int64("bytes", rec.written),
				zap.Duration("elapsed", time.Since(begin)),
			)
		})
	}
}

// Recover turns a handler panic into a 500 with the same JSON error body the
// API uses. Nothing is written when the handler already started a response.
func Recover(logger *logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := wrap(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.WithRequestID(r.Context()).Error("handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", v),
					zap.Stack("stack"),
				)
				if rec.started() {
					return
				}
				rec.Header().Set("Content-Type", "application/json")
				rec.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(rec).Encode(map[string]string{
					"error": http.StatusText(http.StatusInternalServerError),
				})
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
