package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"gymdesk/internal/adapters/http/perf"
)

// DefaultSlowRequest is the latency above which a request logs at WARN.
const DefaultSlowRequest = 200 * time.Millisecond

// RequestIDHeader carries the per-request id on every timed response.
const RequestIDHeader = "X-Request-Id"

// StatusRecorder counts responses by status code.
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// TimingConfig wires the optional sinks of Timing.
type TimingConfig struct {
	Collector     *perf.Collector // perf dashboard; nil disables
	Statuses      StatusRecorder  // response counter; nil disables
	SlowThreshold time.Duration   // zero means DefaultSlowRequest
}

// statusWriter remembers the status written through it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

var statusWriterPool = sync.Pool{
	New: func() any { return &statusWriter{} },
}

// Timing returns middleware that stamps a request id, logs the request and
// feeds the configured sinks. Scrapes of /metrics pass through untimed.
// POST: the entry is recorded even when the handler panics
func Timing(cfg TimingConfig) func(http.Handler) http.Handler {
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = DefaultSlowRequest
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter, sw.status = w, http.StatusOK
			start := time.Now()
			defer func() {
				elapsed := time.Since(start)
				level := slog.LevelDebug
				msg := "request"
				if elapsed >= slow {
					level, msg = slog.LevelWarn, "slow_request"
				}
				slog.Log(r.Context(), level, msg,
					"request_id", reqID,
					"method", r.Method,
					"path", r.URL.Path,
					"status", sw.status,
					"duration_ms", durationMs(elapsed),
				)

				if cfg.Statuses != nil {
					cfg.Statuses.RecordHTTPStatus(sw.status)
				}
				if cfg.Collector != nil {
					cfg.Collector.Record(perf.Entry{
						Kind:       perf.KindRequest,
						Path:       r.Method + " " + r.URL.Path,
						StatusCode: sw.status,
						DurationMs: durationMs(elapsed),
						Timestamp:  start,
					})
				}

				sw.ResponseWriter = nil
				statusWriterPool.Put(sw)
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
