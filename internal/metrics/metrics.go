// Package metrics is a small facade that lets profiling and ingest code
// record counters and histograms without depending on a concrete backend.
//
// The default backend discards everything. CLIs install a real backend
// (see internal/metrics/datadog) with SetBackend and call Flush before exit.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions, e.g. {"op": "classify", "status": "ok"}.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names understood by backends.
const (
	OpTotal             = "civic_op_total"
	OpDurationSeconds   = "civic_op_duration_seconds"
	RowsTotal           = "civic_rows_total"
	HTTPRequestsTotal   = "civic_http_requests_total"
	HTTPErrorsTotal     = "civic_http_errors_total"
	HTTPDurationSeconds = "civic_http_request_duration_seconds"
	HTTPDownloadBytes   = "civic_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process backend. nil restores the no-op one.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

// RecordOp records one completed operation (count + duration) tagged with
// ok/error status.
func RecordOp(op string, started time.Time, err error) {
	l := Labels{"op": op, "status": statusOf(err)}
	b := current()
	b.IncCounter(OpTotal, 1, l)
	b.ObserveHistogram(OpDurationSeconds, time.Since(started).Seconds(), l)
}

// RecordRows adds n to the rows counter for a table (loaded, exported, ...).
func RecordRows(kind, table string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{"kind": kind, "table": table})
}

// RecordHTTP records one HTTP exchange. status 0 means no response was
// received; err != nil also counts as an error.
func RecordHTTP(status int, err error, dur time.Duration, bytes int64) {
	st := "none"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	l := Labels{"status": st}
	b := current()
	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status >= 400 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	b.ObserveHistogram(HTTPDurationSeconds, dur.Seconds(), l)
	if bytes > 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
