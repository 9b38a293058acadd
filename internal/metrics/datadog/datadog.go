// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Observations are buffered per series under a mutex. A ticker flushes the
// buffer periodically and Close flushes one last time, so a short CLI run
// submits a single batch at exit while a long `ingest fetch` produces a
// time series.
package datadog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"civicdata/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// Service becomes tag "service:<name>" on every metric.
	// If empty, defaults to "civicdata".
	Service string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "dataset:parcels"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// test seams
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the subset of *datadogV2.MetricsApi the backend needs.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// family maps one metrics name onto a Datadog metric and its tags.
type family struct {
	metric   string
	labels   []string
	required string // observations without this label are dropped
}

var counterFamilies = map[string]family{
	metrics.OpTotal:           {metric: "civic.op.total", labels: []string{"op", "status"}},
	metrics.RowsTotal:         {metric: "civic.rows.total", labels: []string{"kind", "table"}, required: "kind"},
	metrics.HTTPRequestsTotal: {metric: "civic.http.requests.total", labels: []string{"status"}},
	metrics.HTTPErrorsTotal:   {metric: "civic.http.errors.total", labels: []string{"status"}},
}

var histogramFamilies = map[string]family{
	metrics.OpDurationSeconds:   {metric: "civic.op.duration_seconds", labels: []string{"op", "status"}},
	metrics.HTTPDurationSeconds: {metric: "civic.http.request_duration_seconds", labels: []string{"status"}},
	metrics.HTTPDownloadBytes:   {metric: "civic.http.download_bytes", labels: []string{"status"}},
}

// key renders the series key for labels. Missing labels become "unknown".
func (f family) key(l metrics.Labels) (seriesKey, bool) {
	if f.required != "" && l[f.required] == "" {
		return seriesKey{}, false
	}
	tags := make([]string, len(f.labels))
	for i, name := range f.labels {
		v := l[name]
		if v == "" {
			v = "unknown"
		}
		tags[i] = name + ":" + v
	}
	return seriesKey{metric: f.metric, tags: strings.Join(tags, "\x00")}, true
}

type seriesKey struct {
	metric string
	tags   string // NUL-joined
}

func (k seriesKey) tagList(base []string) []string {
	out := make([]string, 0, len(base)+2)
	out = append(out, base...)
	if k.tags != "" {
		out = append(out, strings.Split(k.tags, "\x00")...)
	}
	return out
}

// window is one collection interval's worth of observations.
type window struct {
	counts  map[seriesKey]float64
	samples map[seriesKey][]float64
}

func newWindow() window {
	return window{counts: map[seriesKey]float64{}, samples: map[seriesKey][]float64{}}
}

func (w window) empty() bool { return len(w.counts) == 0 && len(w.samples) == 0 }

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api      metricsSubmitter
	ctx      context.Context
	baseTags []string
	now      func() time.Time

	flushEvery time.Duration
	newTicker  func(d time.Duration) *time.Ticker
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	mu  sync.Mutex
	buf window
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend constructs a Datadog backend using the official client.
// Credentials and site come from DD_API_KEY / DD_SITE via the client's
// default context; DD_ENV, when set, becomes an env tag.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, errors.New("datadog: nil context")
	}

	service := opts.Service
	if service == "" {
		service = "civicdata"
	}
	tags := []string{"service:" + service}
	if env := strings.TrimSpace(os.Getenv("DD_ENV")); env != "" {
		tags = append(tags, "env:"+env)
	}
	tags = append(tags, opts.Tags...)

	b := &Backend{
		api:        opts.submitter,
		ctx:        dd.NewDefaultContext(parent),
		baseTags:   tags,
		now:        opts.now,
		flushEvery: opts.FlushEvery,
		newTicker:  opts.newTicker,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		buf:        newWindow(),
	}
	if b.api == nil {
		b.api = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newTicker == nil {
		b.newTicker = time.NewTicker
	}
	if b.flushEvery <= 0 {
		b.flushEvery = time.Minute
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush.
// Calling Close more than once only flushes again.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names and non-positive
// deltas are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	f, ok := counterFamilies[name]
	if !ok || delta <= 0 {
		return
	}
	k, ok := f.key(labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.buf.counts[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend. Unknown names and negative
// values are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	f, ok := histogramFamilies[name]
	if !ok || value < 0 {
		return
	}
	k, ok := f.key(labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.buf.samples[k] = append(b.buf.samples[k], value)
	b.mu.Unlock()
}

// swap detaches the current window and starts a new one.
func (b *Backend) swap() window {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.buf
	b.buf = newWindow()
	return w
}

// Flush submits buffered metrics and resets the buffer, even when the
// submission fails. Returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	w := b.swap()
	if w.empty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.series(w, b.now().Unix())}
	if _, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters()); err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// series converts a window into Datadog series at one timestamp, ordered
// by metric name then tags.
func (b *Backend) series(w window, ts int64) []datadogV2.MetricSeries {
	var out []datadogV2.MetricSeries

	for _, k := range sortedKeys(w.counts) {
		out = append(out, point(k.metric, datadogV2.METRICINTAKETYPE_COUNT, w.counts[k], k.tagList(b.baseTags), ts))
	}
	for _, k := range sortedKeys(w.samples) {
		out = append(out, percentiles(k.metric, k.tagList(b.baseTags), w.samples[k], ts)...)
	}
	return out
}

func sortedKeys[V any](m map[seriesKey]V) []seriesKey {
	keys := make([]seriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].tags < keys[j].tags
	})
	return keys
}

// percentiles summarises samples as p50/p90/p95/p99/max/samples gauges.
// samples is not modified.
func percentiles(metric string, tags []string, samples []float64, ts int64) []datadogV2.MetricSeries {
	if len(samples) == 0 {
		return nil
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	gauge := func(suffix string, v float64) datadogV2.MetricSeries {
		return point(metric+"."+suffix, datadogV2.METRICINTAKETYPE_GAUGE, v, tags, ts)
	}
	return []datadogV2.MetricSeries{
		gauge("p50", nearestRank(sorted, 0.50)),
		gauge("p90", nearestRank(sorted, 0.90)),
		gauge("p95", nearestRank(sorted, 0.95)),
		gauge("p99", nearestRank(sorted, 0.99)),
		gauge("max", sorted[len(sorted)-1]),
		gauge("samples", float64(len(sorted))),
	}
}

func point(metric string, typ datadogV2.MetricIntakeType, v float64, tags []string, ts int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(ts), Value: dd.PtrFloat64(v)}},
		Tags:   tags,
	}
}

// nearestRank picks the p-quantile of an ascending slice, rounding the
// rank to the nearest index.
func nearestRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}
	return sorted[min(int(p*float64(n-1)+0.5), n-1)]
}

// ParseTagsCSV parses comma-separated tags like "env:prod,dataset:parcels".
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
