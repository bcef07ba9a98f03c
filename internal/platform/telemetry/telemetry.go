// Package telemetry records request and appointment lifecycle metrics and
// serves them in the Prometheus text exposition format.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medappt/scheduler/internal/platform/apperr"
	"github.com/medappt/scheduler/internal/platform/db"
	"github.com/medappt/scheduler/internal/platform/notification"
)

// DurationBuckets are the request latency bucket boundaries in seconds.
var DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// histogram keeps non-cumulative bucket counts; export accumulates them.
type histogram struct {
	boundaries []float64
	mu         sync.Mutex
	buckets    []int64
	count      int64
	sum        uint64 // math.Float64bits
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{boundaries: boundaries, buckets: make([]int64, len(boundaries))}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		if atomic.CompareAndSwapUint64(&h.sum, old, math.Float64bits(math.Float64frombits(old)+v)) {
			break
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.buckets[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulative() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.buckets))
	var running int64
	for i, c := range h.buckets {
		running += c
		out[i] = running
	}
	return out
}

// requestKey labels one request series.
type requestKey struct {
	Method string
	Route  string
	Status string
}

// Metrics is the process-wide registry.
type Metrics struct {
	mu       sync.RWMutex
	requests map[requestKey]*histogram
	events   map[notification.Kind]*int64
	active   int64

	poolStats func() *db.PoolStats
}

func New() *Metrics {
	return &Metrics{
		requests: make(map[requestKey]*histogram),
		events:   make(map[notification.Kind]*int64),
	}
}

// WatchPool exposes connection pool gauges taken from stats at scrape time.
func (m *Metrics) WatchPool(stats func() *db.PoolStats) {
	m.mu.Lock()
	m.poolStats = stats
	m.mu.Unlock()
}

func (m *Metrics) observeRequest(k requestKey, seconds float64) {
	m.mu.RLock()
	h, ok := m.requests[k]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if h, ok = m.requests[k]; !ok {
			h = newHistogram(DurationBuckets)
			m.requests[k] = h
		}
		m.mu.Unlock()
	}
	h.Observe(seconds)
}

// RequestCount returns the number of observed requests for one series.
func (m *Metrics) RequestCount(method, route string, status int) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.requests[requestKey{method, route, strconv.Itoa(status)}]
	if !ok {
		return 0
	}
	return h.Count()
}

func (m *Metrics) ActiveRequests() int64 { return atomic.LoadInt64(&m.active) }

// Middleware times every request under its route pattern so path parameters
// do not explode the label space.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			defer atomic.AddInt64(&m.active, -1)
			start := time.Now()

			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.observeRequest(requestKey{
				Method: c.Request().Method,
				Route:  route,
				Status: strconv.Itoa(statusOf(c, err)),
			}, time.Since(start).Seconds())
			return err
		}
	}
}

// statusOf is the status the error handler will write for err.
func statusOf(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.ToHTTP(err).Code
}

func (*Metrics) Name() string { return "metrics" }

// Send counts a delivered lifecycle event. It lets the notification
// dispatcher feed the registry like any other channel.
func (m *Metrics) Send(_ context.Context, msg notification.Message) error {
	kind := msg.Event.Kind
	m.mu.RLock()
	p, ok := m.events[kind]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if p, ok = m.events[kind]; !ok {
			p = new(int64)
			m.events[kind] = p
		}
		m.mu.Unlock()
	}
	atomic.AddInt64(p, 1)
	return nil
}

func (m *Metrics) EventCount(kind notification.Kind) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.events[kind]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, m.Render())
	}
}

// Render writes every series in the text exposition format. Series are
// sorted so scrapes are stable.
func (m *Metrics) Render() string {
	m.mu.RLock()
	keys := make([]requestKey, 0, len(m.requests))
	for k := range m.requests {
		keys = append(keys, k)
	}
	kinds := make([]notification.Kind, 0, len(m.events))
	for k := range m.events {
		kinds = append(kinds, k)
	}
	poolStats := m.poolStats
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Route != b.Route {
			return a.Route < b.Route
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Status < b.Status
	})
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var b strings.Builder

	b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
	b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
	for _, k := range keys {
		m.mu.RLock()
		h := m.requests[k]
		m.mu.RUnlock()
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", k.Method, k.Route, k.Status)
		writeHistogram(&b, "http_server_request_duration_seconds", labels, h)
	}
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
	b.WriteString("# TYPE http_server_active_requests gauge\n")
	fmt.Fprintf(&b, "http_server_active_requests %d\n\n", m.ActiveRequests())

	b.WriteString("# HELP appointment_events_total Appointment lifecycle events by kind.\n")
	b.WriteString("# TYPE appointment_events_total counter\n")
	for _, k := range kinds {
		fmt.Fprintf(&b, "appointment_events_total{kind=%q} %d\n", string(k), m.EventCount(k))
	}
	b.WriteByte('\n')

	if poolStats != nil {
		if s := poolStats(); s != nil {
			writeGauge(&b, "db_pool_acquired_connections", "Connections currently checked out.", int64(s.AcquiredConns))
			writeGauge(&b, "db_pool_idle_connections", "Idle pool connections.", int64(s.IdleConns))
			writeGauge(&b, "db_pool_max_connections", "Configured pool size.", int64(s.MaxConns))
			writeGauge(&b, "db_pool_empty_acquires", "Acquires that had to wait for a connection.", s.EmptyAcquires)
		}
	}
	return b.String()
}

func writeGauge(b *strings.Builder, name, help string, v int64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulative()
	total := h.Count()
	for i, le := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, le, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, total)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, total)
}
