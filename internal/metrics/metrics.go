package metrics

import (
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// API
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests."},
		[]string{"handler", "method", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..~10s
		},
		[]string{"handler", "method"},
	)
	EnqueueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_enqueue_total", Help: "Batch admission results."},
		[]string{"result"}, // ok | dropped | error
	)
	ForwardTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_forward_total", Help: "Jobs forwarded into the send queue."},
		[]string{"priority"},
	)
	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "stream_clients", Help: "Open live-stream connections."},
	)

	// Worker
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "worker_inflight", Help: "In-flight sends in this process."},
	)
	SendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provider_send_total", Help: "Provider send outcomes."},
		[]string{"outcome"}, // sent | error
	)
	SendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provider_send_duration_seconds",
			Help:    "Provider send latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms..~40s
		},
	)

	// Auth
	CodesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_codes_issued_total", Help: "One-time codes issued."},
		[]string{"purpose"},
	)
	CodesVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_codes_verified_total", Help: "Verification attempts."},
		[]string{"purpose", "result"}, // ok | invalid | expired | not_found
	)
)

var registerOnce sync.Once

// MustRegister adds our collectors to the default registry, which already
// carries the Go and process collectors. Safe to call more than once.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests, HTTPDuration, EnqueueTotal, ForwardTotal, StreamClients,
			InFlight, SendTotal, SendDuration,
			CodesIssued, CodesVerified,
		)
	})
}

// PGXPoolStats exports a tiny pgxpool stats gauge set.
type PGXPoolStats struct {
	pool *pgxpool.Pool

	conns          prometheus.Gauge
	idle           prometheus.Gauge
	acquireCount   prometheus.Counter
	acquireLatency prometheus.Counter
}

func NewPGXPoolStats(pool *pgxpool.Pool) *PGXPoolStats {
	m := &PGXPoolStats{
		pool: pool,
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_conns", Help: "Total connections in pool.",
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_idle_conns", Help: "Idle connections in pool.",
		}),
		acquireCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "db_pool_acquires_total", Help: "Total pool acquires.",
		}),
		acquireLatency: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "db_pool_acquire_seconds_total", Help: "Sum of acquire latencies.",
		}),
	}
	prometheus.MustRegister(m.conns, m.idle, m.acquireCount, m.acquireLatency)

	return m
}

func (m *PGXPoolStats) Start(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	for {
		select {
		case <-stop:
			t.Stop()
			return
		case <-t.C:
			s := m.pool.Stat()
			m.conns.Set(float64(s.TotalConns()))
			m.idle.Set(float64(s.IdleConns()))
			m.acquireCount.Add(float64(s.AcquireCount()))
			m.acquireLatency.Add(s.AcquireDuration().Seconds())
		}
	}
}
