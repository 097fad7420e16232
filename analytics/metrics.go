package analytics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"leaderboardkit/core"
)

// Metrics exposes leaderboard activity to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Submissions         *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	CorruptRecords      prometheus.Counter
	LeaderboardEntries  prometheus.Gauge
	LowestScore         prometheus.Gauge
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// NewMetrics registers all leaderboard metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboardkit_submissions_total",
			Help: "Score submissions by outcome",
		}, []string{"outcome"}),
		TransactionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leaderboardkit_transaction_duration_seconds",
			Help:    "Duration of score transactions including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 10},
		}, []string{"outcome"}),
		CorruptRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "leaderboardkit_corrupt_records_total",
			Help: "Malformed records seen while reading the leaderboard",
		}),
		LeaderboardEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "leaderboardkit_leaderboard_entries",
			Help: "Entries on the leaderboard at the last observed change",
		}),
		LowestScore: f.NewGauge(prometheus.GaugeOpts{
			Name: "leaderboardkit_leaderboard_lowest_score",
			Help: "Score a submission must reach once the board is full",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboardkit_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leaderboardkit_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// OnEvent implements Hook.
func (m *Metrics) OnEvent(e core.Event) {
	if m == nil {
		return
	}
	switch e.Type {
	case core.EventScoreCommitted, core.EventScoreAborted, core.EventSubmissionFailed:
		outcome := outcomeLabel(e.Type)
		m.Submissions.WithLabelValues(outcome).Inc()
		m.TransactionDuration.WithLabelValues(outcome).Observe(e.Duration.Seconds())
		if e.Leaderboard != nil {
			m.SetLeaderboard(*e.Leaderboard)
		}
	case core.EventLeaderboardChanged:
		if e.Leaderboard != nil {
			m.SetLeaderboard(*e.Leaderboard)
		}
	case core.EventCorruptData:
		m.CorruptRecords.Inc()
	}
}

// SetLeaderboard records the size and entry threshold of lb.
func (m *Metrics) SetLeaderboard(lb core.Leaderboard) {
	if m == nil {
		return
	}
	m.LeaderboardEntries.Set(float64(lb.Len()))
	if lowest, ok := lb.Min(); ok && lb.Full() {
		m.LowestScore.Set(float64(lowest))
	} else {
		m.LowestScore.Set(0)
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func outcomeLabel(t core.EventType) string {
	switch t {
	case core.EventScoreCommitted:
		return string(core.OutcomeCommitted)
	case core.EventScoreAborted:
		return string(core.OutcomeAborted)
	default:
		return string(core.OutcomeFailed)
	}
}
