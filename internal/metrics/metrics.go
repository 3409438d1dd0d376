package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// VenueRole 区分主备场所。
type VenueRole string

const (
	RolePrimary  VenueRole = "primary"
	RoleFallback VenueRole = "fallback"
)

// Snapshot 为可查询的指标快照，供协作方以结构化形式消费。
type Snapshot struct {
	PrimaryTrades    uint64            `json:"primary_trades"`
	FallbackTrades   uint64            `json:"fallback_trades"`
	TakeProfitHits   uint64            `json:"tp_triggers"`
	StopLossHits     uint64            `json:"sl_triggers"`
	TrailingHits     uint64            `json:"trailing_triggers"`
	FailuresByVenue  map[string]uint64 `json:"submission_failures_by_venue"`
	Submissions      uint64            `json:"submissions"`
	SuccessRate      float64           `json:"success_rate"`
	TotalVolumeQuote float64           `json:"total_volume_quote"`
}

// Metrics 同时维护 Prometheus 指标与内部计数快照。
type Metrics struct {
	registry *prometheus.Registry

	trades      *prometheus.CounterVec
	exits       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	submissions *prometheus.CounterVec
	successRate prometheus.Gauge
	totalVolume prometheus.Gauge

	mu              sync.Mutex
	primaryTrades   uint64
	fallbackTrades  uint64
	exitCounts      map[string]uint64
	failuresByVenue map[string]uint64
	submitted       uint64
	succeeded       uint64
	volume          float64
}

// New 创建并注册全部指标。
func New() *Metrics {
	m := &Metrics{
		registry:        prometheus.NewRegistry(),
		exitCounts:      make(map[string]uint64),
		failuresByVenue: make(map[string]uint64),
	}

	m.trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Successful submissions by venue and role",
		},
		[]string{"venue", "role"},
	)
	m.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_exit_reasons_total",
			Help: "Position exits split by reason",
		},
		[]string{"reason"},
	)
	m.failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_submission_failures_total",
			Help: "Failed execution attempts by venue",
		},
		[]string{"venue"},
	)
	m.submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_submissions_total",
			Help: "Submissions by outcome",
		},
		[]string{"outcome"},
	)
	m.successRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_submission_success_rate",
			Help: "Running submission success rate",
		},
	)
	m.totalVolume = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_total_volume_quote",
			Help: "Cumulative filled volume in quote currency",
		},
	)

	m.registry.MustRegister(m.trades, m.exits, m.failures, m.submissions, m.successRate, m.totalVolume)
	return m
}

// Handler 返回 Prometheus 文本格式的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTrade 记录一次成功提交。
func (m *Metrics) RecordTrade(venueName string, role VenueRole, volumeQuote float64) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(venueName, string(role)).Inc()
	m.submissions.WithLabelValues("success").Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if role == RolePrimary {
		m.primaryTrades++
	} else {
		m.fallbackTrades++
	}
	m.submitted++
	m.succeeded++
	m.volume += volumeQuote
	m.totalVolume.Set(m.volume)
	m.successRate.Set(float64(m.succeeded) / float64(m.submitted))
}

// RecordSubmissionRejected 记录一次最终失败的提交。
func (m *Metrics) RecordSubmissionRejected() {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues("failure").Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted++
	m.successRate.Set(float64(m.succeeded) / float64(m.submitted))
}

// RecordAttemptFailure 记录单个场所的一次失败尝试。
func (m *Metrics) RecordAttemptFailure(venueName string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(venueName).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.failuresByVenue[venueName]++
}

// RecordExit 记录一次持仓退出。
func (m *Metrics) RecordExit(reason string) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(reason).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitCounts[reason]++
}

// Snapshot 返回当前计数的拷贝。
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{FailuresByVenue: map[string]uint64{}}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	failures := make(map[string]uint64, len(m.failuresByVenue))
	for k, v := range m.failuresByVenue {
		failures[k] = v
	}

	rate := 0.0
	if m.submitted > 0 {
		rate = float64(m.succeeded) / float64(m.submitted)
	}

	return Snapshot{
		PrimaryTrades:    m.primaryTrades,
		FallbackTrades:   m.fallbackTrades,
		TakeProfitHits:   m.exitCounts["take_profit"],
		StopLossHits:     m.exitCounts["stop_loss"],
		TrailingHits:     m.exitCounts["trailing_stop"],
		FailuresByVenue:  failures,
		Submissions:      m.submitted,
		SuccessRate:      rate,
		TotalVolumeQuote: m.volume,
	}
}
