package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config carries constant labels for the collectors.
type Config struct {
	ServiceName string
	Environment string
}

const (
	RunOutcomeSuccess   = "success"
	RunOutcomeFailed    = "failed"
	RunOutcomeCancelled = "cancelled"

	CacheEventHit   = "hit"
	CacheEventMiss  = "miss"
	CacheEventError = "error"
	CacheEventWrite = "write"

	FailureReasonDeadlineExceeded = "deadline_exceeded"
	FailureReasonCancelled        = "cancelled"
	FailureReasonDBLockTimeout    = "db_lock_timeout"
	FailureReasonDB               = "db"
	FailureReasonUnknown          = "unknown"
)

// DetectionMetrics captures health signals of detection runs and the result cache.
type DetectionMetrics struct {
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	runFailures    *prometheus.CounterVec
	cacheEvents    *prometheus.CounterVec
	ingestedLines  prometheus.Counter
	skippedRecords prometheus.Counter
	alerts         *prometheus.CounterVec
}

// New registers detection collectors on the default registerer.
func New(cfg Config) *DetectionMetrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer, cfg)
}

func NewWithRegisterer(registerer prometheus.Registerer, cfg Config) *DetectionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "pricewatch"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &DetectionMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricewatch_detection_runs_total",
			Help:        "Detection runs by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pricewatch_detection_run_duration_seconds",
			Help:        "Full detection run latency (ingest, aggregate, detect).",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		}, []string{"mode"}),
		runFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricewatch_detection_run_failures_total",
			Help:        "Failed detection runs by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricewatch_result_cache_events_total",
			Help:        "Result cache lookups and writes.",
			ConstLabels: constLabels,
		}, []string{"event"}),
		ingestedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pricewatch_ingested_lines_total",
			Help:        "Invoice lines pulled from the record source.",
			ConstLabels: constLabels,
		}),
		skippedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pricewatch_skipped_records_total",
			Help:        "Invoice lines skipped for missing identity fields.",
			ConstLabels: constLabels,
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricewatch_alerts_detected_total",
			Help:        "Alerts produced by freshly computed runs.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
	}

	registerer.MustRegister(
		m.runs,
		m.runDuration,
		m.runFailures,
		m.cacheEvents,
		m.ingestedLines,
		m.skippedRecords,
		m.alerts,
	)
	return m
}

func (m *DetectionMetrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *DetectionMetrics) ObserveRunDuration(mode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func (m *DetectionMetrics) IncRunFailure(err error) {
	if m == nil || err == nil {
		return
	}
	m.runFailures.WithLabelValues(ClassifyRunFailure(err)).Inc()
}

func (m *DetectionMetrics) IncCacheEvent(event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(event).Inc()
}

func (m *DetectionMetrics) AddIngested(lines, skipped int) {
	if m == nil {
		return
	}
	m.ingestedLines.Add(float64(lines))
	m.skippedRecords.Add(float64(skipped))
}

func (m *DetectionMetrics) AddAlerts(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alerts.WithLabelValues(kind).Add(float64(count))
}

// ClassifyRunFailure maps run errors to low-cardinality reasons.
func ClassifyRunFailure(err error) string {
	if err == nil {
		return FailureReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureReasonDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return FailureReasonCancelled
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "55P03" {
			return FailureReasonDBLockTimeout
		}
		return FailureReasonDB
	}
	if errors.Is(err, gorm.ErrInvalidDB) || errors.Is(err, gorm.ErrInvalidTransaction) {
		return FailureReasonDB
	}
	return FailureReasonUnknown
}
