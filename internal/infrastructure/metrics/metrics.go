package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Posting metrics
	EntriesPosted   prometheus.Counter
	EntriesVoided   prometheus.Counter
	EntriesReversed prometheus.Counter
	PostingDuration prometheus.Histogram
	PostedAmount    prometheus.Histogram
	PostingErrors   *prometheus.CounterVec

	// Balance metrics
	BalanceRecomputations prometheus.Counter

	// Audit chain metrics
	AuditAppends       prometheus.Counter
	AuditCheckpoints   prometheus.Counter
	AuditVerifications *prometheus.CounterVec

	// Books close metrics
	BooksCloseRuns     *prometheus.CounterVec
	BooksCloseDuration prometheus.Histogram
	AnomaliesDetected  *prometheus.CounterVec
	AnomaliesResolved  *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Outbox metrics
	EventsPublished prometheus.Counter
	PublishErrors   prometheus.Counter
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Posting metrics
		EntriesPosted: f.NewCounter(prometheus.CounterOpts{
			Name: "tripleledger_entries_posted_total",
			Help: "Total number of journal entries posted",
		}),
		EntriesVoided: f.NewCounter(prometheus.CounterOpts{
			Name: "tripleledger_entries_voided_total",
			Help: "Total number of journal entries voided",
		}),
		EntriesReversed: f.NewCounter(prometheus.CounterOpts{
			Name: "tripleledger_entries_reversed_total",
			Help: "Total number of journal entries reversed",
		}),
		PostingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripleledger_posting_duration_seconds",
			Help:    "Duration of posting operations",
			Buckets: prometheus.DefBuckets,
		}),
		PostedAmount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripleledger_posted_amount",
			Help:    "Total debit of posted entries in base currency",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		PostingErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripleledger_posting_errors_total",
				Help: "Total number of posting errors by kind",
			},
			[]string{"error_type"},
		),

		BalanceRecomputations: f.NewCounter(prometheus.CounterOpts{
			Name: "tripleledger_balance_recomputations_total",
			Help: "Total number of account balance recomputations",
		}),

		// Audit chain metrics
		AuditAppends: f.NewCounter(prometheus.CounterOpts{
			Name: "tripleledger_audit_appends_total",
			Help: "Total audit records appended to the chain",
		}),
		AuditCheckpoints: f.NewCounter(prometheus.CounterOpts{
			Name: "tripleledger_audit_checkpoints_total",
			Help: "Total audit checkpoints written",
		}),
		AuditVerifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripleledger_audit_verifications_total",
				Help: "Audit chain verifications by result",
			},
			[]string{"result"},
		),

		// Books close metrics
		BooksCloseRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripleledger_books_close_runs_total",
				Help: "Books close runs by final status",
			},
			[]string{"status"},
		),
		BooksCloseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripleledger_books_close_duration_seconds",
			Help:    "Duration of books close runs",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		AnomaliesDetected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripleledger_anomalies_detected_total",
				Help: "Anomalies detected by type and severity",
			},
			[]string{"type", "severity"},
		),
		AnomaliesResolved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripleledger_anomalies_resolved_total",
				Help: "Anomaly review transitions by target status",
			},
			[]string{"status"},
		),

		// API metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripleledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tripleledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Rate limiting metrics
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripleledger_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),

		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "tripleledger_outbox_events_published_total",
			Help: "Total outbox events published",
		}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "tripleledger_outbox_publish_errors_total",
			Help: "Total outbox publish failures",
		}),
	}
}
