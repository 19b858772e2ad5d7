// Package metrics provides Prometheus metrics for receipt splitting sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Receipt sources
const (
	SourceScan  = "scan"
	SourceLines = "lines"
)

// Assignment modes
const (
	ModeWhole = "whole"
	ModeSplit = "split"
)

// Scan outcomes
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// scanBuckets are in seconds; vision models take anywhere from one second
// on a hosted API to over a minute on CPU.
var scanBuckets = []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120}

// Recorder records session activity. A nil *Recorder is valid and records
// nothing, so callers never need to check whether metrics are enabled.
type Recorder struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	sessionsCreated  prometheus.Counter
	sessionsExpired  prometheus.Counter
	sessionsActive   prometheus.Gauge
	receiptsIngested *prometheus.CounterVec
	itemsIngested    prometheus.Counter
	linesDropped     prometheus.Counter
	assignments      *prometheus.CounterVec
	assignmentErrors *prometheus.CounterVec
	summaries        prometheus.Counter
	scanDuration     *prometheus.HistogramVec
}

// New creates a Recorder and registers its metrics.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace:        "receipt_splitter",
		subsystem:        "",
		histogramBuckets: scanBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.initializeMetrics()
	return r
}

func (r *Recorder) initializeMetrics() {
	auto := promauto.With(r.registry)

	r.sessionsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "sessions_created_total",
		Help:      "Total number of split sessions created",
	})

	r.sessionsExpired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "sessions_expired_total",
		Help:      "Total number of idle sessions removed by the sweeper",
	})

	r.sessionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "sessions_active",
		Help:      "Number of sessions currently held in memory",
	})

	r.receiptsIngested = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      "receipts_ingested_total",
			Help:      "Total number of receipts ingested by source",
		},
		[]string{"source"},
	)

	r.itemsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "items_ingested_total",
		Help:      "Total number of distinct items produced by normalization",
	})

	r.linesDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "lines_dropped_total",
		Help:      "Total number of invalid receipt lines dropped during lenient ingest",
	})

	r.assignments = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      "assignments_total",
			Help:      "Total number of units assigned by mode",
		},
		[]string{"mode"},
	)

	r.assignmentErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      "assignment_errors_total",
			Help:      "Total number of rejected assignments by reason",
		},
		[]string{"reason"},
	)

	r.summaries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "summaries_total",
		Help:      "Total number of bill summaries produced",
	})

	r.scanDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      "scan_duration_seconds",
			Help:      "Time spent extracting line items from a receipt image",
			Buckets:   r.histogramBuckets,
		},
		[]string{"outcome"},
	)
}

// SessionCreated records a new session.
func (r *Recorder) SessionCreated() {
	if r == nil {
		return
	}
	r.sessionsCreated.Inc()
	r.sessionsActive.Inc()
}

// SessionDeleted records a session removed by a client.
func (r *Recorder) SessionDeleted() {
	if r == nil {
		return
	}
	r.sessionsActive.Dec()
}

// SessionsExpired records n sessions removed by the sweeper.
func (r *Recorder) SessionsExpired(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.sessionsExpired.Add(float64(n))
	r.sessionsActive.Sub(float64(n))
}

// ReceiptIngested records an accepted receipt, the distinct items it
// produced and the lines dropped on the way.
func (r *Recorder) ReceiptIngested(source string, items, dropped int) {
	if r == nil {
		return
	}
	r.receiptsIngested.WithLabelValues(source).Inc()
	r.itemsIngested.Add(float64(items))
	if dropped > 0 {
		r.linesDropped.Add(float64(dropped))
	}
}

// ScanObserved records how long a scan took.
func (r *Recorder) ScanObserved(d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.scanDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Assigned records a successful assignment.
func (r *Recorder) Assigned(split bool) {
	if r == nil {
		return
	}
	mode := ModeWhole
	if split {
		mode = ModeSplit
	}
	r.assignments.WithLabelValues(mode).Inc()
}

// AssignmentRejected records a rejected assignment with a short reason.
func (r *Recorder) AssignmentRejected(reason string) {
	if r == nil {
		return
	}
	r.assignmentErrors.WithLabelValues(reason).Inc()
}

// SummaryProduced records a bill summary.
func (r *Recorder) SummaryProduced() {
	if r == nil {
		return
	}
	r.summaries.Inc()
}
