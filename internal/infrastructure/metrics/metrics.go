package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity gates and registration flow.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Gate outcomes by gate name and outcome ("accept", "reject", "error")
	GateOutcome *prometheus.CounterVec

	// Registration outcomes by result code
	RegistrationOutcome *prometheus.CounterVec

	// Tesseract invocation latency by pass
	OCRLatency *prometheus.HistogramVec

	// Documents queued for deferred deletion
	CleanupQueued prometheus.Counter
}

// New registers all metrics on reg. Pass prometheus.DefaultRegisterer in main.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GateOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idv_gate_outcomes_total",
			Help: "Identity gate outcomes by gate and outcome",
		}, []string{"gate", "outcome"}),

		RegistrationOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idv_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),

		OCRLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idv_ocr_duration_seconds",
			Help:    "Duration of OCR engine passes",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"pass"}),

		CleanupQueued: f.NewCounter(prometheus.CounterOpts{
			Name: "idv_document_cleanup_queued_total",
			Help: "Stored documents whose deletion was deferred to the task queue",
		}),
	}
}

// IncrementGate records one gate outcome.
func (m *Metrics) IncrementGate(gate, outcome string) {
	if m != nil {
		m.GateOutcome.WithLabelValues(gate, outcome).Inc()
	}
}

// IncrementRegistration records one registration outcome.
func (m *Metrics) IncrementRegistration(outcome string) {
	if m != nil {
		m.RegistrationOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveOCR records the duration of one engine pass.
func (m *Metrics) ObserveOCR(pass string, d time.Duration) {
	if m != nil {
		m.OCRLatency.WithLabelValues(pass).Observe(d.Seconds())
	}
}

// IncrementCleanupQueued records a deferred document deletion.
func (m *Metrics) IncrementCleanupQueued() {
	if m != nil {
		m.CleanupQueued.Inc()
	}
}
