// Package metrics exposes Prometheus metrics for the registry service.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ruteri/contract-registry/interfaces"
	"github.com/ruteri/contract-registry/registry"
)

// Outcome labels for the operations counter.
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeRejected     = "rejected"
	OutcomeKilled       = "killed"
	OutcomeInvalid      = "invalid"
	OutcomeError        = "error"
)

// Metrics holds the registry's Prometheus collectors.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Entries           *prometheus.GaugeVec
	ArtifactBytes     prometheus.Counter
	Killed            prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Registry operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of registry operations as seen by the HTTP layer",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		Entries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries",
			Help:      "Registry entries by state",
		}, []string{"state"}),
		ArtifactBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_bytes_stored_total",
			Help:      "Total size of artifacts accepted for storage",
		}),
		Killed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "killed",
			Help:      "1 once the registry has been killed",
		}),
	}
}

// ObserveOperation records an operation outcome and its duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, err error, start time.Time) {
	m.Operations.WithLabelValues(operation, Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Outcome classifies an operation error into a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, interfaces.ErrUnauthorized), errors.Is(err, interfaces.ErrIdentityNotValid):
		return OutcomeUnauthorized
	case errors.Is(err, interfaces.ErrRejected):
		return OutcomeRejected
	case errors.Is(err, interfaces.ErrRegistryKilled):
		return OutcomeKilled
	case errors.Is(err, interfaces.ErrPrecondition),
		errors.Is(err, interfaces.ErrEntryNotFound),
		errors.Is(err, interfaces.ErrInvalidTransition),
		errors.Is(err, interfaces.ErrInvalidHash):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

// SetEntries seeds the entries gauge, typically from a restored snapshot.
func (m *Metrics) SetEntries(state registry.State) {
	m.Entries.Reset()
	for _, st := range interfaces.AllStates() {
		m.Entries.WithLabelValues(st.String()).Set(0)
	}
	for _, entry := range state.Entries {
		m.Entries.WithLabelValues(entry.State.String()).Inc()
	}
	if state.Killed {
		m.Killed.Set(1)
	}
}

// Observer keeps the entries gauge in step with registry events.
func (m *Metrics) Observer() registry.Observer {
	return func(ev registry.Event) {
		switch ev.Kind {
		case registry.EventKilled:
			m.Killed.Set(1)
			return
		case registry.EventDeleted:
			m.Entries.WithLabelValues(ev.From.String()).Dec()
			return
		}
		if ev.HadPrevious {
			m.Entries.WithLabelValues(ev.From.String()).Dec()
		}
		m.Entries.WithLabelValues(ev.To.String()).Inc()
	}
}
