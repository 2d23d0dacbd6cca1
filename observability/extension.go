// Package observability provides a metrics hook for micro-ledgers that
// records lifecycle event counts through a caller-supplied metric
// factory.
package observability

import (
	"context"

	"github.com/RuSwift/microledger/hook"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ hook.Hook                = (*MetricsExtension)(nil)
	_ hook.OnMessagesSent      = (*MetricsExtension)(nil)
	_ hook.OnStatesWritten     = (*MetricsExtension)(nil)
	_ hook.OnRequestCreated    = (*MetricsExtension)(nil)
	_ hook.OnRequestTransition = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger-wide lifecycle metrics. Register it
// as a hook to automatically track replication activity.
type MetricsExtension struct {
	factory MetricFactory

	// Mass-payment metrics
	MessagesSent  Counter
	BatchSize     Histogram
	StatesWritten Counter

	// Payment-request metrics
	RequestsCreated    Counter
	RequestTransitions Counter
	RequestsDisputed   Counter
	RequestsDone       Counter
	RequestsDeclined   Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided
// MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		MessagesSent:  factory.Counter("microledger.messages.sent"),
		BatchSize:     factory.Histogram("microledger.messages.batch_size"),
		StatesWritten: factory.Counter("microledger.states.written"),

		RequestsCreated:    factory.Counter("microledger.requests.created"),
		RequestTransitions: factory.Counter("microledger.requests.transitions"),
		RequestsDisputed:   factory.Counter("microledger.requests.disputed"),
		RequestsDone:       factory.Counter("microledger.requests.done"),
		RequestsDeclined:   factory.Counter("microledger.requests.declined"),
	}
}

// Name implements hook.Hook.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnMessagesSent implements hook.OnMessagesSent.
func (m *MetricsExtension) OnMessagesSent(_ context.Context, _ string, msgs []interface{}) error {
	count := float64(len(msgs))
	m.MessagesSent.Add(count)
	m.BatchSize.Observe(count)
	return nil
}

// OnStatesWritten implements hook.OnStatesWritten.
func (m *MetricsExtension) OnStatesWritten(_ context.Context, _ string, states map[string]string) error {
	m.StatesWritten.Add(float64(len(states)))
	return nil
}

// OnRequestCreated implements hook.OnRequestCreated.
func (m *MetricsExtension) OnRequestCreated(_ context.Context, _ string, _ interface{}) error {
	m.RequestsCreated.Inc()
	return nil
}

// OnRequestTransition implements hook.OnRequestTransition.
func (m *MetricsExtension) OnRequestTransition(_ context.Context, _, _, to string, _ interface{}) error {
	m.RequestTransitions.Inc()
	switch to {
	case "dispute":
		m.RequestsDisputed.Inc()
	case "done":
		m.RequestsDone.Inc()
	case "declined":
		m.RequestsDeclined.Inc()
	}
	return nil
}
