// Package audit bridges micro-ledger lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend
// on any concrete audit store. Callers inject a RecorderFunc adapter
// that bridges to their backend at wiring time.
package audit

import (
	"context"
	"log/slog"

	"github.com/RuSwift/microledger/hook"
)

// Compile-time interface checks.
var (
	_ hook.Hook                = (*Extension)(nil)
	_ hook.OnMessagesSent      = (*Extension)(nil)
	_ hook.OnStatesWritten     = (*Extension)(nil)
	_ hook.OnRequestCreated    = (*Extension)(nil)
	_ hook.OnRequestTransition = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// Event is a single audit trail entry.
type Event struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Extension turns ledger lifecycle events into audit events.
type Extension struct {
	recorder Recorder
	logger   *slog.Logger
	enabled  map[string]bool
}

// New creates an audit extension writing to recorder.
func New(recorder Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: recorder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Hook.
func (e *Extension) Name() string { return "audit" }

// OnMessagesSent implements hook.OnMessagesSent.
func (e *Extension) OnMessagesSent(ctx context.Context, ledgerID string, msgs []interface{}) error {
	return e.record(ctx, &Event{
		Action:     ActionMessagesSent,
		Resource:   ResourceMessage,
		Category:   CategoryPayment,
		ResourceID: ledgerID,
		Metadata:   map[string]any{"count": len(msgs)},
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
	})
}

// OnStatesWritten implements hook.OnStatesWritten.
func (e *Extension) OnStatesWritten(ctx context.Context, ledgerID string, states map[string]string) error {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	return e.record(ctx, &Event{
		Action:     ActionStatesWritten,
		Resource:   ResourceState,
		Category:   CategoryReplication,
		ResourceID: ledgerID,
		Metadata:   map[string]any{"keys": keys},
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
	})
}

// OnRequestCreated implements hook.OnRequestCreated.
func (e *Extension) OnRequestCreated(ctx context.Context, ledgerID string, request interface{}) error {
	return e.record(ctx, &Event{
		Action:     ActionRequestCreated,
		Resource:   ResourceRequest,
		Category:   CategoryPayment,
		ResourceID: ledgerID,
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
	})
}

// OnRequestTransition implements hook.OnRequestTransition.
func (e *Extension) OnRequestTransition(ctx context.Context, ledgerID, from, to string, request interface{}) error {
	severity := SeverityInfo
	if to == "dispute" {
		severity = SeverityWarning
	}
	return e.record(ctx, &Event{
		Action:     ActionRequestTransition,
		Resource:   ResourceRequest,
		Category:   CategoryPayment,
		ResourceID: ledgerID,
		Metadata:   map[string]any{"from": from, "to": to},
		Outcome:    OutcomeSuccess,
		Severity:   severity,
	})
}

// record filters disabled actions and hands the event to the recorder.
func (e *Extension) record(ctx context.Context, event *Event) error {
	if e.enabled != nil && !e.enabled[event.Action] {
		return nil
	}
	if err := e.recorder.Record(ctx, event); err != nil {
		e.logger.Warn("audit record failed",
			"action", event.Action,
			"resource_id", event.ResourceID,
			"error", err,
		)
		return err
	}
	return nil
}
