// Package hook provides an extensible hook system for micro-ledgers.
// Hooks observe ledger lifecycle events to extend functionality without
// touching the write path: a failing hook is logged, never propagated.
package hook

import (
	"context"
)

// Hook is the base interface that all hooks must implement.
type Hook interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Mass-payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnMessagesSent is called after a message batch committed to every
// participant replica.
type OnMessagesSent interface {
	Hook
	OnMessagesSent(ctx context.Context, ledgerID string, msgs []interface{}) error
}

// OnStatesWritten is called after key/value dedup states committed.
type OnStatesWritten interface {
	Hook
	OnStatesWritten(ctx context.Context, ledgerID string, states map[string]string) error
}

// ──────────────────────────────────────────────────
// Payment-request lifecycle hooks
// ──────────────────────────────────────────────────

// OnRequestCreated is called after the initial payment-request document
// replicated to every participant.
type OnRequestCreated interface {
	Hook
	OnRequestCreated(ctx context.Context, ledgerID string, request interface{}) error
}

// OnRequestTransition is called after a payment-request status move
// committed to every participant copy.
type OnRequestTransition interface {
	Hook
	OnRequestTransition(ctx context.Context, ledgerID, from, to string, request interface{}) error
}
