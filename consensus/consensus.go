// Package consensus defines the pluggable replication contract of the
// micro-ledgers and its single-datastore implementation.
//
// A Consensus fans writes out to every participant of a ledger and
// projects a mutable key-value state used for dedup and status lookups.
// The implementation here replicates through one shared record store;
// it is a stand-in for real multi-writer consensus. Signatures are an
// unauthenticated placeholder — a signing, Byzantine-tolerant backend
// can be substituted without touching the ledger layer, which only ever
// talks to this interface.
package consensus

import (
	"context"
	"errors"

	"github.com/RuSwift/microledger/store"
)

// EmptySignature is the placeholder signature written until a signing
// consensus backend exists.
const EmptySignature = "<empty>"

// ErrDuplicateState is returned by Propagate when a unique state key is
// already present, making the dedup key itself the conflict target.
var ErrDuplicateState = errors.New("consensus: duplicate state key")

// Transaction is the append-only replication unit. Once propagated it
// is never mutated. Payload holds the serialized message.
type Transaction struct {
	Issuer    string         `json:"issuer"`
	Signature string         `json:"signature"`
	LedgerID  string         `json:"ledger_id"`
	Tags      []string       `json:"tags,omitempty"`
	Payload   map[string]any `json:"payload"`
}

// KeyValueState is one entry of the mutable, last-write-wins projection
// kept next to a ledger. It is not part of the append log; it is
// replicated to the same participant set as the owning ledger and used
// purely for deduplication and status lookups.
type KeyValueState struct {
	LedgerID string `json:"ledger_id"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// Filter is a payload predicate passed through to the record store.
type Filter = store.Cond

// ReadOpts selects a page of transactions. Sort orders by physical
// insertion order; SortAsc (oldest first) is the default.
type ReadOpts struct {
	Limit   int
	Offset  int
	Sort    store.Sort
	Filters []Filter
}

// Atomic is a side-effect delegate executed inside the same physical
// transaction as the writes of a Propagate call, all-or-nothing.
type Atomic func(ctx context.Context, tx store.Tx) error

// PropagateOption configures a single Propagate call.
type PropagateOption func(*propagateConfig)

type propagateConfig struct {
	atomics      []Atomic
	uniqueStates bool
}

// WithAtomic appends a side-effect delegate to the propagate call.
// Delegates run in order, after the fan-out writes, in the same
// transaction.
func WithAtomic(fn Atomic) PropagateOption {
	return func(cfg *propagateConfig) {
		if fn != nil {
			cfg.atomics = append(cfg.atomics, fn)
		}
	}
}

// WithUniqueStates makes Propagate fail with ErrDuplicateState instead
// of overwriting when a state key already exists.
func WithUniqueStates() PropagateOption {
	return func(cfg *propagateConfig) {
		cfg.uniqueStates = true
	}
}

// Consensus replicates writes to every participant and answers reads
// over the caller's own replica.
type Consensus interface {
	// Propagate applies every transaction and state write, plus any
	// atomic delegates, in one all-or-nothing operation. On error
	// nothing is persisted.
	Propagate(ctx context.Context, txns []Transaction, states []KeyValueState, opts ...PropagateOption) error

	// Read returns transactions of one ledger scoped to "me" — a
	// participant can only ever read its own replica. The returned
	// count is the total number of matches ignoring paging.
	Read(ctx context.Context, ledgerID string, opts ReadOpts) (int, []Transaction, error)

	// States performs a point/range lookup over the mutable
	// projection, scoped to "me". Empty keys/values match everything.
	States(ctx context.Context, ledgerID string, keys, values []string) ([]KeyValueState, error)
}

// Factory builds a Consensus bound to an identity and participant set.
// Ledger constructors take a Factory so the backend stays replaceable.
type Factory func(me string, participants []string) Consensus
