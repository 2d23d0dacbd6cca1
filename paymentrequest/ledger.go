package paymentrequest

import (
	"context"
	"fmt"
	"strings"

	microledger "github.com/RuSwift/microledger"
	"github.com/RuSwift/microledger/consensus"
	"github.com/RuSwift/microledger/store"
	"github.com/RuSwift/microledger/types"
)

// ID is the ledger id namespace. Every instance is bound to one request
// uid under it; the bare namespace never holds records.
const ID = "payment-request"

// Tag marks every payment-request record for reverse-index lookups.
const Tag = "payment_request"

// ForUID returns the ledger id for a request uid, normalizing ids that
// already carry the namespace prefix.
func ForUID(uid string) string {
	prefix := ID + ":"
	if strings.HasPrefix(uid, prefix) {
		return uid
	}
	return prefix + uid
}

// Ledger is a payment-request micro-ledger bound to a single request
// uid. Unlike the mass-payment log it holds a direct store handle: the
// contract overwrites existing records in place rather than appending.
type Ledger struct {
	microledger.Base
	ledgerID string
	store    store.Store
}

// New binds a payment-request ledger to a request uid, identity and
// participant set. An empty uid yields ErrUnboundLedger: records of
// different requests must never share a ledger id.
func New(uid string, me types.Identity, participants []string, st store.Store, opts ...microledger.Option) (*Ledger, error) {
	if uid == "" {
		return nil, microledger.ErrUnboundLedger
	}
	base, err := microledger.NewBase(me, participants, consensus.NewFactory(st), opts...)
	if err != nil {
		return nil, err
	}
	return &Ledger{Base: base, ledgerID: ForUID(uid), store: st}, nil
}

// FromLedger binds a payment-request ledger to the participant union of
// a directory record, keyed by the record's own id.
func FromLedger(src types.Ledger, me types.Identity, st store.Store, opts ...microledger.Option) (*Ledger, error) {
	return New(src.ID, me, microledger.ParticipantsOf(src), st, opts...)
}

// LedgerID returns the uid-scoped ledger id.
func (l *Ledger) LedgerID() string { return l.ledgerID }

// Contract returns the document state machine over this ledger.
func (l *Ledger) Contract() *Contract {
	return &Contract{dlt: l}
}

// Send is reserved for event-sourced request history and is not
// implemented yet.
func (l *Ledger) Send(ctx context.Context, msg any) error {
	return fmt.Errorf("%w: paymentrequest send", microledger.ErrNotImplemented)
}

// SendBatch is reserved for event-sourced request history and is not
// implemented yet.
func (l *Ledger) SendBatch(ctx context.Context, msgs []any) error {
	return fmt.Errorf("%w: paymentrequest send batch", microledger.ErrNotImplemented)
}

// Load is reserved for event-sourced request history and is not
// implemented yet. Use Contract().Fetch to read the document.
func (l *Ledger) Load(ctx context.Context) (int, []any, error) {
	return 0, nil, fmt.Errorf("%w: paymentrequest load", microledger.ErrNotImplemented)
}

// FetchLedgerIDs enumerates the uid-scoped ledger ids a participant is
// involved in, optionally narrowed to requests in the given statuses.
// It is a reverse-index lookup over the participant's own replica.
func FetchLedgerIDs(ctx context.Context, st store.Store, me types.Identity, statuses ...string) ([]string, error) {
	if me.IsZero() {
		return nil, microledger.ErrNoIdentity
	}
	q := store.Query{
		StorageID: me.DID,
		Tag:       Tag,
	}
	if len(statuses) > 0 {
		q.Payload = []store.Cond{store.In("status", statuses...)}
	}
	_, records, err := st.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("paymentrequest: fetch ledger ids: %w", err)
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.LedgerID)
	}
	return ids, nil
}
