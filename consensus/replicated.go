package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/RuSwift/microledger/store"
)

// statesSuffix namespaces the key-value projection next to its ledger.
const statesSuffix = ":states"

// compile-time interface check
var _ Consensus = (*Replicated)(nil)

// Replicated implements Consensus over a single shared record store:
// every logical transaction becomes one physical record per participant,
// written inside one store transaction. There is no multi-node
// agreement; shared state across participants is achieved purely by
// writing N independent copies atomically.
type Replicated struct {
	me           string
	participants []string // excluding me
	st           store.Store
	logger       *slog.Logger
}

// Option configures a Replicated instance.
type Option func(*Replicated)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Replicated) {
		c.logger = logger
	}
}

// NewReplicated creates a consensus bound to me and participants.
func NewReplicated(st store.Store, me string, participants []string, opts ...Option) *Replicated {
	others := make([]string, 0, len(participants))
	for _, did := range participants {
		if did != me {
			others = append(others, did)
		}
	}

	c := &Replicated{
		me:           me,
		participants: others,
		st:           st,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFactory returns a Factory producing Replicated instances over st.
func NewFactory(st store.Store, opts ...Option) Factory {
	return func(me string, participants []string) Consensus {
		return NewReplicated(st, me, participants, opts...)
	}
}

// members returns {me} ∪ participants, me first, de-duplicated.
func (c *Replicated) members() []string {
	members := make([]string, 0, len(c.participants)+1)
	seen := map[string]bool{c.me: true}
	members = append(members, c.me)
	for _, did := range c.participants {
		if !seen[did] {
			seen[did] = true
			members = append(members, did)
		}
	}
	return members
}

// Propagate fans each transaction out into one record per member and
// upserts each state entry per member under the ledger's ":states"
// namespace. All writes plus the atomic delegates commit or fail
// together.
func (c *Replicated) Propagate(ctx context.Context, txns []Transaction, states []KeyValueState, opts ...PropagateOption) error {
	var cfg propagateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	members := c.members()
	err := c.st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, txn := range txns {
			for _, did := range members {
				rec := &store.Record{
					StorageID:  did,
					LedgerID:   txn.LedgerID,
					Tags:       txn.Tags,
					Signature:  txn.Signature,
					Payload:    txn.Payload,
					StorageIDs: members,
				}
				if err := tx.Insert(ctx, rec); err != nil {
					return err
				}
			}
		}

		for _, state := range states {
			if err := c.applyState(ctx, tx, members, state, cfg.uniqueStates); err != nil {
				return err
			}
		}

		for _, atomic := range cfg.atomics {
			if err := atomic(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("propagate failed",
			"me", c.me,
			"txns", len(txns),
			"states", len(states),
			"error", err,
		)
		return fmt.Errorf("consensus: propagate: %w", err)
	}

	c.logger.Debug("propagated",
		"me", c.me,
		"members", len(members),
		"txns", len(txns),
		"states", len(states),
	)
	return nil
}

func (c *Replicated) applyState(ctx context.Context, tx store.Tx, members []string, state KeyValueState, unique bool) error {
	ledgerID := state.LedgerID + statesSuffix
	for _, did := range members {
		q := store.Query{
			StorageID: did,
			LedgerID:  ledgerID,
			Payload:   []store.Cond{store.Eq("key", state.Key)},
		}
		if unique {
			_, err := tx.FindOne(ctx, q)
			if err == nil {
				return fmt.Errorf("%w: %q", ErrDuplicateState, state.Key)
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		rec := &store.Record{
			StorageID:  did,
			LedgerID:   ledgerID,
			Signature:  EmptySignature,
			StorageIDs: members,
			Payload: map[string]any{
				"key":   state.Key,
				"value": state.Value,
			},
		}
		if err := tx.Upsert(ctx, q, rec); err != nil {
			return err
		}
	}
	return nil
}

// Read returns the caller's own replica of one ledger, in insertion
// order.
func (c *Replicated) Read(ctx context.Context, ledgerID string, opts ReadOpts) (int, []Transaction, error) {
	q := store.Query{
		StorageID: c.me,
		LedgerID:  ledgerID,
		Payload:   opts.Filters,
		Sort:      opts.Sort,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	}
	total, records, err := c.st.Find(ctx, q)
	if err != nil {
		return 0, nil, fmt.Errorf("consensus: read %q: %w", ledgerID, err)
	}

	txns := make([]Transaction, 0, len(records))
	for _, rec := range records {
		txns = append(txns, Transaction{
			Issuer:    rec.StorageID,
			Signature: rec.Signature,
			LedgerID:  rec.LedgerID,
			Tags:      rec.Tags,
			Payload:   rec.Payload,
		})
	}
	return total, txns, nil
}

// States looks entries up in the caller's replica of the key-value
// projection.
func (c *Replicated) States(ctx context.Context, ledgerID string, keys, values []string) ([]KeyValueState, error) {
	conds := make([]store.Cond, 0, 2)
	if len(keys) > 0 {
		conds = append(conds, store.In("key", keys...))
	}
	if len(values) > 0 {
		conds = append(conds, store.In("value", values...))
	}

	q := store.Query{
		StorageID: c.me,
		LedgerID:  ledgerID + statesSuffix,
		Payload:   conds,
	}
	_, records, err := c.st.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("consensus: states %q: %w", ledgerID, err)
	}

	states := make([]KeyValueState, 0, len(records))
	for _, rec := range records {
		key, _ := rec.Payload["key"].(string)
		value, _ := rec.Payload["value"].(string)
		states = append(states, KeyValueState{
			LedgerID: strings.TrimSuffix(rec.LedgerID, statesSuffix),
			Key:      key,
			Value:    value,
		})
	}
	return states, nil
}
