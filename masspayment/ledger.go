package masspayment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	microledger "github.com/RuSwift/microledger"
	"github.com/RuSwift/microledger/consensus"
	"github.com/RuSwift/microledger/store"
	"github.com/RuSwift/microledger/types"
)

// Ledger is the mass-payment micro-ledger bound to one identity. All
// instances share the ledger id; isolation comes from the identity's
// own replica.
type Ledger struct {
	microledger.Base
}

// New binds a mass-payment ledger to an identity and participant set.
func New(me types.Identity, participants []string, factory consensus.Factory, opts ...microledger.Option) (*Ledger, error) {
	base, err := microledger.NewBase(me, participants, factory, opts...)
	if err != nil {
		return nil, err
	}
	return &Ledger{Base: base}, nil
}

// FromLedger binds a mass-payment ledger to the participant union of a
// directory record.
func FromLedger(src types.Ledger, me types.Identity, factory consensus.Factory, opts ...microledger.Option) (*Ledger, error) {
	return New(me, microledger.ParticipantsOf(src), factory, opts...)
}

// LedgerID returns the shared mass-payment ledger id.
func (l *Ledger) LedgerID() string { return ID }

type sendConfig struct {
	states  map[string]string
	unique  bool
	atomics []consensus.Atomic
}

// SendOption configures a Send or SendBatch call.
type SendOption func(*sendConfig)

// WithStates upserts key/value dedup states in the same transaction as
// the messages.
func WithStates(states map[string]string) SendOption {
	return func(c *sendConfig) {
		if c.states == nil {
			c.states = make(map[string]string, len(states))
		}
		for k, v := range states {
			c.states[k] = v
		}
	}
}

// WithUniqueStates rejects the whole send with ErrDuplicateState when
// any state key already exists, turning states into idempotency keys.
func WithUniqueStates() SendOption {
	return func(c *sendConfig) { c.unique = true }
}

// WithAtomic runs fn inside the same store transaction as the send.
// Multiple delegates run in registration order.
func WithAtomic(fn consensus.Atomic) SendOption {
	return func(c *sendConfig) { c.atomics = append(c.atomics, fn) }
}

// Send validates and replicates a single message to every participant.
func (l *Ledger) Send(ctx context.Context, msg *Message, opts ...SendOption) error {
	return l.SendBatch(ctx, []*Message{msg}, opts...)
}

// SendBatch validates and replicates a batch of messages atomically:
// either every message reaches every participant, or nothing is
// written. Validation failures surface before any write is attempted.
func (l *Ledger) SendBatch(ctx context.Context, msgs []*Message, opts ...SendOption) error {
	var cfg sendConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	txns := make([]consensus.Transaction, 0, len(msgs))
	for _, msg := range msgs {
		if err := msg.Validate(); err != nil {
			return err
		}
		txn, err := l.buildTransaction(msg)
		if err != nil {
			return err
		}
		txns = append(txns, txn)
	}

	states := make([]consensus.KeyValueState, 0, len(cfg.states))
	keys := make([]string, 0, len(cfg.states))
	for k := range cfg.states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		states = append(states, consensus.KeyValueState{
			LedgerID: ID,
			Key:      k,
			Value:    cfg.states[k],
		})
	}

	popts := make([]consensus.PropagateOption, 0, len(cfg.atomics)+1)
	if cfg.unique {
		popts = append(popts, consensus.WithUniqueStates())
	}
	for _, fn := range cfg.atomics {
		popts = append(popts, consensus.WithAtomic(fn))
	}

	if err := l.Consensus().Propagate(ctx, txns, states, popts...); err != nil {
		return fmt.Errorf("%w: %w", microledger.ErrPropagation, err)
	}

	sent := make([]interface{}, len(msgs))
	for i, msg := range msgs {
		sent[i] = msg
	}
	l.Hooks().EmitMessagesSent(ctx, ID, sent)
	if len(cfg.states) > 0 {
		l.Hooks().EmitStatesWritten(ctx, ID, cfg.states)
	}
	return nil
}

// buildTransaction turns a message into a replicated transaction. The
// caller's message is not mutated: the send timestamp is stamped on a
// copy.
func (l *Ledger) buildTransaction(msg *Message) (consensus.Transaction, error) {
	cp := *msg
	if cp.UTC == nil {
		now := time.Now().UTC()
		cp.UTC = &now
	}

	payload, err := cp.MarshalPayload()
	if err != nil {
		return consensus.Transaction{}, err
	}

	return consensus.Transaction{
		Issuer:    l.Identity().DID,
		Signature: consensus.EmptySignature,
		LedgerID:  ID,
		Tags:      payoutTags(&cp),
		Payload:   payload,
	}, nil
}

// payoutTags extracts the searchable facets of a payout message. Other
// message types carry no tags.
func payoutTags(msg *Message) []string {
	if msg.Type != TypePayout {
		return nil
	}
	var candidates []string
	if msg.Transaction != nil {
		candidates = append(candidates, msg.Transaction.OrderID, msg.Transaction.Currency)
	}
	if msg.Customer != nil {
		candidates = append(candidates, msg.Customer.Identifier, msg.Customer.Email, msg.Customer.Phone)
	}
	if msg.Card != nil {
		candidates = append(candidates, msg.Card.Number)
	}
	tags := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		tags = append(tags, strings.ToLower(c))
	}
	return tags
}

// LoadOpts narrows a load to matching messages. Zero-valued fields are
// ignored. Filters adds raw payload predicates for facets the named
// fields don't cover.
type LoadOpts struct {
	Limit      int
	Offset     int
	Sort       store.Sort
	Type       MessageType
	UIDs       []string
	OrderIDs   []string
	Identifier string
	Statuses   []string
	Filters    []consensus.Filter
}

// Load reads messages from the caller's own replica, oldest first
// unless Sort says otherwise. The returned count is the total number of
// matches regardless of paging.
func (l *Ledger) Load(ctx context.Context, opts LoadOpts) (int, []*Message, error) {
	filters := append([]consensus.Filter(nil), opts.Filters...)
	if opts.Type != "" {
		filters = append(filters, store.Eq("type", string(opts.Type)))
	}
	if len(opts.UIDs) > 0 {
		filters = append(filters, store.In("uid", opts.UIDs...))
	}
	if len(opts.OrderIDs) > 0 {
		filters = append(filters, store.In("transaction.order_id", opts.OrderIDs...))
	}
	if opts.Identifier != "" {
		filters = append(filters, store.Eq("customer.identifier", opts.Identifier))
	}
	if len(opts.Statuses) > 0 {
		filters = append(filters, store.In("status.status", opts.Statuses...))
	}

	count, txns, err := l.Consensus().Read(ctx, ID, consensus.ReadOpts{
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		Sort:    opts.Sort,
		Filters: filters,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("masspayment: load: %w", err)
	}

	msgs := make([]*Message, 0, len(txns))
	for _, txn := range txns {
		msg, err := MessageFromPayload(txn.Payload)
		if err != nil {
			return 0, nil, err
		}
		msgs = append(msgs, msg)
	}
	return count, msgs, nil
}

// LoadPayments returns payout messages with the freshest known
// processing status overlaid on each. A payout with no status update
// yet reports pending. Statuses narrows by dedup-state value first,
// so idempotency keys double as a status index.
func (l *Ledger) LoadPayments(ctx context.Context, opts LoadOpts) (int, []*Message, error) {
	uids := append([]string(nil), opts.UIDs...)
	if len(opts.Statuses) > 0 {
		kvs, err := l.Consensus().States(ctx, ID, nil, opts.Statuses)
		if err != nil {
			return 0, nil, fmt.Errorf("masspayment: load payments: %w", err)
		}
		for _, kv := range kvs {
			uids = append(uids, kv.Key)
		}
		if len(uids) == 0 {
			return 0, nil, nil
		}
	}

	popts := opts
	popts.Type = TypePayout
	popts.UIDs = uids
	popts.Statuses = nil
	count, payments, err := l.Load(ctx, popts)
	if err != nil || len(payments) == 0 {
		return count, payments, err
	}

	paymentUIDs := make([]string, 0, len(payments))
	for _, p := range payments {
		paymentUIDs = append(paymentUIDs, p.UID)
	}

	// Newest first, so the first status seen per uid is the freshest.
	_, updates, err := l.Load(ctx, LoadOpts{
		Type: TypeStatus,
		UIDs: paymentUIDs,
		Statuses: []string{
			string(StatusPending), string(StatusProcessing),
			string(StatusSuccess), string(StatusError),
		},
		Sort: store.SortDesc,
	})
	if err != nil {
		return 0, nil, err
	}

	freshest := make(map[string]*PaymentStatus, len(updates))
	for _, u := range updates {
		if _, ok := freshest[u.UID]; !ok {
			freshest[u.UID] = u.Status
		}
	}
	for _, p := range payments {
		if status, ok := freshest[p.UID]; ok {
			p.Status = status
		}
	}
	return count, payments, nil
}

// LoadDeposits returns deposit messages, oldest first. With aggregate
// set, updates sharing a uid collapse into the first record: the
// freshest status and transaction win and payload attachments
// accumulate across updates.
func (l *Ledger) LoadDeposits(ctx context.Context, aggregate bool, opts LoadOpts) ([]*Message, error) {
	uids := append([]string(nil), opts.UIDs...)
	if len(opts.Statuses) > 0 {
		kvs, err := l.Consensus().States(ctx, ID, nil, opts.Statuses)
		if err != nil {
			return nil, fmt.Errorf("masspayment: load deposits: %w", err)
		}
		for _, kv := range kvs {
			uids = append(uids, kv.Key)
		}
		if len(uids) == 0 {
			return nil, nil
		}
	}

	dopts := opts
	dopts.Type = TypeDeposit
	dopts.UIDs = uids
	dopts.Statuses = nil
	dopts.Sort = store.SortAsc
	_, msgs, err := l.Load(ctx, dopts)
	if err != nil {
		return nil, err
	}
	if !aggregate {
		return msgs, nil
	}

	anchors := make(map[string]*Message, len(msgs))
	attachments := make(map[string][]any, len(msgs))
	deposits := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		atts := msg.Attachments()
		anchor, ok := anchors[msg.UID]
		if !ok {
			anchors[msg.UID] = msg
			attachments[msg.UID] = atts
			deposits = append(deposits, msg)
			continue
		}
		anchor.Status = msg.Status
		anchor.Transaction = msg.Transaction
		attachments[msg.UID] = append(attachments[msg.UID], atts...)
		if len(attachments[msg.UID]) > 0 {
			if anchor.Status == nil {
				anchor.Status = NewPaymentStatus()
			}
			if anchor.Status.Payload == nil {
				anchor.Status.Payload = make(map[string]any, 1)
			}
			anchor.Status.Payload["attachments"] = attachments[msg.UID]
		}
	}
	return deposits, nil
}

// LoadStates reads dedup states, optionally narrowed by keys or values.
func (l *Ledger) LoadStates(ctx context.Context, keys, values []string) ([]consensus.KeyValueState, error) {
	return l.Consensus().States(ctx, ID, keys, values)
}
