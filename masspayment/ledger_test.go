package masspayment_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	microledger "github.com/RuSwift/microledger"
	"github.com/RuSwift/microledger/consensus"
	"github.com/RuSwift/microledger/hook"
	"github.com/RuSwift/microledger/masspayment"
	"github.com/RuSwift/microledger/store"
	"github.com/RuSwift/microledger/store/memory"
)

const (
	me    = "did:web:exchange.example"
	peer1 = "did:web:merchant.example"
	peer2 = "did:web:agent.example"
)

func newLedger(t *testing.T) (*masspayment.Ledger, *memory.Store) {
	t.Helper()
	st := memory.New()
	ledger, err := masspayment.New(
		microledger.Identity{DID: me},
		[]string{peer1, peer2},
		consensus.NewFactory(st),
	)
	require.NoError(t, err)
	return ledger, st
}

func payout(uid, orderID string) *masspayment.Message {
	return &masspayment.Message{
		UID:  uid,
		Type: masspayment.TypePayout,
		Transaction: &masspayment.Transaction{
			OrderID:  orderID,
			Amount:   decimal.NewFromInt(10000),
			Currency: "RUB",
		},
		Customer: &masspayment.Customer{
			Identifier:  "customer-1",
			DisplayName: "Ivan Ivanov",
			Email:       "Ivan@Example.com",
		},
		Card: &masspayment.Card{
			Number:         "2200123412341234",
			ExpirationDate: "12/29",
		},
	}
}

func statusUpdate(uid string, status masspayment.Status) *masspayment.Message {
	return &masspayment.Message{
		UID:  uid,
		Type: masspayment.TypeStatus,
		Status: &masspayment.PaymentStatus{
			Type:   "payout",
			Status: status,
		},
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     *masspayment.Message
		wantErr string
	}{
		{
			name:    "empty uid",
			msg:     &masspayment.Message{},
			wantErr: "uid",
		},
		{
			name: "payout missing card",
			msg: &masspayment.Message{
				UID:         "p1",
				Type:        masspayment.TypePayout,
				Transaction: &masspayment.Transaction{OrderID: "1001"},
				Customer:    &masspayment.Customer{Identifier: "c1"},
			},
			wantErr: "card",
		},
		{
			name: "payout missing customer",
			msg: &masspayment.Message{
				UID:         "p1",
				Type:        masspayment.TypePayout,
				Transaction: &masspayment.Transaction{OrderID: "1001"},
				Card:        &masspayment.Card{Number: "2200"},
			},
			wantErr: "customer",
		},
		{
			name:    "status missing status",
			msg:     &masspayment.Message{UID: "p1", Type: masspayment.TypeStatus},
			wantErr: "status",
		},
		{
			name: "deposit needs only uid",
			msg:  &masspayment.Message{UID: "d1", Type: masspayment.TypeDeposit},
		},
		{
			name:    "unknown type",
			msg:     &masspayment.Message{UID: "p1", Type: "refund"},
			wantErr: "type",
		},
		{
			name: "valid payout",
			msg:  payout("p1", "1001"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, microledger.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMessageValidateFillsDefaults(t *testing.T) {
	msg := payout("p1", "1001")
	msg.Type = ""
	msg.Status = nil

	require.NoError(t, msg.Validate())
	assert.Equal(t, masspayment.TypePayout, msg.Type)
	require.NotNil(t, msg.Status)
	assert.Equal(t, masspayment.StatusPending, msg.Status.Status)
	assert.Equal(t, "payout", msg.Status.Type)
}

func TestStatusCanFollow(t *testing.T) {
	tests := []struct {
		from, to masspayment.Status
		want     bool
	}{
		{masspayment.StatusPending, masspayment.StatusProcessing, true},
		{masspayment.StatusPending, masspayment.StatusSuccess, false},
		{masspayment.StatusProcessing, masspayment.StatusSuccess, true},
		{masspayment.StatusProcessing, masspayment.StatusError, true},
		{masspayment.StatusProcessing, masspayment.StatusAttachment, true},
		{masspayment.StatusAttachment, masspayment.StatusAttachment, true},
		{masspayment.StatusAttachment, masspayment.StatusSuccess, true},
		{masspayment.StatusCorrection, masspayment.StatusError, true},
		{masspayment.StatusSuccess, masspayment.StatusProcessing, false},
		{masspayment.StatusError, masspayment.StatusSuccess, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.to.CanFollow(tt.from), "%s -> %s", tt.from, tt.to)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	msg := payout(masspayment.NewUID(), "1001")
	require.NoError(t, msg.Validate())

	payload, err := msg.MarshalPayload()
	require.NoError(t, err)

	got, err := masspayment.MessageFromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, msg.UID, got.UID)
	assert.Equal(t, msg.Type, got.Type)
	require.NotNil(t, got.Transaction)
	assert.Equal(t, "1001", got.Transaction.OrderID)
	assert.True(t, got.Transaction.Amount.Equal(decimal.NewFromInt(10000)))
	require.NotNil(t, got.Customer)
	assert.Equal(t, "customer-1", got.Customer.Identifier)
	require.NotNil(t, got.Card)
	assert.Equal(t, "2200123412341234", got.Card.Number)
}

func TestSendFanOutAndTags(t *testing.T) {
	ledger, st := newLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Send(ctx, payout("p1", "1001")))

	total, records, err := st.Find(ctx, store.Query{LedgerID: masspayment.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, total, "one copy per participant")
	// Payout facets are tagged lowercased; empty facets are skipped.
	assert.ElementsMatch(t, []string{
		"1001", "rub", "customer-1", "ivan@example.com", "2200123412341234",
	}, records[0].Tags)
}

func TestSendStampsTimestampOnCopy(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	msg := payout("p1", "1001")
	require.NoError(t, ledger.Send(ctx, msg))
	assert.Nil(t, msg.UTC, "caller's message must not be mutated")

	_, msgs, err := ledger.Load(ctx, masspayment.LoadOpts{UIDs: []string{"p1"}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].UTC)
}

func TestSendBatchValidatesBeforeWrite(t *testing.T) {
	ledger, st := newLedger(t)
	ctx := context.Background()

	err := ledger.SendBatch(ctx, []*masspayment.Message{
		payout("p1", "1001"),
		{UID: "p2", Type: masspayment.TypePayout}, // missing everything
	})
	require.Error(t, err)
	assert.True(t, microledger.IsValidation(err))

	total, _, err := st.Find(ctx, store.Query{})
	require.NoError(t, err)
	assert.Zero(t, total, "validation failure must precede any write")
}

func TestLoadPaymentsOverlaysFreshestStatus(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Send(ctx, payout("p1", "1001")))
	require.NoError(t, ledger.Send(ctx, statusUpdate("p1", masspayment.StatusProcessing)))
	require.NoError(t, ledger.Send(ctx, statusUpdate("p1", masspayment.StatusError)))

	count, payments, err := ledger.LoadPayments(ctx, masspayment.LoadOpts{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, payments, 1)
	assert.Equal(t, "p1", payments[0].UID)
	require.NotNil(t, payments[0].Status)
	assert.Equal(t, masspayment.StatusError, payments[0].Status.Status, "newest update wins")

	// The raw log still holds both updates, oldest first.
	count, updates, err := ledger.Load(ctx, masspayment.LoadOpts{Type: masspayment.TypeStatus})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, updates, 2)
	assert.Equal(t, masspayment.StatusProcessing, updates[0].Status.Status)
	assert.Equal(t, masspayment.StatusError, updates[1].Status.Status)
}

func TestLoadPaymentsDefaultsToPending(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Send(ctx, payout("p1", "1001")))

	_, payments, err := ledger.LoadPayments(ctx, masspayment.LoadOpts{})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.NotNil(t, payments[0].Status)
	assert.Equal(t, masspayment.StatusPending, payments[0].Status.Status)
}

func TestLoadPaymentsNarrowsByStateValue(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Send(ctx, payout("p1", "1001"),
		masspayment.WithStates(map[string]string{"p1": "pending"})))
	require.NoError(t, ledger.Send(ctx, payout("p2", "1002"),
		masspayment.WithStates(map[string]string{"p2": "success"})))

	count, payments, err := ledger.LoadPayments(ctx, masspayment.LoadOpts{
		Statuses: []string{"success"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, payments, 1)
	assert.Equal(t, "p2", payments[0].UID)

	// No state carries the value: nothing matches, nothing errors.
	count, payments, err = ledger.LoadPayments(ctx, masspayment.LoadOpts{
		Statuses: []string{"declined"},
	})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, payments)
}

func TestLoadFilters(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	p2 := payout("p2", "1002")
	p2.Customer.Identifier = "customer-2"
	require.NoError(t, ledger.SendBatch(ctx, []*masspayment.Message{
		payout("p1", "1001"), p2,
	}))

	count, msgs, err := ledger.Load(ctx, masspayment.LoadOpts{OrderIDs: []string{"1002"}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, msgs, 1)
	assert.Equal(t, "p2", msgs[0].UID)

	count, msgs, err = ledger.Load(ctx, masspayment.LoadOpts{Identifier: "customer-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, msgs, 1)
	assert.Equal(t, "p1", msgs[0].UID)

	// Raw payload predicates compose with the named fields.
	count, _, err = ledger.Load(ctx, masspayment.LoadOpts{
		OrderIDs: []string{"1001", "1002"},
		Filters:  []consensus.Filter{store.Eq("customer.identifier", "customer-2")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUniqueStatesRejectDuplicateOrder(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	send := func(uid string) error {
		return ledger.Send(ctx, payout(uid, "1001"),
			masspayment.WithStates(map[string]string{"order-1001": "exists"}),
			masspayment.WithUniqueStates(),
		)
	}
	require.NoError(t, send("p1"))

	err := send("p2")
	require.ErrorIs(t, err, microledger.ErrDuplicateState)
	require.ErrorIs(t, err, microledger.ErrPropagation)

	count, _, err := ledger.Load(ctx, masspayment.LoadOpts{Type: masspayment.TypePayout})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "duplicate send must leave no trace")
}

func TestLoadDepositsAggregation(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	anchor := &masspayment.Message{
		UID:  "d1",
		Type: masspayment.TypeDeposit,
		Transaction: &masspayment.Transaction{
			OrderID: "5001",
			Amount:  decimal.NewFromInt(500),
		},
		Status: &masspayment.PaymentStatus{
			Type:    "payout",
			Status:  masspayment.StatusPending,
			Payload: map[string]any{"attachments": []any{"receipt-a"}},
		},
	}
	update := &masspayment.Message{
		UID:  "d1",
		Type: masspayment.TypeDeposit,
		Transaction: &masspayment.Transaction{
			OrderID: "5001",
			Amount:  decimal.NewFromInt(500),
		},
		Status: &masspayment.PaymentStatus{
			Type:    "payout",
			Status:  masspayment.StatusSuccess,
			Payload: map[string]any{"attachments": []any{"receipt-b"}},
		},
	}
	other := &masspayment.Message{UID: "d2", Type: masspayment.TypeDeposit}

	require.NoError(t, ledger.Send(ctx, anchor))
	require.NoError(t, ledger.Send(ctx, update))
	require.NoError(t, ledger.Send(ctx, other))

	// Raw view keeps every record.
	raw, err := ledger.LoadDeposits(ctx, false, masspayment.LoadOpts{})
	require.NoError(t, err)
	assert.Len(t, raw, 3)

	// Aggregated view collapses updates into the anchor: the freshest
	// status wins and attachments accumulate.
	deposits, err := ledger.LoadDeposits(ctx, true, masspayment.LoadOpts{})
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	assert.Equal(t, "d1", deposits[0].UID)
	assert.Equal(t, masspayment.StatusSuccess, deposits[0].Status.Status)
	assert.Equal(t, []any{"receipt-a", "receipt-b"}, deposits[0].Attachments())
	assert.Equal(t, "d2", deposits[1].UID)
}

type sentHook struct {
	batches int
	states  map[string]string
}

func (h *sentHook) Name() string { return "sent-capture" }

func (h *sentHook) OnMessagesSent(_ context.Context, _ string, msgs []interface{}) error {
	h.batches++
	return nil
}

func (h *sentHook) OnStatesWritten(_ context.Context, _ string, states map[string]string) error {
	h.states = states
	return nil
}

func TestHooksNotifiedAfterCommit(t *testing.T) {
	st := memory.New()
	hooks := hook.NewRegistry()
	h := &sentHook{}
	require.NoError(t, hooks.Register(h))

	ledger, err := masspayment.New(
		microledger.Identity{DID: me},
		[]string{peer1},
		consensus.NewFactory(st),
		microledger.WithHooks(hooks),
	)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ledger.Send(ctx, payout("p1", "1001"),
		masspayment.WithStates(map[string]string{"p1": "pending"})))
	assert.Equal(t, 1, h.batches)
	assert.Equal(t, map[string]string{"p1": "pending"}, h.states)

	// A failed send notifies nobody.
	err = ledger.Send(ctx, &masspayment.Message{Type: masspayment.TypePayout})
	require.Error(t, err)
	assert.Equal(t, 1, h.batches)
}

func TestLoadStates(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Send(ctx, payout("p1", "1001"),
		masspayment.WithStates(map[string]string{"p1": "pending", "order-1001": "exists"})))

	states, err := ledger.LoadStates(ctx, []string{"p1"}, nil)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "pending", states[0].Value)

	states, err = ledger.LoadStates(ctx, nil, []string{"exists"})
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "order-1001", states[0].Key)
}
