package paymentrequest

import (
	"context"
	"errors"
	"fmt"
	"time"

	microledger "github.com/RuSwift/microledger"
	"github.com/RuSwift/microledger/consensus"
	"github.com/RuSwift/microledger/store"
)

// TransitionError reports a status move the state machine forbids,
// naming the statuses it would have been allowed from.
type TransitionError struct {
	From    RequestStatus
	To      RequestStatus
	Allowed []RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("paymentrequest: cannot move %s to %s, allowed from %v", e.From, e.To, e.Allowed)
}

// IsTransition returns true if the error is a forbidden status move.
func IsTransition(err error) bool {
	var t *TransitionError
	return errors.As(err, &t)
}

// Contract is the document state machine over a bound payment-request
// ledger. Every mutation fetches the caller's copy, validates the
// transition, then overwrites every participant's copy in one store
// transaction.
type Contract struct {
	dlt *Ledger
}

// Create validates the request and writes the initial document, one
// copy per participant, all inside one transaction.
func (c *Contract) Create(ctx context.Context, order *PaymentRequest) error {
	if err := order.Validate(); err != nil {
		return err
	}
	if order.Created == 0 {
		order.Created = nowFloat()
	}

	payload, err := order.MarshalPayload()
	if err != nil {
		return err
	}
	txn := consensus.Transaction{
		Issuer:    c.dlt.Identity().DID,
		Signature: consensus.EmptySignature,
		LedgerID:  c.dlt.LedgerID(),
		Tags:      []string{Tag},
		Payload:   payload,
	}
	if err := c.dlt.Consensus().Propagate(ctx, []consensus.Transaction{txn}, nil); err != nil {
		return fmt.Errorf("%w: %w", microledger.ErrPropagation, err)
	}
	c.dlt.Hooks().EmitRequestCreated(ctx, c.dlt.LedgerID(), order)
	return nil
}

// Fetch reads the caller's own copy of the document. A missing document
// reports microledger.ErrNotFound.
func (c *Contract) Fetch(ctx context.Context) (*PaymentRequest, error) {
	rec, err := c.dlt.store.FindOne(ctx, store.Query{
		StorageID: c.dlt.Identity().DID,
		LedgerID:  c.dlt.LedgerID(),
		Tag:       Tag,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: request %s", microledger.ErrNotFound, c.dlt.LedgerID())
		}
		return nil, fmt.Errorf("paymentrequest: fetch: %w", err)
	}
	return RequestFromPayload(rec.Payload)
}

// LinkClient attaches a client to a freshly created request. A request
// already carrying a client is rejected with ErrClientLinked.
func (c *Contract) LinkClient(ctx context.Context, clientID string) (*PaymentRequest, error) {
	return c.advance(ctx, StatusLinked, []RequestStatus{StatusCreated}, func(order *PaymentRequest) error {
		if order.LinkedClient != "" {
			return fmt.Errorf("%w: %s", microledger.ErrClientLinked, order.LinkedClient)
		}
		order.LinkedClient = clientID
		return nil
	})
}

// MarkReady confirms the linked client and opens the request for
// payment details.
func (c *Contract) MarkReady(ctx context.Context) (*PaymentRequest, error) {
	return c.advance(ctx, StatusReady, []RequestStatus{StatusLinked}, nil)
}

// WaitPayment attaches payment details and opens the payment window:
// the details must carry a positive TTL, and ActiveUntil is computed
// from the current time.
func (c *Contract) WaitPayment(ctx context.Context, details *PaymentDetails) (*PaymentRequest, error) {
	return c.advance(ctx, StatusWait, []RequestStatus{StatusReady}, func(order *PaymentRequest) error {
		if details == nil {
			return microledger.ErrNoPaymentDetails
		}
		if details.PaymentTTL <= 0 {
			return microledger.ErrNoPaymentTTL
		}
		d := *details
		d.ActiveUntil = nowFloat() + d.PaymentTTL
		order.Details = &d
		return nil
	})
}

// MarkPayed records the client's claim that the payment was sent.
func (c *Contract) MarkPayed(ctx context.Context) (*PaymentRequest, error) {
	return c.advance(ctx, StatusPayed, []RequestStatus{StatusWait}, nil)
}

// MarkChecking moves the request into payment verification.
func (c *Contract) MarkChecking(ctx context.Context) (*PaymentRequest, error) {
	return c.advance(ctx, StatusChecking, []RequestStatus{StatusPayed}, nil)
}

// MarkDone closes the request, from verification or from a resolved
// dispute.
func (c *Contract) MarkDone(ctx context.Context) (*PaymentRequest, error) {
	return c.advance(ctx, StatusDone, []RequestStatus{StatusChecking, StatusDispute}, nil)
}

// MarkDeclined closes a disputed request without payment.
func (c *Contract) MarkDeclined(ctx context.Context) (*PaymentRequest, error) {
	return c.advance(ctx, StatusDeclined, []RequestStatus{StatusDispute}, nil)
}

// MarkDispute escalates the request. Allowed from any status.
func (c *Contract) MarkDispute(ctx context.Context) (*PaymentRequest, error) {
	return c.advance(ctx, StatusDispute, nil, nil)
}

// advance runs one state-machine step: fetch the document, check the
// transition, apply the mutation, push the new copy to every
// participant and return the re-fetched document. An empty allowed set
// admits any status.
func (c *Contract) advance(ctx context.Context, to RequestStatus, allowed []RequestStatus, mutate func(*PaymentRequest) error) (*PaymentRequest, error) {
	order, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if len(allowed) > 0 && !statusIn(from, allowed) {
		return nil, &TransitionError{From: from, To: to, Allowed: allowed}
	}
	if mutate != nil {
		if err := mutate(order); err != nil {
			return nil, err
		}
	}
	order.Status = to

	if err := c.updateAllParticipants(ctx, order); err != nil {
		return nil, err
	}
	updated, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.dlt.Hooks().EmitRequestTransition(ctx, c.dlt.LedgerID(), string(from), string(to), updated)
	return updated, nil
}

// updateAllParticipants overwrites every participant's copy of the
// document, atomically. Replication of mutations is write-fan-out, not
// append plus projection.
func (c *Contract) updateAllParticipants(ctx context.Context, order *PaymentRequest) error {
	payload, err := order.MarshalPayload()
	if err != nil {
		return err
	}
	err = c.dlt.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, records, err := tx.Find(ctx, store.Query{
			StorageIDs: c.dlt.Participants(),
			LedgerID:   c.dlt.LedgerID(),
			Tag:        Tag,
			Payload:    []store.Cond{store.Eq("uid", order.UID)},
		})
		if err != nil {
			return err
		}
		for _, rec := range records {
			rec.Payload = payload
			if err := tx.Update(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("paymentrequest: update %s: %w", c.dlt.LedgerID(), err)
	}
	return nil
}

func statusIn(s RequestStatus, set []RequestStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func nowFloat() float64 {
	return float64(time.Now().UTC().UnixNano()) / float64(time.Second)
}
