// Package paymentrequest implements the payment-request micro-ledger: a
// shared mutable document replicated to every participant, mutated
// through a contract that enforces the request status state machine.
package paymentrequest

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	microledger "github.com/RuSwift/microledger"
	"github.com/RuSwift/microledger/id"
)

// NewUID returns a fresh request uid.
func NewUID() string {
	return id.NewRequestID().String()
}

// RequestStatus is the lifecycle status of a payment request. The
// contract enforces the transition table; documents never move between
// statuses any other way.
type RequestStatus string

// Request statuses in lifecycle order. Dispute is reachable from any
// status and resolves to done or declined.
const (
	StatusCreated  RequestStatus = "created"
	StatusLinked   RequestStatus = "linked"
	StatusReady    RequestStatus = "ready"
	StatusWait     RequestStatus = "wait"
	StatusPayed    RequestStatus = "payed"
	StatusChecking RequestStatus = "checking"
	StatusDispute  RequestStatus = "dispute"
	StatusDone     RequestStatus = "done"
	StatusDeclined RequestStatus = "declined"
)

// CardDetails is a card payment destination.
type CardDetails struct {
	Number         string `json:"number"`
	Holder         string `json:"holder,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	Bank           string `json:"bank,omitempty"`
}

// FPSDetails is a fast-payment-system destination, addressed by phone.
type FPSDetails struct {
	Phone  string `json:"phone"`
	Holder string `json:"holder"`
	Bank   string `json:"bank"`
}

// PaymentDetails carries the destination the client pays to and the
// window it stays valid for. ActiveUntil is a unix timestamp computed
// by the contract when the request enters the wait status.
type PaymentDetails struct {
	Card        *CardDetails `json:"card,omitempty"`
	FPS         *FPSDetails  `json:"fps,omitempty"`
	PaymentTTL  float64      `json:"payment_ttl,omitempty"`
	ActiveUntil float64      `json:"active_until,omitempty"`
}

// Validate rejects details that carry nothing at all, and an activation
// window without a destination to pay to.
func (d *PaymentDetails) Validate() error {
	if d.Card == nil && d.FPS == nil && d.PaymentTTL == 0 {
		return microledger.ValidationError{Field: "details", Message: "all attributes are empty"}
	}
	if d.ActiveUntil != 0 && d.Card == nil && d.FPS == nil {
		return microledger.ValidationError{Field: "details", Message: "card or fps must be filled"}
	}
	return nil
}

// PrivatePart is the exchange-internal side of a request, never shown
// to the client.
type PrivatePart struct {
	Token  string           `json:"token,omitempty"`
	Source string           `json:"source,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// NewPrivatePart returns the constructor default.
func NewPrivatePart() *PrivatePart {
	return &PrivatePart{Token: "USDT", Source: "Garantex"}
}

// Destination is the client-facing payout target of a request.
type Destination struct {
	Currency string `json:"currency,omitempty"`
	Amount   string `json:"amount,omitempty"`
}

// PaymentRequest is the replicated document. Every participant holds an
// identical copy; the contract overwrites all copies on every mutation.
type PaymentRequest struct {
	UID          string          `json:"uid"`
	ID           string          `json:"id,omitempty"`
	Description  string          `json:"description,omitempty"`
	Customer     string          `json:"customer"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Details      *PaymentDetails `json:"details"`
	Until        float64         `json:"until,omitempty"`
	Created      float64         `json:"created,omitempty"`
	Private      *PrivatePart    `json:"private,omitempty"`
	Destination  *Destination    `json:"destination,omitempty"`
	LinkedClient string          `json:"linked_client,omitempty"`
	Status       RequestStatus   `json:"status"`
}

// Normalize fills constructor defaults: created status and the private
// part.
func (r *PaymentRequest) Normalize() {
	if r.Status == "" {
		r.Status = StatusCreated
	}
	if r.Private == nil {
		r.Private = NewPrivatePart()
	}
}

// Validate checks required fields and fills defaults. It is called
// before the first write.
func (r *PaymentRequest) Validate() error {
	if r.UID == "" {
		return microledger.ValidationError{Field: "uid", Message: "is empty"}
	}
	if r.Customer == "" {
		return microledger.ValidationError{Field: "customer", Message: "is empty"}
	}
	if !r.Amount.IsPositive() {
		return microledger.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if r.Currency == "" {
		return microledger.ValidationError{Field: "currency", Message: "is empty"}
	}
	if r.Details == nil {
		return microledger.ValidationError{Field: "details", Message: "is empty"}
	}
	if err := r.Details.Validate(); err != nil {
		return err
	}
	r.Normalize()
	return nil
}

// MarshalPayload serializes the document into the payload persisted
// with each participant's record.
func (r *PaymentRequest) MarshalPayload() (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("paymentrequest: encode request %q: %w", r.UID, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("paymentrequest: encode request %q: %w", r.UID, err)
	}
	return payload, nil
}

// RequestFromPayload deserializes a persisted payload document back
// into a PaymentRequest.
func RequestFromPayload(payload map[string]any) (*PaymentRequest, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("paymentrequest: decode request: %w", err)
	}
	var r PaymentRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("paymentrequest: decode request: %w", err)
	}
	r.Normalize()
	return &r, nil
}
