// Package masspayment implements the mass-payment micro-ledger: a typed
// event log replicated to every participant, with dedup keys, a
// latest-status projection and deposit aggregation.
package masspayment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	microledger "github.com/RuSwift/microledger"
	"github.com/RuSwift/microledger/id"
)

// ID is the ledger id shared by all mass-payment instances.
const ID = "mass-payment"

// NewUID returns a fresh message uid.
func NewUID() string {
	return id.NewPaymentID().String()
}

// MessageType discriminates the message union.
type MessageType string

// Message types.
const (
	TypePayout     MessageType = "payout"
	TypeStatus     MessageType = "status"
	TypeAttachment MessageType = "attachment"
	TypeDeposit    MessageType = "deposit"
)

// Status values of a payment. The flow is advisory, not enforced by the
// ledger: pending → processing → success/error, with attachment and
// correction allowed to recur without terminating the flow.
type Status string

// Payment statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusAttachment Status = "attachment"
	StatusCorrection Status = "correction"
)

// CanFollow reports whether s is an allowed successor of prev in the
// advisory status flow.
func (s Status) CanFollow(prev Status) bool {
	switch prev {
	case StatusPending:
		return s == StatusProcessing
	case StatusProcessing, StatusAttachment, StatusCorrection:
		switch s {
		case StatusSuccess, StatusError, StatusAttachment, StatusCorrection:
			return true
		}
		return false
	default:
		// success and error terminate the flow
		return false
	}
}

// Customer identifies the payee.
type Customer struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Locale      string `json:"locale,omitempty"`
	IP          string `json:"ip,omitempty"`
}

// Transaction carries the monetary side of a message.
type Transaction struct {
	OrderID       string          `json:"order_id"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Address       string          `json:"address,omitempty"`
	PayMethodCode string          `json:"pay_method_code,omitempty"`
}

// Card is the destination card of a payout.
type Card struct {
	Number         string `json:"number"`
	ExpirationDate string `json:"expiration_date"`
}

// PaymentStatus is the processing state attached to a message. For
// deposit updates Payload doubles as an attachment carrier under the
// "attachments" key.
type PaymentStatus struct {
	Type         string           `json:"type"`
	Status       Status           `json:"status"`
	Error        bool             `json:"error,omitempty"`
	Sandbox      bool             `json:"sandbox,omitempty"`
	Earned       *decimal.Decimal `json:"earned,omitempty"`
	ResponseCode int              `json:"response_code,omitempty"`
	Payload      map[string]any   `json:"payload,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// NewPaymentStatus returns the constructor default: a pending payout
// status.
func NewPaymentStatus() *PaymentStatus {
	return &PaymentStatus{Type: "payout", Status: StatusPending}
}

// Proof is an external evidence attachment.
type Proof struct {
	URL      string `json:"url,omitempty"`
	Base64   string `json:"base64,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Message is the tagged union written to the mass-payment ledger.
//
// Required fields depend on Type:
//   - payout: Transaction, Customer and Card
//   - status, attachment: Status
//   - deposit: none beyond UID; Transaction carries amount/currency and
//     Status is used purely as a payload carrier for attachments
type Message struct {
	UID         string         `json:"uid"`
	Type        MessageType    `json:"type"`
	Transaction *Transaction   `json:"transaction,omitempty"`
	Customer    *Customer      `json:"customer,omitempty"`
	Card        *Card          `json:"card,omitempty"`
	Proof       *Proof         `json:"proof,omitempty"`
	Status      *PaymentStatus `json:"status,omitempty"`
	UTC         *time.Time     `json:"utc,omitempty"`
}

// Normalize fills constructor defaults: payout type and pending status.
func (m *Message) Normalize() {
	if m.Type == "" {
		m.Type = TypePayout
	}
	if m.Status == nil {
		m.Status = NewPaymentStatus()
	}
}

// Validate checks required-field presence for the message type and
// fills defaults. It is called before any write is attempted.
func (m *Message) Validate() error {
	if m.UID == "" {
		return microledger.ValidationError{Field: "uid", Message: "is empty"}
	}

	var required []struct {
		name  string
		empty bool
	}
	switch m.Type {
	case TypePayout, "":
		required = []struct {
			name  string
			empty bool
		}{
			{"transaction", m.Transaction == nil},
			{"customer", m.Customer == nil},
			{"card", m.Card == nil},
		}
	case TypeStatus, TypeAttachment:
		required = []struct {
			name  string
			empty bool
		}{
			{"status", m.Status == nil},
		}
	case TypeDeposit:
	default:
		return microledger.ValidationError{Field: "type", Message: fmt.Sprintf("unknown message type %q", m.Type)}
	}

	for _, attr := range required {
		if attr.empty {
			return microledger.ValidationError{Field: attr.name, Message: "is empty"}
		}
	}

	m.Normalize()
	return nil
}

// Attachments returns the attachments carried in the status payload.
func (m *Message) Attachments() []any {
	if m.Status == nil || m.Status.Payload == nil {
		return nil
	}
	atts, _ := m.Status.Payload["attachments"].([]any)
	return atts
}

// MarshalPayload serializes the message into the payload document
// persisted with a transaction.
func (m *Message) MarshalPayload() (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("masspayment: encode message %q: %w", m.UID, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("masspayment: encode message %q: %w", m.UID, err)
	}
	return payload, nil
}

// MessageFromPayload deserializes a persisted payload document back
// into a Message.
func MessageFromPayload(payload map[string]any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("masspayment: decode message: %w", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("masspayment: decode message: %w", err)
	}
	m.Normalize()
	return &m, nil
}
