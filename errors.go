package microledger

import (
	"errors"
	"fmt"

	"github.com/RuSwift/microledger/store"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound       = errors.New("microledger: not found")
	ErrNoIdentity     = errors.New("microledger: identity is empty")
	ErrNotImplemented = errors.New("microledger: not implemented")

	// Propagation errors
	ErrPropagation = errors.New("microledger: propagation failed")

	// Payment-request errors
	ErrUnboundLedger    = errors.New("microledger: payment-request ledger must be bound to a uid")
	ErrClientLinked     = errors.New("microledger: a client is already linked to this request")
	ErrNoPaymentDetails = errors.New("microledger: payment details are empty")
	ErrNoPaymentTTL     = errors.New("microledger: payment details carry no ttl")
)

// ValidationError reports a malformed message or document, raised before
// any write is attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("microledger: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error from either
// the ledger layer or the record store.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, store.ErrNotFound)
}

// IsValidation returns true if the error is a validation error.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
