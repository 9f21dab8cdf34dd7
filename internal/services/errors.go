// Package services defines the business logic for idempotent execution,
// ledger posting, payment intents, and customers. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Idempotency-related errors.
var (
	// ErrMissingIdempotencyKey is returned when a mutating call omits the
	// required Idempotency-Key header. Never retried internally.
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")

	// ErrIdempotencyKeyConflict is returned when an idempotency key is reused
	// with a different request payload. The original completed operation is
	// left untouched.
	ErrIdempotencyKeyConflict = errors.New("idempotency key reused with a different request payload")
)

// Resource errors.
var (
	// ErrCustomerNotFound indicates that the requested customer does not exist
	// or belongs to another merchant.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrPaymentIntentNotFound indicates that the requested payment intent
	// does not exist or belongs to another merchant.
	ErrPaymentIntentNotFound = errors.New("payment intent not found")

	// ErrJournalEntryNotFound indicates that the requested journal entry does
	// not exist or belongs to another merchant.
	ErrJournalEntryNotFound = errors.New("journal entry not found")

	// ErrInvalidAmount is returned when a payment amount is not a positive
	// integer in minor units.
	ErrInvalidAmount = errors.New("amount must be a positive integer in minor units")

	// ErrInvalidCurrency is returned when a currency code is not a valid
	// ISO 4217 unit.
	ErrInvalidCurrency = errors.New("currency must be a valid ISO 4217 code")

	// ErrIntentNotCapturable is returned when a capture is attempted on an
	// intent that is not awaiting confirmation.
	ErrIntentNotCapturable = errors.New("payment intent cannot be captured in its current status")
)

// LedgerInvariantError reports a violated double-entry invariant: unbalanced
// or invalid lines supplied by a caller, or stored data found internally
// inconsistent by the audit path. It is never silently coerced (no plug
// lines are ever inserted to force balance).
type LedgerInvariantError struct {
	Reason      string
	DebitTotal  int64
	CreditTotal int64
}

// Error implements the error interface. When totals are relevant the
// message identifies both sides.
func (e *LedgerInvariantError) Error() string {
	if e.DebitTotal != 0 || e.CreditTotal != 0 {
		return fmt.Sprintf("%s: debits=%d, credits=%d", e.Reason, e.DebitTotal, e.CreditTotal)
	}
	return e.Reason
}

// IsLedgerInvariantViolation reports whether err is a LedgerInvariantError.
func IsLedgerInvariantViolation(err error) bool {
	var li *LedgerInvariantError
	return errors.As(err, &li)
}
