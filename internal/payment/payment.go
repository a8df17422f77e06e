// Package payment reconciles payment provider callbacks with order
// confirmation and talks to payment providers.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrAttemptClosed is returned when an event arrives for a payment
	// attempt that already settled.
	ErrAttemptClosed = errors.New("payment attempt already settled")
	// ErrHandleMismatch is returned when an event names a different provider
	// order than the handle it is delivered for.
	ErrHandleMismatch = errors.New("payment event does not match handle")
	// ErrCapturedUnconfirmed marks a payment the provider captured but the
	// order confirmation failed for. It is never retried automatically.
	ErrCapturedUnconfirmed = errors.New("payment captured but order confirmation failed")
)

// Handle is the payment-initiation handle for an online order. It carries
// everything the provider UI needs.
type Handle struct {
	OrderID         string
	ProviderOrderID string
	// Amount is in minor currency units.
	Amount   int64
	Currency string
	KeyID    string
	Name     string
	Mobile   string
}

// Event is a message from the provider UI adapter.
type Event interface {
	event()
}

// Succeeded is the provider's success callback. OrderID is the backend
// order the payment was started for; it may be empty when the callback is
// delivered for a known handle.
type Succeeded struct {
	OrderID         string
	PaymentID       string
	ProviderOrderID string
	Signature       string
}

// Dismissed is sent when the shopper closes the provider UI without paying.
type Dismissed struct{}

func (Succeeded) event() {}
func (Dismissed) event() {}

// State is the settled state of a payment attempt.
type State string

const (
	StateConfirmed           State = "confirmed"
	StateCancelled           State = "cancelled"
	StateCapturedUnconfirmed State = "captured_unconfirmed"
)

// Result describes how a payment event was settled.
type Result struct {
	State     State
	OrderID   string
	PaymentID string
	Message   string
}

// Confirmation is the confirm call made after a provider success callback.
type Confirmation struct {
	OrderID         string
	PaymentID       string
	ProviderOrderID string
	Signature       string
}

// Confirmer finalizes an order after payment.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, c Confirmation) error
}

// ConfirmationFailedError reports a captured payment whose order could not
// be confirmed. It matches ErrCapturedUnconfirmed.
type ConfirmationFailedError struct {
	OrderID   string
	PaymentID string
	Cause     error
}

func (e *ConfirmationFailedError) Error() string {
	return fmt.Sprintf("payment %s captured but order %s confirmation failed: %v", e.PaymentID, e.OrderID, e.Cause)
}

func (e *ConfirmationFailedError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is.
func (e *ConfirmationFailedError) Is(target error) bool {
	return target == ErrCapturedUnconfirmed
}

// EscalationMessage is the shopper-facing text for a captured but
// unconfirmed payment.
func EscalationMessage(orderID, paymentID string) string {
	return fmt.Sprintf(
		"Your payment %s was received but we could not confirm order %s. Please contact support with these references; do not pay again.",
		paymentID, orderID,
	)
}
