package checkout

import "github.com/go-faster/errors"

var (
	// ErrStageLocked is returned when a stage is opened before its
	// prerequisites are met.
	ErrStageLocked = errors.New("select a delivery address first")
	// ErrOrderInFlight is returned when an order placement is already
	// running for the session.
	ErrOrderInFlight = errors.New("order placement already in progress")
	// ErrCouponInFlight is returned when a coupon validation is already
	// running for the session.
	ErrCouponInFlight = errors.New("coupon validation already in progress")
	// ErrNoPendingPayment is returned for a payment event when the session
	// is not waiting for a payment.
	ErrNoPendingPayment = errors.New("no payment awaiting confirmation")
)

// ValidationError is a local precondition failure detected before any
// network call. Message is shopper-facing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RejectedError is a collaborator refusal (or a transport failure treated
// as one). Message is surfaced to the shopper verbatim; session state is
// left as it was before the call.
type RejectedError struct {
	Message string
	Cause   error
}

func (e *RejectedError) Error() string {
	return e.Message
}

func (e *RejectedError) Unwrap() error {
	return e.Cause
}
