package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when an order does not exist or belongs to
	// another shopper.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when an order's status changed concurrently.
	ErrConflict = errors.New("order status changed concurrently")
)

// RejectedError reports an order operation refused on business grounds.
// Message is shopper-facing. Two RejectedErrors match under errors.Is when
// their codes are equal, so the package-level values below work as sentinels.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// Is implements errors.Is matching by code.
func (e *RejectedError) Is(target error) bool {
	t, ok := target.(*RejectedError)
	return ok && t.Code == e.Code
}

func reject(code, format string, args ...any) *RejectedError {
	return &RejectedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Rejection codes.
var (
	ErrEmptyItems           = &RejectedError{Code: "empty_items", Message: "items required"}
	ErrInvalidQuantity      = &RejectedError{Code: "invalid_quantity", Message: "quantity must be greater than 0"}
	ErrInvalidPaymentMethod = &RejectedError{Code: "invalid_payment_method", Message: "payment method must be COD or ONLINE"}
	ErrMissingAddress       = &RejectedError{Code: "missing_address", Message: "shipping address required"}
	ErrMissingUser          = &RejectedError{Code: "missing_user", Message: "user required"}
	ErrProductNotFound      = &RejectedError{Code: "product_not_found", Message: "product not found"}
	ErrOutOfStock           = &RejectedError{Code: "out_of_stock", Message: "not enough stock"}
	ErrPriceChanged         = &RejectedError{Code: "price_changed", Message: "price has changed"}
	ErrCouponRejected       = &RejectedError{Code: "coupon_rejected", Message: "coupon rejected"}
	ErrTotalMismatch        = &RejectedError{Code: "total_mismatch", Message: "order total has changed, please review your order"}
	ErrNotCancellable       = &RejectedError{Code: "not_cancellable", Message: "only confirmed orders can be cancelled"}
	ErrNotPending           = &RejectedError{Code: "not_pending", Message: "order is not awaiting payment"}
	ErrPaymentMismatch      = &RejectedError{Code: "payment_mismatch", Message: "payment does not belong to this order"}
	ErrInvalidSignature     = &RejectedError{Code: "invalid_signature", Message: "payment signature verification failed"}
)
