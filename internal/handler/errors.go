package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/checkout"
	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/payment"
)

// apiError is the {code, message[, field]} error body.
type apiError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

// classify maps a domain error to its HTTP representation.
func classify(err error) apiError {
	var (
		cartErr  *cart.ValidationError
		addrErr  *address.ValidationError
		checkErr *checkout.ValidationError
		rejected *checkout.RejectedError
		orderRej *order.RejectedError
	)
	switch {
	case errors.Is(err, errMalformed):
		return apiError{Status: http.StatusBadRequest, Code: "bad_request", Message: err.Error()}
	case errors.As(err, &cartErr):
		return apiError{Status: http.StatusUnprocessableEntity, Code: "validation", Message: cartErr.Message, Field: cartErr.Field}
	case errors.As(err, &addrErr):
		return apiError{Status: http.StatusUnprocessableEntity, Code: "validation", Message: addrErr.Message, Field: addrErr.Field}
	case errors.As(err, &checkErr):
		return apiError{Status: http.StatusUnprocessableEntity, Code: "validation", Message: checkErr.Message, Field: checkErr.Field}
	case errors.Is(err, checkout.ErrStageLocked):
		return apiError{Status: http.StatusUnprocessableEntity, Code: "stage_locked", Message: err.Error()}
	case errors.As(err, &rejected):
		return apiError{Status: http.StatusUnprocessableEntity, Code: "rejected", Message: rejected.Message}
	case errors.Is(err, checkout.ErrOrderInFlight),
		errors.Is(err, checkout.ErrCouponInFlight):
		return apiError{Status: http.StatusConflict, Code: "in_flight", Message: err.Error()}
	case errors.Is(err, checkout.ErrNoPendingPayment),
		errors.Is(err, payment.ErrAttemptClosed),
		errors.Is(err, order.ErrConflict):
		return apiError{Status: http.StatusConflict, Code: "conflict", Message: err.Error()}
	case errors.Is(err, payment.ErrHandleMismatch):
		return apiError{Status: http.StatusUnprocessableEntity, Code: "payment_mismatch", Message: err.Error()}
	case errors.As(err, &orderRej):
		return apiError{Status: http.StatusUnprocessableEntity, Code: orderRej.Code, Message: orderRej.Message}
	case errors.Is(err, product.ErrVariantNotFound):
		return apiError{Status: http.StatusUnprocessableEntity, Code: "validation", Message: "this variant is not available", Field: "size"}
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, address.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, errLineNotFound):
		return apiError{Status: http.StatusNotFound, Code: "not_found", Message: err.Error()}
	}
	return apiError{Status: http.StatusInternalServerError, Code: "internal", Message: "internal server error"}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, e.Status, func(enc *jx.Encoder) {
		enc.ObjStart()
		str(enc, "code", e.Code)
		str(enc, "message", e.Message)
		if e.Field != "" {
			str(enc, "field", e.Field)
		}
		enc.ObjEnd()
	})
}
