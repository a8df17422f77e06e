// Package handler exposes the storefront over HTTP with chi.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Sessions resolves the checkout session of a shopper. The session stays
// open until release is called.
type Sessions interface {
	Acquire(ctx context.Context, userID string) (s *checkout.Session, release func(), err error)
}

// Orders reads and cancels a shopper's orders.
type Orders interface {
	Get(ctx context.Context, userID, orderID string) (*order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	CancelOrder(ctx context.Context, userID, orderID, reason string) (*order.Order, error)
}

// CouponValidator is the coupon validation contract.
type CouponValidator interface {
	Validate(ctx context.Context, code string, amount decimal.Decimal) (*coupon.Result, error)
}

// Handler serves the storefront API.
type Handler struct {
	sessions Sessions
	checkout *checkout.Orchestrator
	products product.Repository
	orders   Orders
	coupons  CouponValidator
}

// New creates a Handler.
func New(
	sessions Sessions,
	orch *checkout.Orchestrator,
	products product.Repository,
	orders Orders,
	coupons CouponValidator,
) *Handler {
	return &Handler{
		sessions: sessions,
		checkout: orch,
		products: products,
		orders:   orders,
		coupons:  coupons,
	}
}

// Routes returns the API routes. They expect an authenticated shopper in
// the request context (see httpmiddleware.Auth).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/lines", h.AddLine)
		r.Put("/lines/{key}", h.SetLineQuantity)
		r.Delete("/lines/{key}", h.RemoveLine)
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Get("/", h.GetCheckout)
		r.Post("/stage", h.OpenStage)
		r.Post("/address", h.SelectAddress)
		r.Post("/payment-method", h.SelectPaymentMethod)
		r.Post("/coupon", h.ApplyCoupon)
		r.Delete("/coupon", h.RemoveCoupon)
		r.Post("/place-order", h.PlaceOrder)
		r.Post("/payment/callback", h.PaymentCallback)
		r.Post("/payment/dismiss", h.PaymentDismiss)
	})

	r.Route("/addresses", func(r chi.Router) {
		r.Get("/", h.ListAddresses)
		r.Post("/", h.AddAddress)
		r.Put("/{id}", h.EditAddress)
		r.Delete("/{id}", h.DeleteAddress)
		r.Post("/{id}/default", h.SetDefaultAddress)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/cancel", h.CancelOrder)
	})

	r.Post("/coupons/validate", h.ValidateCoupon)
	return r
}

// session returns the caller's checkout session and its release func,
// writing the error response itself when it cannot.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*checkout.Session, func(), bool) {
	userID := httpmiddleware.UserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, func(e *jx.Encoder) {
			e.ObjStart()
			str(e, "code", "unauthorized")
			str(e, "message", "authentication required")
			e.ObjEnd()
		})
		return nil, nil, false
	}
	s, release, err := h.sessions.Acquire(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return nil, nil, false
	}
	return s, release, true
}
