package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// ListOrders handles GET /orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := httpmiddleware.UserID(r.Context())
	list, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for i := range list {
			encodeOrder(e, &list[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), httpmiddleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, o)
}

// CancelOrder handles POST /orders/{id}/cancel {reason}. Only CONFIRMED
// orders can be cancelled.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var reason string
	if r.ContentLength != 0 {
		var err error
		if reason, err = decodeString(w, r, "reason"); err != nil {
			writeError(w, r, err)
			return
		}
	}
	o, err := h.orders.CancelOrder(r.Context(), httpmiddleware.UserID(r.Context()), chi.URLParam(r, "id"), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, o)
}

func writeOrder(w http.ResponseWriter, o *order.Order) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ValidateCoupon handles POST /coupons/validate {code, totalAmount}. It
// only checks the coupon; nothing is applied or redeemed.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		code   string
		amount decimal.Decimal
	)
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "code":
			code, err = d.Str()
		case "totalAmount":
			amount, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	var res *coupon.Result
	if code == "" {
		res = &coupon.Result{Message: coupon.MsgInvalid}
	} else {
		var err error
		if res, err = h.coupons.Validate(r.Context(), code, amount); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCouponResult(e, res) })
}
