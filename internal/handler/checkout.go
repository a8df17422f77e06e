package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/payment"
)

// decodeString decodes a body holding a single string field.
func decodeString(w http.ResponseWriter, r *http.Request, name string) (string, error) {
	var v string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		if key != name {
			return d.Skip()
		}
		v, err = d.Str()
		return err
	})
	return v, err
}

func (h *Handler) writeView(w http.ResponseWriter, s *checkout.Session) {
	v := h.checkout.View(s)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeView(e, v) })
}

// GetCheckout handles GET /checkout.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	h.writeView(w, s)
}

// OpenStage handles POST /checkout/stage {stage}.
func (h *Handler) OpenStage(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	stage, err := decodeString(w, r, "stage")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.checkout.Open(s, checkout.Stage(strings.ToUpper(stage))); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeView(w, s)
}

// SelectAddress handles POST /checkout/address {addressId}.
func (h *Handler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	id, err := decodeString(w, r, "addressId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.checkout.SelectAddress(s, id); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeView(w, s)
}

// SelectPaymentMethod handles POST /checkout/payment-method {paymentMethod}
// and responds with the recomputed totals.
func (h *Handler) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	m, err := decodeString(w, r, "paymentMethod")
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.checkout.SelectPaymentMethod(s, order.PaymentMethod(strings.ToUpper(m)))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTotals(e, t) })
}

// ApplyCoupon handles POST /checkout/coupon {code}.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	code, err := decodeString(w, r, "code")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(code) == "" {
		writeError(w, r, &checkout.ValidationError{Field: "code", Message: "please enter a coupon code"})
		return
	}

	app, err := h.checkout.ApplyCoupon(r.Context(), s, code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t := h.checkout.Totals(s)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("coupon")
		encodeApplication(e, app)
		e.FieldStart("totals")
		encodeTotals(e, t)
		e.ObjEnd()
	})
}

// RemoveCoupon handles DELETE /checkout/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	t := h.checkout.RemoveCoupon(s)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTotals(e, t) })
}

// PlaceOrder handles POST /checkout/place-order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	out, err := h.checkout.PlaceOrder(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOutcome(e, out) })
}

// PaymentCallback handles POST /checkout/payment/callback
// {orderId, paymentId, providerOrderId, signature}, the provider's success
// callback. orderId lets the payment be confirmed even when the session no
// longer holds the pending handle.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	var ev payment.Succeeded
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "orderId":
			ev.OrderID, err = d.Str()
		case "paymentId":
			ev.PaymentID, err = d.Str()
		case "providerOrderId":
			ev.ProviderOrderID, err = d.Str()
		case "signature":
			ev.Signature, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	h.handlePayment(w, r, s, ev)
}

// PaymentDismiss handles POST /checkout/payment/dismiss. The order stays
// pending and the shopper may retry.
func (h *Handler) PaymentDismiss(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.session(w, r)
	if !ok {
		return
	}
	defer release()
	h.handlePayment(w, r, s, payment.Dismissed{})
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request, s *checkout.Session, ev payment.Event) {
	res, err := h.checkout.HandlePayment(r.Context(), s, ev)
	if errors.Is(err, payment.ErrCapturedUnconfirmed) {
		zctx.From(r.Context()).Error("Payment captured but not confirmed",
			zap.String("order_id", res.OrderID),
			zap.String("payment_id", res.PaymentID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, func(e *jx.Encoder) {
			e.ObjStart()
			str(e, "code", "payment_unconfirmed")
			str(e, "message", res.Message)
			e.FieldStart("result")
			encodeResult(e, &res)
			e.ObjEnd()
		})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeResult(e, &res) })
}
