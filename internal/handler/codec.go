package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/checkout"
	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/payment"
)

const maxBodyBytes = 64 << 10

// errMalformed wraps request decoding failures; they map to 400.
var errMalformed = errors.New("malformed request body")

// decodeBody decodes a JSON object body, calling field for each key.
// Unknown keys must be skipped by field.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if err := field(d, key); err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	}); err != nil {
		return errors.Wrap(errMalformed, err.Error())
	}
	return nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.New("expected number")
	}
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// Money is encoded as a string with two decimals, e.g. "1049.00".
func money(e *jx.Encoder, name string, d decimal.Decimal) {
	e.FieldStart(name)
	e.Str(d.StringFixed(2))
}

func str(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func timestamp(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeLine(e *jx.Encoder, l cart.Line) {
	e.ObjStart()
	str(e, "key", l.Key().String())
	str(e, "productId", l.ProductID)
	str(e, "name", l.Name)
	str(e, "size", l.Size)
	str(e, "color", l.Color)
	str(e, "batchNo", l.BatchNo)
	money(e, "unitPrice", l.UnitPrice)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("stockCeiling")
	e.Int(l.StockCeiling)
	money(e, "total", l.Total())
	e.ObjEnd()
}

func encodeLines(e *jx.Encoder, lines []cart.Line) {
	e.ArrStart()
	for _, l := range lines {
		encodeLine(e, l)
	}
	e.ArrEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Store) {
	e.ObjStart()
	e.FieldStart("lines")
	encodeLines(e, c.Lines())
	e.FieldStart("count")
	e.Int(c.Count())
	money(e, "subtotal", c.Subtotal())
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a address.Address) {
	e.ObjStart()
	str(e, "id", a.ID)
	str(e, "name", a.Name)
	str(e, "mobile", a.Mobile)
	str(e, "pincode", a.Pincode)
	str(e, "area", a.Area)
	str(e, "city", a.City)
	str(e, "state", a.State)
	str(e, "addressType", string(a.AddressType))
	e.FieldStart("isDefault")
	e.Bool(a.IsDefault)
	timestamp(e, "createdAt", a.CreatedAt)
	e.ObjEnd()
}

func encodeAddresses(e *jx.Encoder, list []address.Address) {
	e.ArrStart()
	for _, a := range list {
		encodeAddress(e, a)
	}
	e.ArrEnd()
}

func encodeTotals(e *jx.Encoder, t checkout.Totals) {
	e.ObjStart()
	money(e, "subtotal", t.Subtotal)
	money(e, "shippingCharge", t.ShippingCharge)
	money(e, "discountAmount", t.DiscountAmount)
	money(e, "total", t.Total)
	e.ObjEnd()
}

func encodeApplication(e *jx.Encoder, a *coupon.Application) {
	if a == nil {
		e.Null()
		return
	}
	e.ObjStart()
	str(e, "couponId", a.CouponID)
	str(e, "code", a.Code)
	money(e, "discountAmount", a.DiscountAmount)
	e.ObjEnd()
}

func encodeHandle(e *jx.Encoder, h *payment.Handle) {
	if h == nil {
		e.Null()
		return
	}
	e.ObjStart()
	str(e, "orderId", h.OrderID)
	str(e, "providerOrderId", h.ProviderOrderID)
	e.FieldStart("amount")
	e.Int64(h.Amount)
	str(e, "currency", h.Currency)
	str(e, "keyId", h.KeyID)
	str(e, "name", h.Name)
	str(e, "mobile", h.Mobile)
	e.ObjEnd()
}

func encodeResult(e *jx.Encoder, r *payment.Result) {
	if r == nil {
		e.Null()
		return
	}
	e.ObjStart()
	str(e, "state", string(r.State))
	str(e, "orderId", r.OrderID)
	if r.PaymentID != "" {
		str(e, "paymentId", r.PaymentID)
	}
	if r.Message != "" {
		str(e, "message", r.Message)
	}
	e.ObjEnd()
}

func encodeView(e *jx.Encoder, v checkout.View) {
	e.ObjStart()
	str(e, "stage", string(v.Stage))
	e.FieldStart("lines")
	encodeLines(e, v.Lines)
	e.FieldStart("addresses")
	encodeAddresses(e, v.Addresses)
	str(e, "selectedAddressId", v.SelectedAddressID)
	str(e, "paymentMethod", string(v.PaymentMethod))
	e.FieldStart("coupon")
	encodeApplication(e, v.Coupon)
	str(e, "couponInput", v.CouponInput)
	e.FieldStart("couponStale")
	e.Bool(v.CouponStale)
	e.FieldStart("totals")
	encodeTotals(e, v.Totals)
	e.FieldStart("pendingPayment")
	encodeHandle(e, v.PendingPayment)
	e.FieldStart("lastPayment")
	encodeResult(e, v.LastPayment)
	e.FieldStart("placing")
	e.Bool(v.Placing)
	e.ObjEnd()
}

func encodeOutcome(e *jx.Encoder, o *checkout.Outcome) {
	e.ObjStart()
	str(e, "kind", string(o.Kind))
	str(e, "orderId", o.OrderID)
	str(e, "message", o.Message)
	e.FieldStart("payment")
	encodeHandle(e, o.Payment)
	e.ObjEnd()
}

func encodeMilestones(e *jx.Encoder, steps []order.Milestone) {
	e.ArrStart()
	for _, m := range steps {
		e.ObjStart()
		str(e, "status", string(m.Status))
		e.FieldStart("completed")
		e.Bool(m.Completed)
		timestamp(e, "at", m.At)
		if m.Note != "" {
			str(e, "note", m.Note)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}

// encodeOrder writes o with its display timeline and action gates.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	str(e, "id", o.ID)
	str(e, "status", string(o.Status))
	timestamp(e, "createdAt", o.CreatedAt)
	timestamp(e, "updatedAt", o.UpdatedAt)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		str(e, "productId", it.ProductID)
		str(e, "name", it.Name)
		money(e, "price", it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		str(e, "size", it.Size)
		str(e, "color", it.Color)
		str(e, "batchNo", it.BatchNo)
		e.ObjEnd()
	}
	e.ArrEnd()

	money(e, "subtotal", o.Subtotal)
	money(e, "shippingCharge", o.ShippingCharge)
	money(e, "discountAmount", o.DiscountAmount)
	money(e, "totalAmount", o.TotalAmount)
	str(e, "paymentMethod", string(o.PaymentMethod))
	if o.CouponCode != "" {
		str(e, "couponCode", o.CouponCode)
	}
	str(e, "shippingAddress", o.ShippingAddress)

	e.FieldStart("address")
	e.ObjStart()
	str(e, "name", o.Address.Name)
	str(e, "mobile", o.Address.Mobile)
	str(e, "pincode", o.Address.Pincode)
	str(e, "area", o.Address.Area)
	str(e, "city", o.Address.City)
	str(e, "state", o.Address.State)
	str(e, "addressType", o.Address.AddressType)
	e.ObjEnd()

	if o.AWB != "" {
		str(e, "awb", o.AWB)
	}
	if o.CancelReason != "" {
		str(e, "cancelReason", o.CancelReason)
	}

	e.FieldStart("timeline")
	encodeMilestones(e, order.Timeline(o.TrackingSteps))

	a := order.ActionsFor(o)
	e.FieldStart("actions")
	e.ObjStart()
	e.FieldStart("cancel")
	e.Bool(a.Cancel)
	e.FieldStart("track")
	e.Bool(a.Track)
	e.FieldStart("downloadReceipt")
	e.Bool(a.DownloadReceipt)
	e.FieldStart("return")
	e.Bool(a.Return)
	if a.Badge != "" {
		str(e, "badge", string(a.Badge))
	}
	e.ObjEnd()

	e.ObjEnd()
}

func encodeCouponResult(e *jx.Encoder, r *coupon.Result) {
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(r.Valid)
	e.FieldStart("coupon")
	if r.Coupon == nil {
		e.Null()
	} else {
		e.ObjStart()
		str(e, "id", r.Coupon.ID)
		str(e, "code", r.Coupon.Code)
		str(e, "type", string(r.Coupon.Type))
		money(e, "value", r.Coupon.Value)
		e.ObjEnd()
	}
	money(e, "discountAmount", r.DiscountAmount)
	str(e, "message", r.Message)
	e.ObjEnd()
}
