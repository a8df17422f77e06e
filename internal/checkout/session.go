// Package checkout walks a shopper from cart to placed order: address
// selection, order summary, payment method, coupon and order placement.
package checkout

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/payment"
)

// Stage is a checkout step.
type Stage string

const (
	StageAddress Stage = "ADDRESS_SELECTION"
	StageSummary Stage = "SUMMARY"
	StagePayment Stage = "PAYMENT"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s == StageAddress || s == StageSummary || s == StagePayment
}

// Session is one shopper's checkout context. All orchestrator operations
// take it explicitly; it holds no references to global state.
type Session struct {
	UserID string
	Cart   *cart.Store

	bridge *payment.Bridge

	mu            sync.Mutex
	addresses     []address.Address
	selectedID    string
	paymentMethod order.PaymentMethod
	applied       *coupon.Application
	couponInput   string
	stage         Stage
	pending       *payment.Handle
	lastPayment   *payment.Result
	placing       bool
	validating    bool
	couponStale   atomic.Bool
}

func newSession(userID string, c *cart.Store, addrs []address.Address, confirmer payment.Confirmer) *Session {
	s := &Session{
		UserID:    userID,
		Cart:      c,
		addresses: addrs,
		stage:     StageAddress,
	}
	s.bridge = payment.NewBridge(confirmer, c)
	for _, a := range addrs {
		if a.IsDefault {
			s.selectedID = a.ID
		}
	}
	c.OnChange(func() {
		s.couponStale.Store(true)
	})
	return s
}

// Close flushes the session's cart persistence.
func (s *Session) Close(ctx context.Context) error {
	return s.Cart.Close(ctx)
}

// Totals is the derived pricing of the current checkout state.
type Totals struct {
	Subtotal       decimal.Decimal
	ShippingCharge decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
}

// View is a read-only snapshot of a session.
type View struct {
	Stage             Stage
	Lines             []cart.Line
	Addresses         []address.Address
	SelectedAddressID string
	PaymentMethod     order.PaymentMethod
	Coupon            *coupon.Application
	CouponInput       string
	CouponStale       bool
	Totals            Totals
	PendingPayment    *payment.Handle
	LastPayment       *payment.Result
	Placing           bool
}

func (s *Session) selectedLocked() (address.Address, bool) {
	if s.selectedID == "" {
		return address.Address{}, false
	}
	for _, a := range s.addresses {
		if a.ID == s.selectedID {
			return a, true
		}
	}
	return address.Address{}, false
}

// resetLocked returns the session to its initial stage after an order has
// been handed off. The address selection is kept for the next checkout.
func (s *Session) resetLocked() {
	s.stage = StageAddress
	s.paymentMethod = ""
	s.applied = nil
	s.couponInput = ""
	s.pending = nil
}
