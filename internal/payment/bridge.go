package payment

import (
	"context"
	"sync"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Cart is the part of the cart the bridge touches.
type Cart interface {
	Clear()
}

// Bridge turns provider UI events into a single order confirmation call.
// Each attempt, identified by its provider order id, is confirmed at most
// once; a failed confirmation is terminal.
type Bridge struct {
	confirmer Confirmer
	cart      Cart

	mu      sync.Mutex
	settled map[string]Result
}

// NewBridge creates a Bridge clearing cart on confirmed payments.
func NewBridge(confirmer Confirmer, cart Cart) *Bridge {
	return &Bridge{
		confirmer: confirmer,
		cart:      cart,
		settled:   make(map[string]Result),
	}
}

// Handle processes ev for the attempt h.
//
// Succeeded confirms the order once: on success the cart is cleared and the
// result is StateConfirmed; on any failure the cart is kept and the result
// is StateCapturedUnconfirmed with a *ConfirmationFailedError. Dismissed
// makes no call and leaves everything intact; the attempt stays open so the
// shopper can pay later.
func (b *Bridge) Handle(ctx context.Context, h Handle, ev Event) (Result, error) {
	switch ev := ev.(type) {
	case Dismissed:
		if err := b.open(h); err != nil {
			return Result{}, err
		}
		return Result{State: StateCancelled, OrderID: h.OrderID, Message: "Payment cancelled"}, nil
	case Succeeded:
		if ev.ProviderOrderID != h.ProviderOrderID || (ev.OrderID != "" && ev.OrderID != h.OrderID) {
			return Result{}, ErrHandleMismatch
		}
		return b.confirm(ctx, h, ev)
	default:
		return Result{}, ErrHandleMismatch
	}
}

// Settled returns the result of a settled attempt.
func (b *Bridge) Settled(providerOrderID string) (Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.settled[providerOrderID]
	return r, ok
}

func (b *Bridge) open(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, done := b.settled[h.ProviderOrderID]; done {
		return ErrAttemptClosed
	}
	return nil
}

func (b *Bridge) confirm(ctx context.Context, h Handle, ev Succeeded) (Result, error) {
	b.mu.Lock()
	if _, done := b.settled[h.ProviderOrderID]; done {
		b.mu.Unlock()
		return Result{}, ErrAttemptClosed
	}
	// Reserve the attempt so a concurrent callback cannot confirm twice.
	b.settled[h.ProviderOrderID] = Result{State: StateCapturedUnconfirmed, OrderID: h.OrderID, PaymentID: ev.PaymentID}
	b.mu.Unlock()

	err := b.confirmer.ConfirmPayment(ctx, Confirmation{
		OrderID:         h.OrderID,
		PaymentID:       ev.PaymentID,
		ProviderOrderID: ev.ProviderOrderID,
		Signature:       ev.Signature,
	})
	if err != nil {
		zctx.From(ctx).Error("Payment captured but order confirmation failed",
			zap.String("order_id", h.OrderID),
			zap.String("payment_id", ev.PaymentID),
			zap.String("provider_order_id", h.ProviderOrderID),
			zap.Error(err),
		)
		res := Result{
			State:     StateCapturedUnconfirmed,
			OrderID:   h.OrderID,
			PaymentID: ev.PaymentID,
			Message:   EscalationMessage(h.OrderID, ev.PaymentID),
		}
		b.store(h.ProviderOrderID, res)
		return res, &ConfirmationFailedError{OrderID: h.OrderID, PaymentID: ev.PaymentID, Cause: err}
	}

	if b.cart != nil {
		b.cart.Clear()
	}
	res := Result{
		State:     StateConfirmed,
		OrderID:   h.OrderID,
		PaymentID: ev.PaymentID,
		Message:   "Payment successful, order confirmed",
	}
	b.store(h.ProviderOrderID, res)
	return res, nil
}

func (b *Bridge) store(id string, r Result) {
	b.mu.Lock()
	b.settled[id] = r
	b.mu.Unlock()
}
