package payment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockConfirmer struct {
	mu    sync.Mutex
	calls []Confirmation
	err   error
}

func (m *mockConfirmer) ConfirmPayment(_ context.Context, c Confirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return m.err
}

type mockCart struct {
	cleared atomic.Int32
}

func (m *mockCart) Clear() {
	m.cleared.Add(1)
}

// --- Helpers ---

func testHandle() Handle {
	return Handle{
		OrderID:         "o1",
		ProviderOrderID: "order_abc",
		Amount:          104900,
		Currency:        "INR",
	}
}

func success() Succeeded {
	return Succeeded{PaymentID: "pay_1", ProviderOrderID: "order_abc", Signature: "sig"}
}

// --- Tests ---

func TestBridge_SuccessConfirmsAndClearsCart(t *testing.T) {
	c := &mockConfirmer{}
	cart := &mockCart{}
	b := NewBridge(c, cart)

	res, err := b.Handle(context.Background(), testHandle(), success())
	require.NoError(t, err)

	assert.Equal(t, StateConfirmed, res.State)
	assert.Equal(t, "o1", res.OrderID)
	assert.Equal(t, "pay_1", res.PaymentID)
	assert.Equal(t, int32(1), cart.cleared.Load())
	require.Len(t, c.calls, 1)
	assert.Equal(t, Confirmation{
		OrderID:         "o1",
		PaymentID:       "pay_1",
		ProviderOrderID: "order_abc",
		Signature:       "sig",
	}, c.calls[0])
}

func TestBridge_ConfirmationFailureIsCapturedUnconfirmed(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "rejected", err: errors.New("payment signature verification failed")},
		{name: "transport", err: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &mockConfirmer{err: tt.err}
			cart := &mockCart{}
			b := NewBridge(c, cart)

			res, err := b.Handle(context.Background(), testHandle(), success())

			require.ErrorIs(t, err, ErrCapturedUnconfirmed)
			require.ErrorIs(t, err, tt.err)
			var cfErr *ConfirmationFailedError
			require.ErrorAs(t, err, &cfErr)
			assert.Equal(t, "o1", cfErr.OrderID)
			assert.Equal(t, "pay_1", cfErr.PaymentID)

			assert.Equal(t, StateCapturedUnconfirmed, res.State)
			assert.Contains(t, res.Message, "o1")
			assert.Contains(t, res.Message, "pay_1")
			assert.Zero(t, cart.cleared.Load(), "cart must survive a failed confirmation")
		})
	}
}

func TestBridge_NoRetryAfterSettlement(t *testing.T) {
	c := &mockConfirmer{err: errors.New("boom")}
	b := NewBridge(c, &mockCart{})

	_, err := b.Handle(context.Background(), testHandle(), success())
	require.ErrorIs(t, err, ErrCapturedUnconfirmed)

	c.err = nil
	_, err = b.Handle(context.Background(), testHandle(), success())
	require.ErrorIs(t, err, ErrAttemptClosed)
	assert.Len(t, c.calls, 1)

	_, err = b.Handle(context.Background(), testHandle(), Dismissed{})
	require.ErrorIs(t, err, ErrAttemptClosed)

	settled, ok := b.Settled("order_abc")
	require.True(t, ok)
	assert.Equal(t, StateCapturedUnconfirmed, settled.State)
}

func TestBridge_DismissedMakesNoCall(t *testing.T) {
	c := &mockConfirmer{}
	cart := &mockCart{}
	b := NewBridge(c, cart)

	res, err := b.Handle(context.Background(), testHandle(), Dismissed{})
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, res.State)
	assert.Empty(t, c.calls)
	assert.Zero(t, cart.cleared.Load())

	// The attempt stays open: the shopper may still pay.
	res, err = b.Handle(context.Background(), testHandle(), success())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, res.State)
}

func TestBridge_MismatchedHandle(t *testing.T) {
	c := &mockConfirmer{}
	b := NewBridge(c, &mockCart{})

	ev := success()
	ev.ProviderOrderID = "order_other"
	_, err := b.Handle(context.Background(), testHandle(), ev)

	require.ErrorIs(t, err, ErrHandleMismatch)
	assert.Empty(t, c.calls)

	ev = success()
	ev.OrderID = "o2"
	_, err = b.Handle(context.Background(), testHandle(), ev)
	require.ErrorIs(t, err, ErrHandleMismatch)
	assert.Empty(t, c.calls)

	ev.OrderID = "o1"
	_, err = b.Handle(context.Background(), testHandle(), ev)
	require.NoError(t, err)
	assert.Len(t, c.calls, 1)
}

func TestBridge_ConcurrentCallbacksConfirmOnce(t *testing.T) {
	c := &mockConfirmer{}
	b := NewBridge(c, &mockCart{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Handle(context.Background(), testHandle(), success())
		}()
	}
	wg.Wait()

	assert.Len(t, c.calls, 1)
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier("secret")
	sig := v.Sign("order_abc", "pay_1")

	assert.True(t, v.Verify("order_abc", "pay_1", sig))
	assert.False(t, v.Verify("order_abc", "pay_2", sig))
	assert.False(t, v.Verify("order_abc", "pay_1", "not-hex"))
	assert.False(t, NewHMACVerifier("other").Verify("order_abc", "pay_1", sig))
}
