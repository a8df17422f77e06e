package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]*product.Product
	getErr error
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type mockCoupons struct {
	result   *coupon.Result
	err      error
	amount   decimal.Decimal
	redeemed []string
}

func (m *mockCoupons) Validate(_ context.Context, _ string, amount decimal.Decimal) (*coupon.Result, error) {
	m.amount = amount
	return m.result, m.err
}

func (m *mockCoupons) Redeem(_ context.Context, code string) error {
	m.redeemed = append(m.redeemed, code)
	return nil
}

type mockOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*Order
	created []*Order
	err     error
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: map[string]*Order{}}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *o
	cp.TrackingSteps = append([]Milestone(nil), o.TrackingSteps...)
	m.orders[o.ID] = &cp
	m.created = append(m.created, o)
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.TrackingSteps = append([]Milestone(nil), o.TrackingSteps...)
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, o *Order, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok || cur.Status != from {
		return ErrConflict
	}
	cp := *o
	cp.TrackingSteps = append([]Milestone(nil), o.TrackingSteps...)
	m.orders[o.ID] = &cp
	return nil
}

type mockProvider struct {
	calls    int
	amount   int64
	currency string
	err      error
}

func (m *mockProvider) CreateOrder(_ context.Context, amount int64, currency, _ string) (string, error) {
	m.calls++
	m.amount = amount
	m.currency = currency
	if m.err != nil {
		return "", m.err
	}
	return "order_prov_1", nil
}

type mockVerifier struct {
	ok bool
}

func (m *mockVerifier) Verify(_, _, _ string) bool {
	return m.ok
}

type mockPublisher struct {
	events []Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e Event) error {
	m.events = append(m.events, e)
	return m.err
}

// --- Helpers ---

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestProduct(id, name string, price decimal.Decimal, stock int) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    price,
		Category: "tees",
		Variants: []product.Variant{{Size: "M", Color: "red", BatchNo: "B-" + id, Stock: stock}},
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

type fixture struct {
	svc      *Service
	orders   *mockOrderRepo
	coupons  *mockCoupons
	provider *mockProvider
	verifier *mockVerifier
	events   *mockPublisher
}

func newFixture(products ...product.Product) *fixture {
	f := &fixture{
		orders:   newOrderRepo(),
		coupons:  &mockCoupons{},
		provider: &mockProvider{},
		verifier: &mockVerifier{ok: true},
		events:   &mockPublisher{},
	}
	f.svc = NewService(newProductRepo(products...), f.coupons, f.orders, f.provider, f.verifier, f.events, Config{
		CODSurcharge: decimal.NewFromInt(49),
		Currency:     "INR",
	})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func newRequest(method PaymentMethod, total string) Request {
	return Request{
		UserID:          "u1",
		Items:           []Item{{ProductID: "p1", Price: decimal.NewFromInt(500), Quantity: 2, Size: "M", Color: "red"}},
		PaymentMethod:   method,
		ShippingAddress: "Asha, MG Road, Bengaluru, Karnataka - 560001, Mobile: 9876543210",
		Address:         AddressSnapshot{Name: "Asha", Mobile: "9876543210"},
		TotalAmount:     decimal.RequireFromString(total),
	}
}

// --- Tests ---

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr error
	}{
		{name: "empty items", mutate: func(r *Request) { r.Items = nil }, wantErr: ErrEmptyItems},
		{name: "zero quantity", mutate: func(r *Request) { r.Items[0].Quantity = 0 }, wantErr: ErrInvalidQuantity},
		{name: "bad payment method", mutate: func(r *Request) { r.PaymentMethod = "CARD" }, wantErr: ErrInvalidPaymentMethod},
		{name: "missing address", mutate: func(r *Request) { r.ShippingAddress = "" }, wantErr: ErrMissingAddress},
		{name: "missing user", mutate: func(r *Request) { r.UserID = "" }, wantErr: ErrMissingUser},
		{name: "unknown product", mutate: func(r *Request) { r.Items[0].ProductID = "nope" }, wantErr: ErrProductNotFound},
		{name: "unknown variant", mutate: func(r *Request) { r.Items[0].Size = "XXL" }, wantErr: ErrOutOfStock},
		{name: "over stock", mutate: func(r *Request) { r.Items[0].Quantity = 4 }, wantErr: ErrOutOfStock},
		{name: "stale price", mutate: func(r *Request) { r.Items[0].Price = decimal.NewFromInt(450) }, wantErr: ErrPriceChanged},
		{name: "wrong total", mutate: func(r *Request) { r.TotalAmount = decimal.NewFromInt(1000) }, wantErr: ErrTotalMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
			req := newRequest(PaymentCOD, "1049")
			tt.mutate(&req)

			_, err := f.svc.CreateOrder(context.Background(), req)

			require.ErrorIs(t, err, tt.wantErr)
			var rej *RejectedError
			require.ErrorAs(t, err, &rej)
			assert.NotEmpty(t, rej.Message)
			assert.Empty(t, f.orders.created)
			assert.Zero(t, f.provider.calls)
		})
	}
}

func TestCreateOrder_COD(t *testing.T) {
	f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))

	res, err := f.svc.CreateOrder(context.Background(), newRequest(PaymentCOD, "1049"))
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Nil(t, res.PaymentData)
	assert.Zero(t, f.provider.calls)
	assert.True(t, decimal.NewFromInt(1000).Equal(o.Subtotal))
	assert.True(t, decimal.NewFromInt(49).Equal(o.ShippingCharge))
	assert.True(t, decimal.NewFromInt(1049).Equal(o.TotalAmount))
	assert.Equal(t, "B-p1", o.Items[0].BatchNo)
	assert.Equal(t, "Tee", o.Items[0].Name)
	assert.Equal(t, []Status{StatusPending, StatusConfirmed}, statuses(o.TrackingSteps))
	require.Len(t, f.events.events, 1)
	assert.Equal(t, EventCreated, f.events.events[0].Type)
}

func TestCreateOrder_Online(t *testing.T) {
	f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))

	res, err := f.svc.CreateOrder(context.Background(), newRequest(PaymentOnline, "1000"))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, res.Order.Status)
	require.NotNil(t, res.PaymentData)
	assert.Equal(t, "order_prov_1", res.PaymentData.ProviderOrderID)
	assert.Equal(t, int64(100000), res.PaymentData.Amount)
	assert.Equal(t, "INR", res.PaymentData.Currency)
	assert.Equal(t, res.Order.ID, res.PaymentData.OrderID)
	assert.Equal(t, "Asha", res.PaymentData.UserDetails.Name)
	assert.Equal(t, "order_prov_1", res.Order.ProviderOrderID)
	assert.Equal(t, []Status{StatusPending}, statuses(res.Order.TrackingSteps))
}

func TestCreateOrder_ProviderFailureCreatesNothing(t *testing.T) {
	f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
	f.provider.err = errors.New("gateway timeout")

	_, err := f.svc.CreateOrder(context.Background(), newRequest(PaymentOnline, "1000"))
	require.Error(t, err)

	var rej *RejectedError
	assert.False(t, errors.As(err, &rej))
	assert.Empty(t, f.orders.created)
}

func TestCreateOrder_Coupon(t *testing.T) {
	valid := &coupon.Result{
		Valid:          true,
		Coupon:         &coupon.Info{ID: "c1", Code: "SAVE10"},
		DiscountAmount: decimal.NewFromInt(100),
		Message:        "Coupon applied: 10% off",
	}

	t.Run("valid coupon is applied and redeemed", func(t *testing.T) {
		f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
		f.coupons.result = valid
		req := newRequest(PaymentCOD, "949")
		req.CouponCode = "save10"
		req.CouponID = "c1"
		req.DiscountAmount = decimal.NewFromInt(100)

		res, err := f.svc.CreateOrder(context.Background(), req)
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(1049).Equal(f.coupons.amount), "validated against subtotal + shipping")
		assert.True(t, decimal.NewFromInt(100).Equal(res.Order.DiscountAmount))
		assert.Equal(t, "c1", res.Order.CouponID)
		assert.Equal(t, []string{"SAVE10"}, f.coupons.redeemed)
	})

	t.Run("invalid coupon message passes through", func(t *testing.T) {
		f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
		f.coupons.result = &coupon.Result{Message: "Coupon has expired"}
		req := newRequest(PaymentCOD, "949")
		req.CouponCode = "OLD"
		req.DiscountAmount = decimal.NewFromInt(100)

		_, err := f.svc.CreateOrder(context.Background(), req)

		require.ErrorIs(t, err, ErrCouponRejected)
		assert.EqualError(t, err, "Coupon has expired")
		assert.Empty(t, f.coupons.redeemed)
	})

	t.Run("stale discount is rejected", func(t *testing.T) {
		f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
		f.coupons.result = valid
		req := newRequest(PaymentCOD, "899")
		req.CouponCode = "SAVE10"
		req.DiscountAmount = decimal.NewFromInt(150)

		_, err := f.svc.CreateOrder(context.Background(), req)
		require.ErrorIs(t, err, ErrTotalMismatch)
	})
}

func TestConfirmPayment(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *Order) {
		t.Helper()
		f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
		res, err := f.svc.CreateOrder(context.Background(), newRequest(PaymentOnline, "1000"))
		require.NoError(t, err)
		return f, res.Order
	}
	confirm := func(o *Order) ConfirmRequest {
		return ConfirmRequest{
			OrderID:           o.ID,
			UserID:            "u1",
			ProviderPaymentID: "pay_1",
			ProviderOrderID:   o.ProviderOrderID,
			Signature:         "sig",
		}
	}

	t.Run("confirms pending order", func(t *testing.T) {
		f, o := setup(t)

		got, err := f.svc.ConfirmPayment(context.Background(), confirm(o))
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, got.Status)
		assert.Equal(t, "pay_1", got.ProviderPaymentID)
		assert.Equal(t, []Status{StatusPending, StatusConfirmed}, statuses(got.TrackingSteps))
	})

	t.Run("repeat confirmation is idempotent", func(t *testing.T) {
		f, o := setup(t)
		_, err := f.svc.ConfirmPayment(context.Background(), confirm(o))
		require.NoError(t, err)

		got, err := f.svc.ConfirmPayment(context.Background(), confirm(o))
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, got.Status)
	})

	t.Run("bad signature", func(t *testing.T) {
		f, o := setup(t)
		f.verifier.ok = false

		_, err := f.svc.ConfirmPayment(context.Background(), confirm(o))
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("provider order mismatch", func(t *testing.T) {
		f, o := setup(t)
		req := confirm(o)
		req.ProviderOrderID = "order_other"

		_, err := f.svc.ConfirmPayment(context.Background(), req)
		require.ErrorIs(t, err, ErrPaymentMismatch)
	})

	t.Run("other shopper's order", func(t *testing.T) {
		f, o := setup(t)
		req := confirm(o)
		req.UserID = "u2"

		_, err := f.svc.ConfirmPayment(context.Background(), req)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCancelOrder(t *testing.T) {
	t.Run("confirmed order is cancelled", func(t *testing.T) {
		f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
		res, err := f.svc.CreateOrder(context.Background(), newRequest(PaymentCOD, "1049"))
		require.NoError(t, err)

		got, err := f.svc.CancelOrder(context.Background(), "u1", res.Order.ID, "changed my mind")
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Equal(t, "changed my mind", got.CancelReason)
		assert.NotContains(t, statuses(Timeline(got.TrackingSteps)), StatusCancelled)
		assert.Equal(t, Actions{Badge: StatusCancelled}, ActionsFor(got))
	})

	t.Run("pending order cannot be cancelled", func(t *testing.T) {
		f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
		res, err := f.svc.CreateOrder(context.Background(), newRequest(PaymentOnline, "1000"))
		require.NoError(t, err)

		_, err = f.svc.CancelOrder(context.Background(), "u1", res.Order.ID, "")
		require.ErrorIs(t, err, ErrNotCancellable)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.CancelOrder(context.Background(), "u1", "missing", "")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRecordMilestone(t *testing.T) {
	f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
	res, err := f.svc.CreateOrder(context.Background(), newRequest(PaymentCOD, "1049"))
	require.NoError(t, err)
	id := res.Order.ID
	ctx := context.Background()

	got, err := f.svc.RecordMilestone(ctx, id, Milestone{Status: "shipped", Completed: true}, "AWB42")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
	assert.Equal(t, "AWB42", got.AWB)
	assert.True(t, ActionsFor(got).Track)

	got, err = f.svc.RecordMilestone(ctx, id, Milestone{Status: StatusDelivered, Completed: false}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status, "incomplete milestone does not advance status")

	got, err = f.svc.RecordMilestone(ctx, id, Milestone{Status: StatusConfirmed, Completed: true}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status, "status never moves backwards")

	got, err = f.svc.RecordMilestone(ctx, id, Milestone{Status: "AT_HUB", Completed: true}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status, "unknown milestone does not change status")

	got, err = f.svc.RecordMilestone(ctx, id, Milestone{Status: StatusDelivered, Completed: true}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.Equal(t,
		[]Status{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, "AT_HUB"},
		statuses(Timeline(got.TrackingSteps)),
	)
}

func TestRecordMilestone_CancelledOrderKeepsStatus(t *testing.T) {
	f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
	res, err := f.svc.CreateOrder(context.Background(), newRequest(PaymentCOD, "1049"))
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(context.Background(), "u1", res.Order.ID, "")
	require.NoError(t, err)

	got, err := f.svc.RecordMilestone(context.Background(), res.Order.ID, Milestone{Status: StatusShipped, Completed: true}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestCreateOrder_PublishFailureIsIgnored(t *testing.T) {
	f := newFixture(newTestProduct("p1", "Tee", decimal.NewFromInt(500), 3))
	f.events.err = errors.New("broker down")

	_, err := f.svc.CreateOrder(context.Background(), newRequest(PaymentCOD, "1049"))
	require.NoError(t, err)
}
