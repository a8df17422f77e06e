package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

// Coupons validates and redeems coupon codes.
type Coupons interface {
	coupon.Validator
	Redeem(ctx context.Context, code string) error
}

// PaymentProvider creates provider-side orders that the shopper then pays
// in the provider UI.
type PaymentProvider interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (providerOrderID string, err error)
}

// SignatureVerifier checks a provider's payment success signature.
type SignatureVerifier interface {
	Verify(providerOrderID, providerPaymentID, signature string) bool
}

// Event types published on order lifecycle changes.
const (
	EventCreated   = "order.created"
	EventConfirmed = "order.confirmed"
	EventCancelled = "order.cancelled"
	EventUpdated   = "order.updated"
)

// Event is an order lifecycle notification.
type Event struct {
	Type        string
	OrderID     string
	UserID      string
	Status      Status
	TotalAmount decimal.Decimal
	OccurredAt  time.Time
}

// Publisher delivers order events. Delivery failures never fail the
// operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Config holds pricing parameters.
type Config struct {
	CODSurcharge decimal.Decimal
	Currency     string
}

// UserDetails prefills the payment provider UI.
type UserDetails struct {
	Name   string
	Mobile string
}

// PaymentData is the payment-initiation handle returned for online orders.
type PaymentData struct {
	ProviderOrderID string
	// Amount is in minor currency units.
	Amount      int64
	Currency    string
	OrderID     string
	UserDetails UserDetails
}

// CreateResult is the outcome of CreateOrder. PaymentData is set only for
// online orders.
type CreateResult struct {
	Message     string
	Order       *Order
	PaymentData *PaymentData
}

// ConfirmRequest carries the provider's success callback fields.
type ConfirmRequest struct {
	OrderID           string
	UserID            string
	ProviderPaymentID string
	ProviderOrderID   string
	Signature         string
}

// Service encapsulates the order lifecycle: creation, payment confirmation,
// cancellation and milestone tracking.
type Service struct {
	products product.Repository
	coupons  Coupons
	orders   Repository
	provider PaymentProvider
	verifier SignatureVerifier
	events   Publisher
	cfg      Config
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons Coupons,
	orders Repository,
	provider PaymentProvider,
	verifier SignatureVerifier,
	events Publisher,
	cfg Config,
) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		provider: provider,
		verifier: verifier,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateOrder validates req against the catalog and coupon rules, recomputes
// its totals and persists the order. COD orders are confirmed immediately;
// online orders stay PENDING until ConfirmPayment.
func (s *Service) CreateOrder(ctx context.Context, req Request) (*CreateResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	items, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	subtotal := Subtotal(items).Round(2)
	shipping := ShippingCharge(req.PaymentMethod, s.cfg.CODSurcharge)

	discount := decimal.Zero
	var couponID string
	if req.CouponCode != "" {
		res, err := s.coupons.Validate(ctx, req.CouponCode, subtotal.Add(shipping))
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		if !res.Valid {
			return nil, reject(ErrCouponRejected.Code, "%s", res.Message)
		}
		if req.CouponID != "" && req.CouponID != res.Coupon.ID {
			return nil, ErrTotalMismatch
		}
		discount = res.DiscountAmount
		couponID = res.Coupon.ID
	}

	total := Total(subtotal, shipping, discount)
	if !req.TotalAmount.Equal(total) || !req.DiscountAmount.Round(2).Equal(discount) {
		return nil, ErrTotalMismatch
	}

	now := s.now().UTC()
	o := &Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           items,
		Subtotal:        subtotal,
		ShippingCharge:  shipping,
		DiscountAmount:  discount,
		TotalAmount:     total,
		PaymentMethod:   req.PaymentMethod,
		CouponID:        couponID,
		CouponCode:      coupon.Normalize(req.CouponCode),
		ShippingAddress: req.ShippingAddress,
		Address:         req.Address,
	}

	res := &CreateResult{Order: o}
	switch req.PaymentMethod {
	case PaymentCOD:
		o.Status = StatusConfirmed
		o.TrackingSteps = []Milestone{
			{Status: StatusPending, Completed: true, At: now},
			{Status: StatusConfirmed, Completed: true, At: now},
		}
		res.Message = "Order placed successfully"
	case PaymentOnline:
		amount := MinorUnits(total)
		providerOrderID, err := s.provider.CreateOrder(ctx, amount, s.cfg.Currency, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "create payment order")
		}
		o.Status = StatusPending
		o.ProviderOrderID = providerOrderID
		o.TrackingSteps = []Milestone{{Status: StatusPending, Completed: true, At: now}}
		res.Message = "Order created, complete payment to confirm"
		res.PaymentData = &PaymentData{
			ProviderOrderID: providerOrderID,
			Amount:          amount,
			Currency:        s.cfg.Currency,
			OrderID:         o.ID,
			UserDetails:     UserDetails{Name: req.Address.Name, Mobile: req.Address.Mobile},
		}
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if o.CouponCode != "" {
		if err := s.coupons.Redeem(ctx, o.CouponCode); err != nil {
			zctx.From(ctx).Warn("Redeem coupon",
				zap.String("order_id", o.ID),
				zap.String("coupon", o.CouponCode),
				zap.Error(err),
			)
		}
	}
	s.publish(ctx, EventCreated, o)

	return res, nil
}

func validateRequest(req Request) error {
	switch {
	case req.UserID == "":
		return ErrMissingUser
	case len(req.Items) == 0:
		return ErrEmptyItems
	case !req.PaymentMethod.Valid():
		return ErrInvalidPaymentMethod
	case req.ShippingAddress == "":
		return ErrMissingAddress
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return reject(ErrInvalidQuantity.Code, "quantity must be greater than 0 for product %s", it.ProductID)
		}
	}
	return nil
}

// priceItems checks every item against the catalog and returns the items
// with catalog names and batch numbers.
func (s *Service) priceItems(ctx context.Context, items []Item) ([]Item, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	out := make([]Item, len(items))
	for i, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, reject(ErrProductNotFound.Code, "product %s not found", it.ProductID)
		}
		v, err := p.Variant(it.Size, it.Color)
		if err != nil {
			return nil, reject(ErrOutOfStock.Code, "%s is not available in size %s, color %s", p.Name, it.Size, it.Color)
		}
		if it.Quantity > v.Stock {
			return nil, reject(ErrOutOfStock.Code, "only %d left in stock for %s", v.Stock, p.Name)
		}
		if !it.Price.Equal(p.Price) {
			return nil, reject(ErrPriceChanged.Code, "price of %s has changed to %s", p.Name, p.Price.StringFixed(2))
		}
		it.Name = p.Name
		it.Price = p.Price
		it.BatchNo = v.BatchNo
		out[i] = it
	}
	return out, nil
}

// ConfirmPayment finalizes an online order after the provider reported a
// successful payment. Repeating a confirmation with the same payment id
// returns the confirmed order.
func (s *Service) ConfirmPayment(ctx context.Context, req ConfirmRequest) (*Order, error) {
	o, err := s.Get(ctx, req.UserID, req.OrderID)
	if err != nil {
		return nil, err
	}

	if o.Status != StatusPending {
		if o.Status == StatusConfirmed && o.ProviderPaymentID != "" && o.ProviderPaymentID == req.ProviderPaymentID {
			return o, nil
		}
		return nil, ErrNotPending
	}
	if o.ProviderOrderID == "" || o.ProviderOrderID != req.ProviderOrderID {
		return nil, ErrPaymentMismatch
	}
	if !s.verifier.Verify(req.ProviderOrderID, req.ProviderPaymentID, req.Signature) {
		return nil, ErrInvalidSignature
	}

	now := s.now().UTC()
	o.Status = StatusConfirmed
	o.ProviderPaymentID = req.ProviderPaymentID
	o.UpdatedAt = now
	o.TrackingSteps = mergeMilestone(o.TrackingSteps, Milestone{Status: StatusConfirmed, Completed: true, At: now})
	if err := s.orders.UpdateStatus(ctx, o, StatusPending); err != nil {
		return nil, errors.Wrap(err, "confirm order")
	}

	s.publish(ctx, EventConfirmed, o)
	return o, nil
}

// CancelOrder cancels a confirmed order. Orders in any other status cannot
// be cancelled.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID, reason string) (*Order, error) {
	o, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusConfirmed {
		return nil, ErrNotCancellable
	}

	now := s.now().UTC()
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.UpdatedAt = now
	o.TrackingSteps = mergeMilestone(o.TrackingSteps, Milestone{Status: StatusCancelled, Completed: true, At: now, Note: reason})
	if err := s.orders.UpdateStatus(ctx, o, StatusConfirmed); err != nil {
		return nil, errors.Wrap(err, "cancel order")
	}

	s.publish(ctx, EventCancelled, o)
	return o, nil
}

// Get returns the user's order by id.
func (s *Service) Get(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// RecordMilestone merges a courier milestone into an order. A completed
// milestone with a known status beyond the current one advances it; CANCELLED
// orders never change status. A non-empty awb sets the
// tracking number.
func (s *Service) RecordMilestone(ctx context.Context, orderID string, m Milestone, awb string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}

	m.Status = ParseStatus(string(m.Status))
	if m.At.IsZero() {
		m.At = s.now().UTC()
	}

	from := o.Status
	o.TrackingSteps = mergeMilestone(o.TrackingSteps, m)
	if awb != "" {
		o.AWB = awb
	}
	if _, known := ordinals[m.Status]; known && m.Completed &&
		o.Status != StatusCancelled && Ordinal(m.Status) > Ordinal(o.Status) {
		o.Status = m.Status
	}
	o.UpdatedAt = s.now().UTC()

	if err := s.orders.UpdateStatus(ctx, o, from); err != nil {
		return nil, errors.Wrap(err, "record milestone")
	}

	s.publish(ctx, EventUpdated, o)
	return o, nil
}

// mergeMilestone replaces the recorded milestone for m.Status if m is
// preferred over it, or appends m.
func mergeMilestone(steps []Milestone, m Milestone) []Milestone {
	for i, cur := range steps {
		if cur.Status == m.Status {
			if prefer(m, cur) {
				steps[i] = m
			}
			return steps
		}
	}
	return append(steps, m)
}

func (s *Service) publish(ctx context.Context, typ string, o *Order) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, Event{
		Type:        typ,
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		OccurredAt:  o.UpdatedAt,
	})
	if err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", typ),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}
