package checkout

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/payment"
)

// OrderGateway creates, reads and confirms orders.
type OrderGateway interface {
	CreateOrder(ctx context.Context, req order.Request) (*order.CreateResult, error)
	ConfirmPayment(ctx context.Context, req order.ConfirmRequest) (*order.Order, error)
	Get(ctx context.Context, userID, orderID string) (*order.Order, error)
}

// CouponValidator validates a coupon code against an amount.
type CouponValidator interface {
	Validate(ctx context.Context, code string, amount decimal.Decimal) (*coupon.Result, error)
}

// AddressBook manages a shopper's addresses. Mutations return the refreshed
// list.
type AddressBook interface {
	List(ctx context.Context, userID string) ([]address.Address, error)
	Add(ctx context.Context, userID string, a address.Address) (*address.Address, []address.Address, error)
	Update(ctx context.Context, userID string, a address.Address) ([]address.Address, error)
	Delete(ctx context.Context, userID, id string) ([]address.Address, error)
	SetDefault(ctx context.Context, userID, id string) ([]address.Address, error)
}

// Config holds checkout parameters.
type Config struct {
	CODSurcharge decimal.Decimal
	// PaymentKeyID is the public provider key handed to the payment UI.
	PaymentKeyID string
	Meter        metric.Meter
}

const (
	msgPlaceFailed  = "Could not place your order. Please try again."
	msgCouponFailed = "Could not validate the coupon. Please try again."
)

// Orchestrator implements the checkout flow over explicit sessions.
type Orchestrator struct {
	orders    OrderGateway
	coupons   CouponValidator
	addresses AddressBook
	cfg       Config

	ordersPlaced   metric.Int64Counter
	confirmations  metric.Int64Counter
	couponsApplied metric.Int64Counter
}

// New creates an Orchestrator.
func New(orders OrderGateway, coupons CouponValidator, addresses AddressBook, cfg Config) (*Orchestrator, error) {
	if cfg.Meter == nil {
		cfg.Meter = noop.NewMeterProvider().Meter("checkout")
	}
	o := &Orchestrator{
		orders:    orders,
		coupons:   coupons,
		addresses: addresses,
		cfg:       cfg,
	}
	var err error
	if o.ordersPlaced, err = cfg.Meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders accepted by the order gateway"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed counter")
	}
	if o.confirmations, err = cfg.Meter.Int64Counter("storefront.payment.confirmations",
		metric.WithDescription("Settled payment attempts by state"),
	); err != nil {
		return nil, errors.Wrap(err, "payment.confirmations counter")
	}
	if o.couponsApplied, err = cfg.Meter.Int64Counter("storefront.coupons.applied",
		metric.WithDescription("Coupon applications by validity"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons.applied counter")
	}
	return o, nil
}

// NewSession creates the checkout session for userID around its cart,
// loading the address book. The default address is preselected.
func (o *Orchestrator) NewSession(ctx context.Context, userID string, c *cart.Store) (*Session, error) {
	addrs, err := o.addresses.List(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load addresses")
	}
	return newSession(userID, c, addrs, &confirmer{orders: o.orders, userID: userID}), nil
}

// View returns a snapshot of s.
func (o *Orchestrator) View(s *Session) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Stage:             s.stage,
		Lines:             s.Cart.Lines(),
		Addresses:         slices.Clone(s.addresses),
		SelectedAddressID: s.selectedID,
		PaymentMethod:     s.paymentMethod,
		CouponInput:       s.couponInput,
		CouponStale:       s.applied != nil && s.couponStale.Load(),
		Totals:            o.totalsLocked(s),
		Placing:           s.placing,
	}
	if s.applied != nil {
		c := *s.applied
		v.Coupon = &c
	}
	if s.pending != nil {
		h := *s.pending
		v.PendingPayment = &h
	}
	if s.lastPayment != nil {
		r := *s.lastPayment
		v.LastPayment = &r
	}
	return v
}

// Open switches the visible stage. SUMMARY and PAYMENT require a selected
// address.
func (o *Orchestrator) Open(s *Session, stage Stage) error {
	if !stage.Valid() {
		return &ValidationError{Field: "stage", Message: "unknown checkout stage"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage != StageAddress {
		if _, ok := s.selectedLocked(); !ok {
			return ErrStageLocked
		}
	}
	s.stage = stage
	return nil
}

// SelectAddress selects the delivery address by id.
func (o *Orchestrator) SelectAddress(s *Session, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.addresses {
		if a.ID == id {
			s.selectedID = id
			return nil
		}
	}
	return &ValidationError{Field: "addressId", Message: "please select a delivery address"}
}

// SelectPaymentMethod sets the payment method and returns the recomputed
// totals. It requires a selected address.
func (o *Orchestrator) SelectPaymentMethod(s *Session, m order.PaymentMethod) (Totals, error) {
	if !m.Valid() {
		return Totals{}, &ValidationError{Field: "paymentMethod", Message: "please select a payment method"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selectedLocked(); !ok {
		return Totals{}, ErrStageLocked
	}
	if s.paymentMethod != m && s.applied != nil {
		// The coupon was validated against the old shipping charge.
		s.couponStale.Store(true)
	}
	s.paymentMethod = m
	return o.totalsLocked(s), nil
}

// Totals returns the current pricing of s.
func (o *Orchestrator) Totals(s *Session) Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return o.totalsLocked(s)
}

func (o *Orchestrator) totalsLocked(s *Session) Totals {
	subtotal := s.Cart.Subtotal().Round(2)
	shipping := order.ShippingCharge(s.paymentMethod, o.cfg.CODSurcharge)
	discount := decimal.Zero
	if s.applied != nil {
		discount = s.applied.DiscountAmount
	}
	return Totals{
		Subtotal:       subtotal,
		ShippingCharge: shipping,
		DiscountAmount: discount,
		Total:          order.Total(subtotal, shipping, discount),
	}
}

// ApplyCoupon validates code against subtotal + shipping. A valid coupon
// replaces any applied one and clears the input; an invalid one removes any
// applied coupon and is reported as a *RejectedError with the validator's
// message.
func (o *Orchestrator) ApplyCoupon(ctx context.Context, s *Session, code string) (*coupon.Application, error) {
	s.mu.Lock()
	if s.validating {
		s.mu.Unlock()
		return nil, ErrCouponInFlight
	}
	s.couponInput = code
	t := o.totalsLocked(s)
	amount := t.Subtotal.Add(t.ShippingCharge)
	s.validating = true
	s.couponStale.Store(false)
	s.mu.Unlock()

	res, err := o.coupons.Validate(ctx, code, amount)
	if err == nil {
		err = checkCouponResult(res)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.validating = false
	if err != nil {
		zctx.From(ctx).Warn("Validate coupon", zap.String("code", code), zap.Error(err))
		return nil, &RejectedError{Message: msgCouponFailed, Cause: err}
	}
	o.couponsApplied.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", res.Valid)))
	if !res.Valid {
		s.applied = nil
		return nil, &RejectedError{Message: res.Message}
	}

	s.applied = &coupon.Application{
		CouponID:       res.Coupon.ID,
		Code:           res.Coupon.Code,
		DiscountAmount: res.DiscountAmount,
	}
	s.couponInput = ""
	app := *s.applied
	return &app, nil
}

// checkCouponResult rejects a validation result that cannot be applied.
func checkCouponResult(res *coupon.Result) error {
	switch {
	case res == nil:
		return errors.New("empty validation result")
	case res.Valid && res.Coupon == nil:
		return errors.New("valid coupon result without coupon")
	default:
		return nil
	}
}

// RemoveCoupon drops the applied coupon; the discount returns to zero.
func (o *Orchestrator) RemoveCoupon(s *Session) Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = nil
	return o.totalsLocked(s)
}

// RevalidateCoupon re-runs validation of the applied coupon against the
// current amount. A coupon that no longer holds is removed and reported as
// a *RejectedError. It is a no-op without an applied coupon.
func (o *Orchestrator) RevalidateCoupon(ctx context.Context, s *Session) error {
	s.mu.Lock()
	if s.applied == nil {
		s.mu.Unlock()
		return nil
	}
	code := s.applied.Code
	t := o.totalsLocked(s)
	amount := t.Subtotal.Add(t.ShippingCharge)
	s.couponStale.Store(false)
	s.mu.Unlock()

	res, err := o.coupons.Validate(ctx, code, amount)
	if err == nil {
		err = checkCouponResult(res)
	}
	if err != nil {
		s.couponStale.Store(true)
		return &RejectedError{Message: msgCouponFailed, Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied == nil || s.applied.Code != code {
		// Replaced or removed meanwhile.
		return nil
	}
	if !res.Valid {
		s.applied = nil
		return &RejectedError{Message: res.Message}
	}
	s.applied.DiscountAmount = res.DiscountAmount
	s.applied.CouponID = res.Coupon.ID
	return nil
}

// AddAddress adds an address to the shopper's book. The shopper's first
// address becomes the default and is selected.
func (o *Orchestrator) AddAddress(ctx context.Context, s *Session, a address.Address) (*address.Address, []address.Address, error) {
	added, list, err := o.addresses.Add(ctx, s.UserID, a)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses = list
	if added.IsDefault && s.selectedID == "" {
		s.selectedID = added.ID
	}
	return added, slices.Clone(list), nil
}

// EditAddress updates an address in place.
func (o *Orchestrator) EditAddress(ctx context.Context, s *Session, a address.Address) ([]address.Address, error) {
	list, err := o.addresses.Update(ctx, s.UserID, a)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses = list
	return slices.Clone(list), nil
}

// DeleteAddress removes an address. Deleting the selected address clears
// the selection and falls back to the address stage.
func (o *Orchestrator) DeleteAddress(ctx context.Context, s *Session, id string) ([]address.Address, error) {
	list, err := o.addresses.Delete(ctx, s.UserID, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses = list
	if s.selectedID == id {
		s.selectedID = ""
		s.stage = StageAddress
	}
	return slices.Clone(list), nil
}

// SetDefaultAddress makes id the shopper's default address.
func (o *Orchestrator) SetDefaultAddress(ctx context.Context, s *Session, id string) ([]address.Address, error) {
	list, err := o.addresses.SetDefault(ctx, s.UserID, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses = list
	return slices.Clone(list), nil
}

// BuildRequest assembles the order-creation request from the session.
func (o *Orchestrator) BuildRequest(s *Session) (order.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return o.buildLocked(s)
}

func (o *Orchestrator) gateLocked(s *Session) (address.Address, error) {
	if s.Cart.IsEmpty() {
		return address.Address{}, &ValidationError{Field: "cart", Message: "your cart is empty"}
	}
	a, ok := s.selectedLocked()
	if !ok {
		return address.Address{}, &ValidationError{Field: "addressId", Message: "please select a delivery address"}
	}
	if !s.paymentMethod.Valid() {
		return address.Address{}, &ValidationError{Field: "paymentMethod", Message: "please select a payment method"}
	}
	return a, nil
}

func (o *Orchestrator) buildLocked(s *Session) (order.Request, error) {
	a, err := o.gateLocked(s)
	if err != nil {
		return order.Request{}, err
	}

	lines := s.Cart.Lines()
	items := make([]order.Item, len(lines))
	for i, l := range lines {
		items[i] = order.Item{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.UnitPrice,
			Quantity:  l.Quantity,
			Size:      l.Size,
			Color:     l.Color,
			BatchNo:   l.BatchNo,
		}
	}

	t := o.totalsLocked(s)
	req := order.Request{
		UserID:          s.UserID,
		Items:           items,
		PaymentMethod:   s.paymentMethod,
		ShippingAddress: a.Flatten(),
		Address: order.AddressSnapshot{
			Name:        a.Name,
			Mobile:      a.Mobile,
			Pincode:     a.Pincode,
			Area:        a.Area,
			City:        a.City,
			State:       a.State,
			AddressType: string(a.AddressType),
		},
		Subtotal:       t.Subtotal,
		ShippingCharge: t.ShippingCharge,
		DiscountAmount: t.DiscountAmount,
		TotalAmount:    t.Total,
	}
	if s.applied != nil {
		req.CouponID = s.applied.CouponID
		req.CouponCode = s.applied.Code
	}
	return req, nil
}

// OutcomeKind tells the caller what follows a successful placement.
type OutcomeKind string

const (
	// OutcomeConfirmed: the order is confirmed and the cart cleared.
	OutcomeConfirmed OutcomeKind = "confirmed"
	// OutcomePaymentRequired: the shopper must pay through the provider UI
	// using Payment; the cart is kept until the payment is confirmed.
	OutcomePaymentRequired OutcomeKind = "payment_required"
)

// Outcome is the result of PlaceOrder.
type Outcome struct {
	Kind    OutcomeKind
	OrderID string
	Message string
	Payment *payment.Handle
}

// PlaceOrder submits the checkout as an order. Missing cart contents,
// address or payment method are rejected locally with a *ValidationError.
// A second call while one is running returns ErrOrderInFlight. On failure
// the cart and selections are untouched and a *RejectedError is returned.
func (o *Orchestrator) PlaceOrder(ctx context.Context, s *Session) (*Outcome, error) {
	s.mu.Lock()
	if _, err := o.gateLocked(s); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.placing {
		s.mu.Unlock()
		return nil, ErrOrderInFlight
	}
	s.placing = true
	stale := s.applied != nil && s.couponStale.Load()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.placing = false
		s.mu.Unlock()
	}()

	if stale {
		if err := o.RevalidateCoupon(ctx, s); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	req, err := o.buildLocked(s)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	res, err := o.orders.CreateOrder(ctx, req)
	if err != nil {
		var rej *order.RejectedError
		if errors.As(err, &rej) {
			return nil, &RejectedError{Message: rej.Message, Cause: err}
		}
		zctx.From(ctx).Warn("Create order", zap.String("user_id", s.UserID), zap.Error(err))
		return nil, &RejectedError{Message: msgPlaceFailed, Cause: err}
	}

	o.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(req.PaymentMethod))))
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", res.Order.ID),
		zap.String("payment_method", string(req.PaymentMethod)),
		zap.String("total", req.TotalAmount.StringFixed(2)),
	)

	if res.PaymentData == nil {
		s.mu.Lock()
		s.resetLocked()
		s.mu.Unlock()
		s.Cart.Clear()
		return &Outcome{Kind: OutcomeConfirmed, OrderID: res.Order.ID, Message: res.Message}, nil
	}

	h := payment.Handle{
		OrderID:         res.PaymentData.OrderID,
		ProviderOrderID: res.PaymentData.ProviderOrderID,
		Amount:          res.PaymentData.Amount,
		Currency:        res.PaymentData.Currency,
		KeyID:           o.cfg.PaymentKeyID,
		Name:            res.PaymentData.UserDetails.Name,
		Mobile:          res.PaymentData.UserDetails.Mobile,
	}
	s.mu.Lock()
	s.pending = &h
	s.lastPayment = nil
	s.mu.Unlock()
	return &Outcome{Kind: OutcomePaymentRequired, OrderID: h.OrderID, Message: res.Message, Payment: &h}, nil
}

// HandlePayment delivers a provider UI event for the session's pending
// payment to the confirmation bridge. A success callback for a session that
// no longer holds the handle is matched against the backend order instead;
// when that fails the payment is reported as captured but unconfirmed.
func (o *Orchestrator) HandlePayment(ctx context.Context, s *Session, ev payment.Event) (payment.Result, error) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()

	var (
		res payment.Result
		err error
	)
	if pending != nil {
		res, err = s.bridge.Handle(ctx, *pending, ev)
	} else {
		res, err = o.recoverPayment(ctx, s, ev)
	}
	if res.State == "" {
		return res, err
	}
	if res.State != payment.StateCancelled {
		o.confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(res.State))))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPayment = &res
	switch res.State {
	case payment.StateConfirmed:
		s.resetLocked()
	case payment.StateCapturedUnconfirmed:
		s.pending = nil
	}
	return res, err
}

// recoverPayment handles a success callback that arrived after the session
// lost its pending handle, e.g. after eviction or a restart.
func (o *Orchestrator) recoverPayment(ctx context.Context, s *Session, ev payment.Event) (payment.Result, error) {
	succeeded, ok := ev.(payment.Succeeded)
	if !ok {
		return payment.Result{}, ErrNoPendingPayment
	}
	if _, settled := s.bridge.Settled(succeeded.ProviderOrderID); settled {
		return payment.Result{}, payment.ErrAttemptClosed
	}

	h, err := o.rebuildHandle(ctx, s.UserID, succeeded)
	if err != nil {
		zctx.From(ctx).Error("Payment captured for an order that cannot be confirmed",
			zap.String("order_id", succeeded.OrderID),
			zap.String("payment_id", succeeded.PaymentID),
			zap.String("provider_order_id", succeeded.ProviderOrderID),
			zap.Error(err),
		)
		ref := succeeded.OrderID
		if ref == "" {
			ref = succeeded.ProviderOrderID
		}
		return payment.Result{
			State:     payment.StateCapturedUnconfirmed,
			OrderID:   succeeded.OrderID,
			PaymentID: succeeded.PaymentID,
			Message:   payment.EscalationMessage(ref, succeeded.PaymentID),
		}, &payment.ConfirmationFailedError{OrderID: succeeded.OrderID, PaymentID: succeeded.PaymentID, Cause: err}
	}
	return s.bridge.Handle(ctx, h, succeeded)
}

// rebuildHandle reconstructs the payment handle of the order ev names. The
// order must belong to userID, carry the same provider order and still
// await payment (or be confirmed with this very payment).
func (o *Orchestrator) rebuildHandle(ctx context.Context, userID string, ev payment.Succeeded) (payment.Handle, error) {
	if ev.OrderID == "" {
		return payment.Handle{}, errors.New("callback without order id")
	}
	ord, err := o.orders.Get(ctx, userID, ev.OrderID)
	if err != nil {
		return payment.Handle{}, errors.Wrap(err, "load order")
	}
	if ord.ProviderOrderID == "" || ord.ProviderOrderID != ev.ProviderOrderID {
		return payment.Handle{}, errors.Errorf("order %s has provider order %q", ord.ID, ord.ProviderOrderID)
	}
	confirmedByThis := ord.Status == order.StatusConfirmed && ord.ProviderPaymentID == ev.PaymentID
	if ord.Status != order.StatusPending && !confirmedByThis {
		return payment.Handle{}, errors.Errorf("order %s is %s", ord.ID, ord.Status)
	}
	return payment.Handle{
		OrderID:         ord.ID,
		ProviderOrderID: ord.ProviderOrderID,
		Amount:          order.MinorUnits(ord.TotalAmount),
		KeyID:           o.cfg.PaymentKeyID,
		Name:            ord.Address.Name,
		Mobile:          ord.Address.Mobile,
	}, nil
}

type confirmer struct {
	orders OrderGateway
	userID string
}

func (c *confirmer) ConfirmPayment(ctx context.Context, p payment.Confirmation) error {
	_, err := c.orders.ConfirmPayment(ctx, order.ConfirmRequest{
		OrderID:           p.OrderID,
		UserID:            c.userID,
		ProviderPaymentID: p.PaymentID,
		ProviderOrderID:   p.ProviderOrderID,
		Signature:         p.Signature,
	})
	return err
}
