// Package order holds the order model, pricing rules, status tracking and the
// order lifecycle service.
package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the single authoritative state of an order.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusShipped        Status = "SHIPPED"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusReturned       Status = "RETURNED"
	StatusCancelled      Status = "CANCELLED"
)

// ParseStatus normalizes a raw status string. Unknown values are returned
// upper-cased as is; they sort after every known status.
func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// PaymentMethod is how the shopper pays for an order.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "ONLINE"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

// Item is one line of an order. Price is the unit price.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	BatchNo   string          `json:"batchNo"`
}

// AddressSnapshot is the structured shipping address copied onto an order at
// creation time. Later address edits do not touch it.
type AddressSnapshot struct {
	Name        string `json:"name"`
	Mobile      string `json:"mobile"`
	Pincode     string `json:"pincode"`
	Area        string `json:"area"`
	City        string `json:"city"`
	State       string `json:"state"`
	AddressType string `json:"addressType"`
}

// Milestone is a timestamped record of an order reaching a status.
type Milestone struct {
	Status    Status    `json:"status"`
	Completed bool      `json:"completed"`
	At        time.Time `json:"at"`
	Note      string    `json:"note,omitempty"`
}

// Request is the order-creation request assembled at checkout. It is
// immutable once submitted.
type Request struct {
	UserID          string
	Items           []Item
	PaymentMethod   PaymentMethod
	ShippingAddress string
	Address         AddressSnapshot
	Subtotal        decimal.Decimal
	ShippingCharge  decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	CouponID        string
	CouponCode      string
}

// Order is a placed order.
type Order struct {
	ID                string
	UserID            string
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Items             []Item
	Subtotal          decimal.Decimal
	ShippingCharge    decimal.Decimal
	DiscountAmount    decimal.Decimal
	TotalAmount       decimal.Decimal
	PaymentMethod     PaymentMethod
	CouponID          string
	CouponCode        string
	ShippingAddress   string
	Address           AddressSnapshot
	ProviderOrderID   string
	ProviderPaymentID string
	AWB               string
	TrackingSteps     []Milestone
	CancelReason      string
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// UpdateStatus writes the mutable fields of o (status, milestones,
	// payment id, AWB, cancel reason) only if the stored status still equals
	// from. It returns ErrConflict otherwise.
	UpdateStatus(ctx context.Context, o *Order, from Status) error
}
