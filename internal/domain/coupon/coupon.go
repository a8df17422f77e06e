package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order amount, optionally
	// capped by Rule.MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, capped at the order amount.
	DiscountFixed DiscountType = "fixed"
)

// ErrNotFound is returned by a Repository when no active coupon has the code.
var ErrNotFound = errors.New("coupon not found")

// Shopper-facing reasons reported in Result.Message.
const (
	MsgInvalid       = "Invalid coupon code"
	MsgExpired       = "Coupon has expired"
	MsgNotYetActive  = "Coupon is not active yet"
	MsgUsageExceeded = "Coupon usage limit reached"
)

// Rule defines a coupon's discount behaviour and eligibility constraints.
type Rule struct {
	ID             string
	Code           string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxDiscount    decimal.Decimal
	Description    string
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	MaxUses        int
	Uses           int
}

// Info is the public description of a coupon returned with a valid result.
type Info struct {
	ID    string
	Code  string
	Type  DiscountType
	Value decimal.Decimal
}

// Result is the outcome of validating a code against an order amount. An
// unusable code is reported with Valid=false and a Message; errors are
// reserved for failures to reach the coupon store.
type Result struct {
	Valid          bool
	Coupon         *Info
	DiscountAmount decimal.Decimal
	Message        string
}

// Application is a coupon successfully applied to a checkout.
type Application struct {
	CouponID       string
	Code           string
	DiscountAmount decimal.Decimal
}

// Repository provides lookup and mutation of coupon rules.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	IncrementUses(ctx context.Context, code string) error
}

// Validator validates a coupon code against an order amount.
type Validator interface {
	Validate(ctx context.Context, code string, amount decimal.Decimal) (*Result, error)
}

func invalid(msg string) *Result {
	return &Result{Valid: false, DiscountAmount: decimal.Zero, Message: msg}
}
