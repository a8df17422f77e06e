package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate checks rule eligibility at now against amount and computes the
// discount. It never returns an error: an ineligible rule yields an invalid
// Result carrying the reason.
func Evaluate(rule *Rule, amount decimal.Decimal, now time.Time) *Result {
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return invalid(MsgNotYetActive)
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return invalid(MsgExpired)
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return invalid(MsgUsageExceeded)
	}
	if amount.LessThan(rule.MinOrderAmount) {
		return invalid("Minimum order amount of " + rule.MinOrderAmount.StringFixed(2) + " required")
	}

	var discount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		discount = amount.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount.IsPositive() && discount.GreaterThan(rule.MaxDiscount) {
			discount = rule.MaxDiscount
		}
	case DiscountFixed:
		discount = rule.Value
	default:
		return invalid(MsgInvalid)
	}
	if discount.GreaterThan(amount) {
		discount = amount
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	desc := rule.Description
	if desc == "" {
		desc = rule.Code
	}
	return &Result{
		Valid: true,
		Coupon: &Info{
			ID:    rule.ID,
			Code:  rule.Code,
			Type:  rule.DiscountType,
			Value: rule.Value,
		},
		DiscountAmount: discount.Round(2),
		Message:        "Coupon applied: " + desc,
	}
}

// Normalize returns the canonical form of a user-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RepoValidator implements Validator by looking up coupon rules from a
// Repository and evaluating them against the order amount.
type RepoValidator struct {
	repo  Repository
	index *BloomIndex
	now   func() time.Time
}

var _ Validator = (*RepoValidator)(nil)

// NewRepoValidator creates a RepoValidator backed by the given Repository.
// index may be nil, in which case every code is looked up.
func NewRepoValidator(repo Repository, index *BloomIndex) *RepoValidator {
	return &RepoValidator{repo: repo, index: index, now: time.Now}
}

// Validate looks up the coupon for code and evaluates it against amount.
// Validation does not consume a use; see Redeem.
func (v *RepoValidator) Validate(ctx context.Context, code string, amount decimal.Decimal) (*Result, error) {
	code = Normalize(code)
	if code == "" {
		return invalid(MsgInvalid), nil
	}
	if v.index != nil && !v.index.MayContain(code) {
		return invalid(MsgInvalid), nil
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalid(MsgInvalid), nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	return Evaluate(rule, amount, v.now()), nil
}

// Redeem records one use of code. It is called once per created order.
func (v *RepoValidator) Redeem(ctx context.Context, code string) error {
	if err := v.repo.IncrementUses(ctx, Normalize(code)); err != nil {
		return errors.Wrap(err, "increment coupon uses")
	}
	return nil
}
