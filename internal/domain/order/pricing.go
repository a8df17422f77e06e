package order

import "github.com/shopspring/decimal"

// ShippingCharge is a pure function of the payment method: COD pays the
// surcharge, online payment and an unset method pay nothing.
func ShippingCharge(m PaymentMethod, codSurcharge decimal.Decimal) decimal.Decimal {
	if m == PaymentCOD {
		return codSurcharge
	}
	return decimal.Zero
}

// Subtotal sums price * quantity over items.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Total = subtotal + shipping - discount, floored at zero and rounded to 2
// decimal places.
func Total(subtotal, shipping, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2)
}

// MinorUnits converts an amount to the smallest currency unit (paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
