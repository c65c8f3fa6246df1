package catalog

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// FinalPrice applies the design discount to a variant price. The result is
// floored at zero and rounded to 2 decimal places. Without a discount the
// price is returned unchanged.
func FinalPrice(price decimal.Decimal, d *Discount) decimal.Decimal {
	if d == nil {
		return price
	}
	switch d.Kind {
	case DiscountAmount:
		return floorAtZero(price.Sub(d.Value)).Round(2)
	case DiscountPercentage:
		factor := hundred.Sub(d.Value).Div(hundred)
		return floorAtZero(price.Mul(factor)).Round(2)
	default:
		return price
	}
}

// Reprice recomputes the derived final price of v.
func (v *Variant) Reprice(d *Discount) {
	v.FinalPrice = FinalPrice(v.Price, d)
}

// SameDiscount reports whether two discounts are equivalent.
func SameDiscount(a, b *Discount) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind == b.Kind && a.Value.Equal(b.Value)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
