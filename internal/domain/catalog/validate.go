package catalog

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Attribute limits.
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 1000
)

var (
	// MinPrice and MaxPrice bound variant unit prices and price filters.
	MinPrice = decimal.Zero
	MaxPrice = decimal.NewFromInt(10000)
)

// ValidateName checks that a trimmed design name has 1..MaxNameLength runes.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if n > MaxNameLength {
		return &ValidationError{Field: "name", Reason: "must be at most 200 characters"}
	}
	return nil
}

// ValidateDescription checks the optional description length.
func ValidateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Reason: "must be at most 1000 characters"}
	}
	return nil
}

// ValidateDiscount accepts nil or a known kind with a non-negative value.
func ValidateDiscount(d *Discount) error {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case DiscountAmount, DiscountPercentage:
	default:
		return &ValidationError{Field: "discount.kind", Reason: "must be amount or percentage"}
	}
	if d.Value.IsNegative() {
		return &ValidationError{Field: "discount.value", Reason: "must not be negative"}
	}
	if !wholeCents(d.Value) {
		return &ValidationError{Field: "discount.value", Reason: "must have at most 2 decimal places"}
	}
	return nil
}

// ValidatePrice checks p against MinPrice..MaxPrice with at most two
// decimal places, the precision prices are stored with.
func ValidatePrice(field string, p decimal.Decimal) error {
	if p.LessThan(MinPrice) || p.GreaterThan(MaxPrice) {
		return &ValidationError{Field: field, Reason: "must be between 0 and 10000"}
	}
	if !wholeCents(p) {
		return &ValidationError{Field: field, Reason: "must have at most 2 decimal places"}
	}
	return nil
}

func wholeCents(v decimal.Decimal) bool {
	return v.Equal(v.Round(2))
}

// ValidateStock rejects negative stock.
func ValidateStock(field string, stock int) error {
	if stock < 0 {
		return &ValidationError{Field: field, Reason: "must not be negative"}
	}
	return nil
}
