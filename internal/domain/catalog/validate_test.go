package catalog

import (
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("Ocean Hoodie"))
	require.NoError(t, ValidateName(strings.Repeat("é", MaxNameLength)))

	err := ValidateName("   ")
	require.ErrorIs(t, err, ErrValidation)

	err = ValidateName(strings.Repeat("a", MaxNameLength+1))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)
}

func TestValidateDescription(t *testing.T) {
	require.NoError(t, ValidateDescription(""))
	require.ErrorIs(t, ValidateDescription(strings.Repeat("x", MaxDescriptionLength+1)), ErrValidation)
}

func TestValidateDiscount(t *testing.T) {
	require.NoError(t, ValidateDiscount(nil))
	require.NoError(t, ValidateDiscount(&Discount{Kind: DiscountAmount, Value: d("0")}))
	require.ErrorIs(t, ValidateDiscount(&Discount{Kind: "bogo", Value: d("1")}), ErrValidation)
	require.ErrorIs(t, ValidateDiscount(&Discount{Kind: DiscountPercentage, Value: d("-1")}), ErrValidation)
	require.NoError(t, ValidateDiscount(&Discount{Kind: DiscountPercentage, Value: d("12.50")}))
	require.ErrorIs(t, ValidateDiscount(&Discount{Kind: DiscountPercentage, Value: d("12.505")}), ErrValidation)
}

func TestValidatePriceAndStock(t *testing.T) {
	require.NoError(t, ValidatePrice("price", d("0")))
	require.NoError(t, ValidatePrice("price", d("10000")))
	require.ErrorIs(t, ValidatePrice("price", d("10000.01")), ErrValidation)
	require.ErrorIs(t, ValidatePrice("price", d("-0.01")), ErrValidation)
	require.NoError(t, ValidatePrice("price", d("10.010")))
	require.ErrorIs(t, ValidatePrice("price", d("10.005")), ErrValidation)

	require.NoError(t, ValidateStock("stock", 0))
	require.ErrorIs(t, ValidateStock("stock", -1), ErrValidation)
}

func TestErrorTaxonomy(t *testing.T) {
	conflict := errors.Wrap(&ConflictError{Size: "L"}, "reconcile")
	assert.ErrorIs(t, conflict, ErrConflict)
	assert.NotErrorIs(t, conflict, ErrValidation)
	assert.Equal(t, `reconcile: duplicate size "L"`, conflict.Error())

	partial := &PartialWriteError{DesignID: "d1", Failed: []string{"M", "L"}, Err: ErrNotFound}
	assert.ErrorIs(t, partial, ErrNotFound)
	assert.Contains(t, partial.Error(), "[M, L]")
}

// Any accepted price keeps its final price stable when the store rounds the
// price to NUMERIC(12,2).
func TestValidatePrice_FinalPriceSurvivesStorage(t *testing.T) {
	half := &Discount{Kind: DiscountPercentage, Value: d("50")}
	for _, raw := range []string{"10.005", "0.001", "9999.999"} {
		p := d(raw)
		require.ErrorIs(t, ValidatePrice("price", p), ErrValidation, raw)
	}
	for _, raw := range []string{"10.01", "10.1", "10", "0.03"} {
		p := d(raw)
		require.NoError(t, ValidatePrice("price", p), raw)
		stored := p.Round(2)
		assert.True(t, FinalPrice(p, half).Equal(FinalPrice(stored, half)), raw)
	}
}
