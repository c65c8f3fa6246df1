package cache

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ListPrefix is shared by every listing key; InvalidateAll drops all keys
// with this prefix.
const ListPrefix = "list:"

// KeyParams are the dimensions of a cacheable listing request. Empty strings
// and nil prices are absent dimensions.
type KeyParams struct {
	Size     string
	Type     string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Page     int
	Limit    int
}

// ListKey renders the listing key:
//
//	list:[size:<v>:][type:<v>:][minPrice:<v>:][maxPrice:<v>:]page:<n>:limit:<n>
//
// Prices are rendered in their shortest decimal form, so 1000 and 1000.00
// share one entry.
func ListKey(p KeyParams) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(ListPrefix)
	if p.Size != "" {
		field(&b, "size", p.Size)
	}
	if p.Type != "" {
		field(&b, "type", p.Type)
	}
	if p.MinPrice != nil {
		field(&b, "minPrice", p.MinPrice.String())
	}
	if p.MaxPrice != nil {
		field(&b, "maxPrice", p.MaxPrice.String())
	}
	field(&b, "page", strconv.Itoa(p.Page))
	b.WriteString("limit:")
	b.WriteString(strconv.Itoa(p.Limit))
	return b.String()
}

func field(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte(':')
}
