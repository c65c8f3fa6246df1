package listing

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
)

// Cached pages are JSON. Decimals are strings so no precision is lost,
// timestamps are RFC 3339 with nanoseconds.

func encodeResult(r *Result) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("total", func(e *jx.Encoder) { e.Int(r.Total) })
		e.Field("page", func(e *jx.Encoder) { e.Int(r.Page) })
		e.Field("limit", func(e *jx.Encoder) { e.Int(r.Limit) })
		e.Field("totalPages", func(e *jx.Encoder) { e.Int(r.TotalPages) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range r.Items {
					encodeItem(e, &r.Items[i])
				}
			})
		})
	})
	return e.Bytes()
}

func encodeItem(e *jx.Encoder, it *catalog.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
		e.Field("designId", func(e *jx.Encoder) { e.Str(it.DesignID) })
		e.Field("size", func(e *jx.Encoder) { e.Str(it.Size) })
		e.Field("price", func(e *jx.Encoder) { e.Str(it.Price.String()) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(it.Stock) })
		e.Field("finalPrice", func(e *jx.Encoder) { e.Str(it.FinalPrice.String()) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(it.CreatedAt.Format(time.RFC3339Nano)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(it.UpdatedAt.Format(time.RFC3339Nano)) })
		e.Field("ownerId", func(e *jx.Encoder) { e.Str(it.OwnerID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(it.Description) })
		e.Field("type", func(e *jx.Encoder) { e.Str(it.Type) })
		e.Field("discount", func(e *jx.Encoder) {
			if it.Discount == nil {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				e.Field("kind", func(e *jx.Encoder) { e.Str(string(it.Discount.Kind)) })
				e.Field("value", func(e *jx.Encoder) { e.Str(it.Discount.Value.String()) })
			})
		})
	})
}

func decodeResult(data []byte) (*Result, error) {
	var r Result
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "total":
			r.Total, err = d.Int()
		case "page":
			r.Page, err = d.Int()
		case "limit":
			r.Limit, err = d.Int()
		case "totalPages":
			r.TotalPages, err = d.Int()
		case "items":
			r.Items = []catalog.Item{}
			err = d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return err
				}
				r.Items = append(r.Items, it)
				return nil
			})
		default:
			err = d.Skip()
		}
		return wrapField(err, key)
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cached page")
	}
	return &r, nil
}

func decodeItem(d *jx.Decoder) (catalog.Item, error) {
	var it catalog.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = d.Str()
		case "designId":
			it.DesignID, err = d.Str()
		case "size":
			it.Size, err = d.Str()
		case "price":
			it.Price, err = decodeDecimal(d)
		case "stock":
			it.Stock, err = d.Int()
		case "finalPrice":
			it.FinalPrice, err = decodeDecimal(d)
		case "createdAt":
			it.CreatedAt, err = decodeTime(d)
		case "updatedAt":
			it.UpdatedAt, err = decodeTime(d)
		case "ownerId":
			it.OwnerID, err = d.Str()
		case "name":
			it.Name, err = d.Str()
		case "description":
			it.Description, err = d.Str()
		case "type":
			it.Type, err = d.Str()
		case "discount":
			it.Discount, err = decodeDiscount(d)
		default:
			err = d.Skip()
		}
		return wrapField(err, key)
	})
	return it, err
}

func wrapField(err error, key string) error {
	if err != nil {
		return errors.Wrap(err, key)
	}
	return nil
}

func decodeDiscount(d *jx.Decoder) (*catalog.Discount, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var disc catalog.Discount
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "kind":
			kind, err := d.Str()
			disc.Kind = catalog.DiscountKind(kind)
			return err
		case "value":
			v, err := decodeDecimal(d)
			disc.Value = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &disc, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(s)
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
