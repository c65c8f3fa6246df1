package importer

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
	"github.com/xenking/apparel-catalog/internal/domain/reconcile"
	"github.com/xenking/apparel-catalog/internal/domain/storefront"
)

// Record is one imported design.
type Record struct {
	Name        string
	Description string
	Type        string
	Discount    *catalog.Discount
	Variants    []RecordVariant
}

// RecordVariant is one size of an imported design.
type RecordVariant struct {
	Size  string
	Price decimal.Decimal
	Stock int
}

func (r Record) createRequest(owner string) storefront.CreateRequest {
	req := storefront.CreateRequest{
		OwnerID:     owner,
		Name:        r.Name,
		Description: r.Description,
		Type:        r.Type,
		Discount:    r.Discount,
	}
	for _, v := range r.Variants {
		req.Variants = append(req.Variants, storefront.NewVariant{Size: v.Size, Price: v.Price, Stock: v.Stock})
	}
	return req
}

// updateRequest replaces the design attributes and reconciles the variants
// as a size batch. Prices are taken from the record.
func (r Record) updateRequest(designID, owner string) reconcile.Request {
	req := reconcile.Request{
		DesignID: designID,
		OwnerID:  owner,
		Patch: reconcile.Patch{
			Description: &r.Description,
			Type:        &r.Type,
			Discount:    r.Discount,
		},
	}
	if r.Discount == nil {
		req.Patch.ClearDiscount = true
	}
	for _, v := range r.Variants {
		price := v.Price
		req.Sizes = append(req.Sizes, catalog.SizeStock{Size: v.Size, Stock: v.Stock, Price: &price})
	}
	return req
}

// DecodeRecord parses one JSON line. Prices and discount values may be JSON
// numbers or strings.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			r.Name, err = d.Str()
		case "description":
			r.Description, err = d.Str()
		case "type":
			r.Type, err = d.Str()
		case "discount":
			r.Discount, err = decodeDiscount(d)
		case "variants":
			err = d.Arr(func(d *jx.Decoder) error {
				v, err := decodeVariant(d)
				if err != nil {
					return err
				}
				r.Variants = append(r.Variants, v)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return Record{}, errors.Wrap(err, "decode record")
	}
	if r.Name == "" {
		return Record{}, errors.New("decode record: name is required")
	}
	return r, nil
}

func decodeVariant(d *jx.Decoder) (RecordVariant, error) {
	var v RecordVariant
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "size":
			v.Size, err = d.Str()
		case "price":
			v.Price, err = decodeAmount(d)
		case "stock":
			v.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return v, err
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
			v, err := decodeAmount(d)
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

func decodeAmount(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}
