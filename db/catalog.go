package db

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promo/internal/domain/product"
)

// ParseProducts decodes a JSON array of {id, name, category_id, price}.
// Prices may be strings or numbers.
func ParseProducts(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "category_id":
				p.CategoryID, err = d.Str()
			case "price":
				var raw []byte
				if raw, err = d.Raw(); err == nil {
					p.Price, err = parsePrice(raw)
				}
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		}); err != nil {
			return err
		}
		if p.ID == "" || p.CategoryID == "" {
			return errors.Errorf("product %q: id and category_id are required", p.Name)
		}
		if p.Price.IsNegative() {
			return errors.Errorf("product %s: negative price", p.ID)
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse products")
	}
	return out, nil
}

func parsePrice(raw []byte) (decimal.Decimal, error) {
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	return decimal.NewFromString(s)
}
