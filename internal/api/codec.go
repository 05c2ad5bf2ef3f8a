package api

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-promo/internal/domain/checkout"
	"github.com/xenking/kart-promo/internal/domain/coupon"
	"github.com/xenking/kart-promo/internal/domain/pricing"
	"github.com/xenking/kart-promo/internal/domain/product"
	"github.com/xenking/kart-promo/internal/domain/sale"
)

// decodeRule reads a rule object. "offer_type" is accepted as shorthand for
// the kind and scope pair; explicit fields win over it. A missing scope is
// global.
func decodeRule(d *jx.Decoder) (pricing.PriceRule, error) {
	var (
		rule      pricing.PriceRule
		offerType string
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "discount_kind":
			var s string
			s, err = d.Str()
			rule.Kind = pricing.DiscountKind(s)
		case "offer_type":
			offerType, err = d.Str()
		case "value":
			rule.Value, err = readDecimal(d)
		case "max_discount":
			rule.MaxDiscount, err = readOptDecimal(d)
		case "min_order_amount":
			rule.MinOrderAmount, err = readOptDecimal(d)
		case "valid_from":
			rule.ValidFrom, err = readOptTime(d)
		case "valid_until":
			rule.ValidUntil, err = readOptTime(d)
		case "scope":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "kind":
					s, err := d.Str()
					rule.Scope.Kind = pricing.ScopeKind(s)
					return err
				case "target_id":
					s, err := d.Str()
					rule.Scope.TargetID = s
					return err
				default:
					return d.Skip()
				}
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return rule, err
	}

	if offerType != "" {
		kind, scope, err := pricing.FromOfferType(offerType)
		if err != nil {
			return rule, err
		}
		if rule.Kind == "" {
			rule.Kind = kind
		}
		if rule.Scope.Kind == "" {
			rule.Scope.Kind = scope
		}
	}
	if rule.Scope.Kind == "" {
		rule.Scope.Kind = pricing.ScopeGlobal
	}
	return rule, nil
}

func encRule(e *jx.Encoder, r pricing.PriceRule) {
	e.ObjStart()
	encStr(e, "discount_kind", string(r.Kind))
	e.FieldStart("value")
	e.Str(r.Value.String())
	if r.MaxDiscount != nil {
		encMoney(e, "max_discount", *r.MaxDiscount)
	}
	if r.MinOrderAmount != nil {
		encMoney(e, "min_order_amount", *r.MinOrderAmount)
	}
	encOptTime(e, "valid_from", r.ValidFrom)
	encOptTime(e, "valid_until", r.ValidUntil)
	e.FieldStart("scope")
	e.ObjStart()
	encStr(e, "kind", string(r.Scope.Kind))
	if r.Scope.TargetID != "" {
		encStr(e, "target_id", r.Scope.TargetID)
	}
	e.ObjEnd()
	e.ObjEnd()
}

func encProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	encStr(e, "id", p.ID)
	encStr(e, "name", p.Name)
	encStr(e, "category_id", p.CategoryID)
	encMoney(e, "price", p.Price)
	e.ObjEnd()
}

func encSale(e *jx.Encoder, s sale.Sale) {
	e.ObjStart()
	encStr(e, "id", s.ID)
	encStr(e, "name", s.Name)
	if s.Description != "" {
		encStr(e, "description", s.Description)
	}
	e.FieldStart("rule")
	encRule(e, s.Rule)
	encBool(e, "is_featured", s.IsFeatured)
	encBool(e, "is_active", s.IsActive)
	encTime(e, "created_at", s.CreatedAt)
	encTime(e, "updated_at", s.UpdatedAt)
	e.ObjEnd()
}

func encCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.ObjStart()
	encStr(e, "id", c.ID)
	encStr(e, "code", c.Code)
	if c.Description != "" {
		encStr(e, "description", c.Description)
	}
	e.FieldStart("rule")
	encRule(e, c.Rule)
	if c.UsageLimit != nil {
		encInt(e, "usage_limit", *c.UsageLimit)
	}
	if c.PerUserLimit != nil {
		encInt(e, "per_user_limit", *c.PerUserLimit)
	}
	encBool(e, "is_active", c.IsActive)
	encTime(e, "created_at", c.CreatedAt)
	encTime(e, "updated_at", c.UpdatedAt)
	e.ObjEnd()
}

func encUsage(e *jx.Encoder, u coupon.Usage) {
	e.ObjStart()
	encStr(e, "id", u.ID)
	encStr(e, "coupon_id", u.CouponID)
	encStr(e, "user_id", u.UserID)
	encStr(e, "order_id", u.OrderID)
	encMoney(e, "discount_amount", u.DiscountAmount)
	encTime(e, "created_at", u.CreatedAt)
	e.ObjEnd()
}

// encQuoteFields writes the quote's fields into an already open object.
func encQuoteFields(e *jx.Encoder, q *checkout.Quote) {
	encStr(e, "policy", string(q.Policy))
	encTime(e, "at", q.At)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range q.Lines {
		e.ObjStart()
		encStr(e, "product_id", l.Product.ID)
		encStr(e, "name", l.Product.Name)
		encInt(e, "quantity", l.Quantity)
		encMoney(e, "unit_price", l.Product.Price)
		encMoney(e, "unit_discount", l.UnitDiscount)
		if l.Sale != nil {
			encStr(e, "sale_id", l.Sale.ID)
			encStr(e, "sale_name", l.Sale.Name)
		}
		encMoney(e, "subtotal", l.Subtotal)
		encMoney(e, "discount", l.Discount)
		encMoney(e, "total", l.Total)
		e.ObjEnd()
	}
	e.ArrEnd()
	encMoney(e, "subtotal", q.Subtotal)
	encMoney(e, "sale_discount", q.SaleDiscount)
	if q.Coupon != nil {
		e.FieldStart("coupon")
		e.ObjStart()
		encStr(e, "id", q.Coupon.ID)
		encStr(e, "code", q.Coupon.Code)
		encBool(e, "applied", q.CouponApplied)
		e.ObjEnd()
	}
	encMoney(e, "coupon_discount", q.CouponDiscount)
	encMoney(e, "discount", q.Discount())
	encMoney(e, "total", q.Total)
}
