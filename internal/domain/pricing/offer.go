package pricing

import "github.com/go-faster/errors"

// FromOfferType maps the storefront's single offerType enum onto the
// orthogonal kind and scope pair. The mapping mirrors how the storefront
// priced each offer: category and flash_sale offers were percentages, product
// offers were flat amounts.
func FromOfferType(offerType string) (DiscountKind, ScopeKind, error) {
	switch offerType {
	case "percentage":
		return DiscountPercentage, ScopeGlobal, nil
	case "flat":
		return DiscountFlatAmount, ScopeGlobal, nil
	case "category":
		return DiscountPercentage, ScopeCategory, nil
	case "product":
		return DiscountFlatAmount, ScopeProduct, nil
	case "flash_sale":
		return DiscountPercentage, ScopeGlobal, nil
	default:
		return "", "", errors.Wrapf(ErrInvalidArgument, "unknown offer type %q", offerType)
	}
}
