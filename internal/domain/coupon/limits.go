package coupon

// CheckLimits applies the usage caps of c to the given ledger counts. It is
// the single limit predicate used by validation and by every Ledger.
func CheckLimits(c *Coupon, total, perUser int) error {
	if c.UsageLimit != nil && total >= *c.UsageLimit {
		return ErrGlobalLimitReached
	}
	if c.PerUserLimit != nil && perUser >= *c.PerUserLimit {
		return ErrUserLimitReached
	}
	return nil
}
