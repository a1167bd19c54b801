package auction

import "github.com/shopspring/decimal"

// PriceRule yields the minimum acceptable next bid. It must be monotonic:
// a higher current bid never lowers the minimum.
type PriceRule interface {
	Minimum(current *decimal.Decimal) decimal.Decimal
}

// IncrementRule charges Starting for the first bid and Increment over the
// current bid afterwards.
type IncrementRule struct {
	Starting  decimal.Decimal
	Increment decimal.Decimal
}

func (r IncrementRule) Minimum(current *decimal.Decimal) decimal.Decimal {
	if current == nil || !current.IsPositive() {
		return r.Starting
	}
	return current.Add(r.Increment)
}

// PriceRuleFunc adapts a function to PriceRule.
type PriceRuleFunc func(current *decimal.Decimal) decimal.Decimal

func (f PriceRuleFunc) Minimum(current *decimal.Decimal) decimal.Decimal { return f(current) }
