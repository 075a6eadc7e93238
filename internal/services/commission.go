// internal/services/commission.go
package services

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultPlatformRate is the marketplace's share of every sale.
var DefaultPlatformRate = decimal.RequireFromString("0.15")

// CommissionCalculator splits a gross amount (minor currency units) into the
// platform commission and the seller's net payout.
type CommissionCalculator struct {
	rate decimal.Decimal
}

// NewCommissionCalculator accepts rates in [0, 1).
func NewCommissionCalculator(rate decimal.Decimal) (*CommissionCalculator, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be in [0, 1), got %s", rate)
	}
	return &CommissionCalculator{rate: rate}, nil
}

func (c *CommissionCalculator) Rate() decimal.Decimal {
	return c.rate
}

// Split returns commission = round-half-up(gross * rate) and net = gross - commission.
// The product is computed in exact decimal arithmetic, so commission + net == gross.
func (c *CommissionCalculator) Split(gross int64) (commission, net int64) {
	exact := decimal.NewFromInt(gross).Mul(c.rate)
	// Round rounds half away from zero, which is half-up for non-negative amounts.
	commission = exact.Round(0).IntPart()
	net = gross - commission
	return commission, net
}
