package lending

import "math/big"

// RateModel derives per-time-unit interest rates from a pool's state. Models
// must be monotonic non-decreasing in utilization and bounded so the accrual
// multiplier stays finite.
type RateModel interface {
	DebtRate(pool *Pool) *big.Rat
	SupplyRate(pool *Pool) *big.Rat
}

// LinearRateModel implements the pool-parameterised linear curve:
//
//	debt_rate   = base_rate_debt + utilization_factor * u
//	supply_rate = base_rate_supply + debt_rate * u
//
// where u = debt/supply, defined as zero for an empty pool. The supply rate
// trails the debt rate by the utilization ratio so interest paid by borrowers
// funds interest earned by suppliers.
type LinearRateModel struct{}

// Utilization computes u = debt/supply for the pool, zero when the pool holds
// no supply.
func (LinearRateModel) Utilization(pool *Pool) *big.Rat {
	if pool == nil || pool.Supply == nil || pool.Supply.Sign() == 0 {
		return new(big.Rat)
	}
	if pool.Debt == nil || pool.Debt.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(new(big.Int).Set(pool.Debt), new(big.Int).Set(pool.Supply))
}

func (m LinearRateModel) DebtRate(pool *Pool) *big.Rat {
	if pool == nil {
		return new(big.Rat)
	}
	base := ratFromRay(pool.BaseRateDebt)
	if pool.Supply == nil || pool.Supply.Sign() == 0 {
		return base
	}
	slope := new(big.Rat).Mul(ratFromRay(pool.UtilizationFactor), m.Utilization(pool))
	return base.Add(base, slope)
}

func (m LinearRateModel) SupplyRate(pool *Pool) *big.Rat {
	if pool == nil {
		return new(big.Rat)
	}
	base := ratFromRay(pool.BaseRateSupply)
	if pool.Supply == nil || pool.Supply.Sign() == 0 {
		return base
	}
	earned := new(big.Rat).Mul(m.DebtRate(pool), m.Utilization(pool))
	return base.Add(base, earned)
}
