package lending

import (
	"math/big"

	"lendnet/crypto"
)

// AssetID identifies a fungible asset tracked by the asset ledger.
type AssetID uint32

// Pool captures the global accounting state for one asset market. Amounts are
// denominated in the asset's smallest unit and expressed as big integers to
// keep on-chain precision. Factors and indices are ray-scaled (1e27) fixed
// point values.
type Pool struct {
	// Asset is the underlying asset identifier.
	Asset AssetID
	// Enabled records that the pool has been initialised. Informational;
	// operational gating happens through the module pause switch.
	Enabled bool
	// CanBeCollateral marks whether supplied balances count as collateral and
	// may be seized during liquidation.
	CanBeCollateral bool
	// Supply is the aggregate liquidity deposited by suppliers, including
	// accrued interest.
	Supply *big.Int
	// Debt is the outstanding borrowed amount, including accrued interest.
	Debt *big.Int
	// SupplyIndex is the cumulative interest index applied to supplier
	// positions. Monotonically non-decreasing, initialised to 1.0.
	SupplyIndex *big.Int
	// DebtIndex is the cumulative interest index applied to borrower
	// positions. Monotonically non-decreasing, initialised to 1.0.
	DebtIndex *big.Int
	// LastUpdated records the time counter at which interest was last accrued.
	LastUpdated uint64
	// SafeFactor derates collateral value when computing the borrow limit.
	SafeFactor *big.Int
	// CloseFactor bounds the fraction of a supply position seizable in one
	// liquidation call.
	CloseFactor *big.Int
	// DiscountFactor converts repaid debt value into seized collateral value;
	// below 1.0 the liquidator receives a bonus.
	DiscountFactor *big.Int
	// UtilizationFactor is the slope of the linear interest model.
	UtilizationFactor *big.Int
	// BaseRateDebt is the debt rate applied at zero utilization.
	BaseRateDebt *big.Int
	// BaseRateSupply is the supply rate applied at zero utilization.
	BaseRateSupply *big.Int
}

// Clone returns a deep copy of the pool so callers can mutate it in scope
// without touching stored state.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := &Pool{
		Asset:           p.Asset,
		Enabled:         p.Enabled,
		CanBeCollateral: p.CanBeCollateral,
		LastUpdated:     p.LastUpdated,
	}
	clone.Supply = cloneBig(p.Supply)
	clone.Debt = cloneBig(p.Debt)
	clone.SupplyIndex = cloneBig(p.SupplyIndex)
	clone.DebtIndex = cloneBig(p.DebtIndex)
	clone.SafeFactor = cloneBig(p.SafeFactor)
	clone.CloseFactor = cloneBig(p.CloseFactor)
	clone.DiscountFactor = cloneBig(p.DiscountFactor)
	clone.UtilizationFactor = cloneBig(p.UtilizationFactor)
	clone.BaseRateDebt = cloneBig(p.BaseRateDebt)
	clone.BaseRateSupply = cloneBig(p.BaseRateSupply)
	return clone
}

// Cash returns the transferable liquidity left in the pool, supply minus debt.
func (p *Pool) Cash() *big.Int {
	cash := new(big.Int).Sub(p.Supply, p.Debt)
	if cash.Sign() < 0 {
		return big.NewInt(0)
	}
	return cash
}

// Position is a user's principal plus the pool index snapshot taken when the
// principal was last rewritten. The current value is always
// amount * (pool index / position index); storage holds the stale principal
// until the next touch.
type Position struct {
	// Amount is the principal recorded at the last touch.
	Amount *big.Int
	// Index is the pool's compounding index at the time Amount was written.
	Index *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{Amount: cloneBig(p.Amount), Index: cloneBig(p.Index)}
}

// UserInfo aggregates a user's cross-asset standing in the common numeraire.
type UserInfo struct {
	// SupplyValue is the oracle-converted value of all supply positions.
	SupplyValue *big.Int
	// BorrowLimit is the safe-factor derated collateral value available to
	// back debt.
	BorrowLimit *big.Int
	// DebtValue is the oracle-converted value of all debt positions.
	DebtValue *big.Int
}

// AssetLedger is the external fungible balance store. The engine mirrors its
// transfers in pool accounting but never owns token balances itself.
type AssetLedger interface {
	Transfer(from crypto.Address, asset AssetID, to crypto.Address, amount *big.Int) error
	Balance(asset AssetID, who crypto.Address) (*big.Int, error)
}

// Oracle supplies a unit price for an asset in the common numeraire. A nil or
// zero price means the feed is unavailable.
type Oracle interface {
	GetRate(asset AssetID) (*big.Rat, error)
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
