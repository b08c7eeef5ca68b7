package lending

import (
	"fmt"
	"math"
	"math/big"

	"lendnet/crypto"
	nativecommon "lendnet/native/common"
)

const moduleName = "lending"

// Default risk parameters applied to freshly initialised pools. Rates are per
// time unit of the accrual counter.
var (
	defaultSafeFactor        = rayFromRat(big.NewRat(7, 10))
	defaultCloseFactor       = new(big.Int).Set(ray)
	defaultDiscountFactor    = rayFromRat(big.NewRat(95, 100))
	defaultUtilizationFactor = rayFromRat(big.NewRat(385, 10_000_000_000))  // 3.85e-8
	defaultBaseRateDebt      = rayFromRat(big.NewRat(385, 100_000_000_000)) // 3.85e-9
	defaultBaseRateSupply    = big.NewInt(0)
)

// Engine orchestrates the state transitions of the lending module: pool
// bookkeeping, lazy interest accrual, position rebasing, cross-asset health
// checks and liquidations. Execution is strictly sequential; one call runs to
// completion before the next begins. Every call stages its mutations in a
// single changeset and commits exactly once, so a failure at any step leaves
// storage untouched.
type Engine struct {
	state     State
	ledger    AssetLedger
	oracle    Oracle
	custody   crypto.Address
	model     RateModel
	threshold *big.Int // ray-scaled liquidation threshold
	height    uint64
	pauses    nativecommon.PauseView
}

// NewEngine constructs an engine wired to the external asset ledger and price
// oracle. The custody address holds pooled funds inside the asset ledger.
func NewEngine(ledger AssetLedger, oracle Oracle, custody crypto.Address) *Engine {
	return &Engine{
		ledger:    ledger,
		oracle:    oracle,
		custody:   custody,
		model:     LinearRateModel{},
		threshold: new(big.Int).Set(ray),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetPauses installs the module pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetRateModel swaps the interest rate model. A nil model restores the linear
// default.
func (e *Engine) SetRateModel(model RateModel) {
	if e == nil {
		return
	}
	if model == nil {
		e.model = LinearRateModel{}
		return
	}
	e.model = model
}

// SetBlockHeight records the time counter used when computing accrual deltas.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.height = height
}

// SetLiquidationThreshold configures the safety margin compared against the
// borrow limit. The default is 1.0.
func (e *Engine) SetLiquidationThreshold(threshold *big.Rat) {
	if e == nil || threshold == nil || threshold.Sign() <= 0 {
		return
	}
	e.threshold = rayFromRat(threshold)
}

// Custody returns the ledger address holding pooled funds.
func (e *Engine) Custody() crypto.Address { return e.custody }

// InitPool creates the pool for an asset with default risk parameters and
// indices at 1.0. Initialising an existing pool is a no-op so a genesis
// bootstrap can be replayed safely.
func (e *Engine) InitPool(asset AssetID, canBeCollateral bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	existing, err := e.state.Pool(asset)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	pool := &Pool{
		Asset:             asset,
		Enabled:           true,
		CanBeCollateral:   canBeCollateral,
		Supply:            big.NewInt(0),
		Debt:              big.NewInt(0),
		SupplyIndex:       new(big.Int).Set(ray),
		DebtIndex:         new(big.Int).Set(ray),
		LastUpdated:       e.height,
		SafeFactor:        new(big.Int).Set(defaultSafeFactor),
		CloseFactor:       new(big.Int).Set(defaultCloseFactor),
		DiscountFactor:    new(big.Int).Set(defaultDiscountFactor),
		UtilizationFactor: new(big.Int).Set(defaultUtilizationFactor),
		BaseRateDebt:      new(big.Int).Set(defaultBaseRateDebt),
		BaseRateSupply:    new(big.Int).Set(defaultBaseRateSupply),
	}
	cs := NewChangeset()
	cs.PutPool(pool)
	return e.state.Apply(cs)
}

// Supply deposits amount of the asset into its pool. The caller's funds move
// into pool custody and the supply position is rebased and increased.
func (e *Engine) Supply(addr crypto.Address, asset AssetID, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return err
	}
	if err := e.accrue(pool); err != nil {
		return err
	}
	if err := e.ledger.Transfer(addr, asset, e.custody, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	cs := NewChangeset()
	pos, err := e.state.UserSupply(asset, addr)
	if err != nil {
		return err
	}
	if pos != nil {
		rebase(pos, pool.SupplyIndex)
		pos.Amount.Add(pos.Amount, amount)
	} else {
		pos = &Position{Amount: new(big.Int).Set(amount), Index: new(big.Int).Set(pool.SupplyIndex)}
	}
	cs.PutSupply(asset, addr, pos)

	set, err := e.state.SupplySet(addr)
	if err != nil {
		return err
	}
	if updated, changed := addToSet(set, asset); changed {
		cs.PutSupplySet(addr, updated)
	}

	pool.Supply.Add(pool.Supply, amount)
	cs.PutPool(pool)
	return e.state.Apply(cs)
}

// Withdraw releases up to amount of the caller's supply back to them. The
// request is clamped to the rebased position, must keep the caller above the
// liquidation threshold and cannot exceed pool cash. The withdrawn amount is
// returned.
func (e *Engine) Withdraw(addr crypto.Address, asset AssetID, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(pool); err != nil {
		return nil, err
	}
	pos, err := e.state.UserSupply(asset, addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrUserNoSupply
	}
	rebase(pos, pool.SupplyIndex)
	withdrawn := minBig(amount, pos.Amount)

	info, err := e.UserInfo(addr)
	if err != nil {
		return nil, err
	}
	price, err := e.price(asset)
	if err != nil {
		return nil, err
	}
	derated := new(big.Rat).Mul(price, ratFromRay(pool.SafeFactor))
	remainingLimit := new(big.Int).Sub(info.BorrowLimit, ratMulInt(derated, withdrawn))
	if e.belowThreshold(info.DebtValue, remainingLimit) {
		return nil, ErrBelowLiquidationThreshold
	}
	if pool.Cash().Cmp(withdrawn) < 0 {
		return nil, ErrNotEnoughLiquidity
	}
	if err := e.ledger.Transfer(e.custody, asset, addr, withdrawn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	cs := NewChangeset()
	pos.Amount.Sub(pos.Amount, withdrawn)
	if err := e.stageSupply(cs, asset, addr, pos); err != nil {
		return nil, err
	}
	pool.Supply.Sub(pool.Supply, withdrawn)
	cs.PutPool(pool)
	if err := e.state.Apply(cs); err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// Borrow lends amount of the asset to the caller against their cross-asset
// collateral. Pool cash must cover the amount and the hypothetical
// post-borrow debt must stay above the threshold.
func (e *Engine) Borrow(addr crypto.Address, asset AssetID, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return err
	}
	if err := e.accrue(pool); err != nil {
		return err
	}
	if pool.Cash().Cmp(amount) < 0 {
		return ErrNotEnoughLiquidity
	}
	pos, err := e.state.UserDebt(asset, addr)
	if err != nil {
		return err
	}
	if pos != nil {
		rebase(pos, pool.DebtIndex)
	}

	info, err := e.UserInfo(addr)
	if err != nil {
		return err
	}
	price, err := e.price(asset)
	if err != nil {
		return err
	}
	projectedDebt := new(big.Int).Add(info.DebtValue, ratMulInt(price, amount))
	if e.belowThreshold(projectedDebt, info.BorrowLimit) {
		return ErrBelowLiquidationThreshold
	}
	if err := e.ledger.Transfer(e.custody, asset, addr, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	cs := NewChangeset()
	if pos != nil {
		pos.Amount.Add(pos.Amount, amount)
	} else {
		pos = &Position{Amount: new(big.Int).Set(amount), Index: new(big.Int).Set(pool.DebtIndex)}
	}
	cs.PutDebt(asset, addr, pos)

	set, err := e.state.DebtSet(addr)
	if err != nil {
		return err
	}
	if updated, changed := addToSet(set, asset); changed {
		cs.PutDebtSet(addr, updated)
	}

	pool.Debt.Add(pool.Debt, amount)
	cs.PutPool(pool)
	return e.state.Apply(cs)
}

// Repay pays back up to amount of the caller's debt, clamped to the rebased
// outstanding value. The repaid amount is returned.
func (e *Engine) Repay(addr crypto.Address, asset AssetID, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := e.loadPool(asset)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(pool); err != nil {
		return nil, err
	}
	pos, err := e.state.UserDebt(asset, addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrUserNoDebt
	}
	rebase(pos, pool.DebtIndex)
	repaid := minBig(amount, pos.Amount)
	if err := e.ledger.Transfer(addr, asset, e.custody, repaid); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	cs := NewChangeset()
	pos.Amount.Sub(pos.Amount, repaid)
	if err := e.stageDebt(cs, asset, addr, pos); err != nil {
		return nil, err
	}
	pool.Debt.Sub(pool.Debt, repaid)
	cs.PutPool(pool)
	if err := e.state.Apply(cs); err != nil {
		return nil, err
	}
	return repaid, nil
}

// Liquidate lets a third party repay part of an undercollateralised target's
// debt in payAsset and seize discounted collateral in getAsset. The paid and
// seized amounts are returned. The pay amount is capped by the close-factor
// bound converted through oracle prices and by the target's outstanding debt,
// whichever is smallest.
func (e *Engine) Liquidate(liquidator, target crypto.Address, payAsset, getAsset AssetID, payAmount *big.Int) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if payAmount == nil || payAmount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	getPool, err := e.loadPool(getAsset)
	if err != nil {
		return nil, nil, err
	}
	if !getPool.CanBeCollateral {
		return nil, nil, ErrAssetNotCollateral
	}
	payPool := getPool
	if payAsset != getAsset {
		payPool, err = e.loadPool(payAsset)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := e.accrue(getPool); err != nil {
		return nil, nil, err
	}
	if payAsset != getAsset {
		if err := e.accrue(payPool); err != nil {
			return nil, nil, err
		}
	}

	supplyPos, err := e.state.UserSupply(getAsset, target)
	if err != nil {
		return nil, nil, err
	}
	if supplyPos == nil {
		return nil, nil, ErrUserNoSupply
	}
	debtPos, err := e.state.UserDebt(payAsset, target)
	if err != nil {
		return nil, nil, err
	}
	if debtPos == nil {
		return nil, nil, ErrUserNoDebt
	}
	rebase(supplyPos, getPool.SupplyIndex)
	rebase(debtPos, payPool.DebtIndex)

	info, err := e.UserInfo(target)
	if err != nil {
		return nil, nil, err
	}
	if !e.belowThreshold(info.DebtValue, info.BorrowLimit) {
		return nil, nil, ErrAboveLiquidationThreshold
	}

	getPrice, err := e.price(getAsset)
	if err != nil {
		return nil, nil, err
	}
	payPrice, err := e.price(payAsset)
	if err != nil {
		return nil, nil, err
	}
	if getPool.DiscountFactor == nil || getPool.DiscountFactor.Sign() == 0 {
		return nil, nil, ErrPriceUnavailable
	}
	discount := ratFromRay(getPool.DiscountFactor)

	// Seizure bound: at most close_factor of the target's collateral position,
	// converted into pay-asset units at oracle prices with the discount baked
	// in, and never more than the outstanding debt.
	seizeLimit := rayMulInt(getPool.CloseFactor, supplyPos.Amount)
	payRatio := new(big.Rat).Mul(new(big.Rat).Quo(getPrice, payPrice), discount)
	payLimit := ratMulInt(payRatio, seizeLimit)
	pay := minBig(payAmount, payLimit, debtPos.Amount)

	// Convert back to collateral units. A discount below 1.0 hands the
	// liquidator more collateral value than the debt value repaid.
	getRatio := new(big.Rat).Quo(payPrice, new(big.Rat).Mul(getPrice, discount))
	get := ratMulInt(getRatio, pay)
	if get.Cmp(supplyPos.Amount) > 0 {
		get = new(big.Int).Set(supplyPos.Amount)
	}

	liqBalance, err := e.ledger.Balance(payAsset, liquidator)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if liqBalance.Cmp(pay) < 0 {
		return nil, nil, ErrTransferFailed
	}
	custodyBalance, err := e.ledger.Balance(getAsset, e.custody)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if custodyBalance.Cmp(get) < 0 {
		return nil, nil, ErrTransferFailed
	}
	if err := e.ledger.Transfer(liquidator, payAsset, e.custody, pay); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.ledger.Transfer(e.custody, getAsset, liquidator, get); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	cs := NewChangeset()
	supplyPos.Amount.Sub(supplyPos.Amount, get)
	if err := e.stageSupply(cs, getAsset, target, supplyPos); err != nil {
		return nil, nil, err
	}
	debtPos.Amount.Sub(debtPos.Amount, pay)
	if err := e.stageDebt(cs, payAsset, target, debtPos); err != nil {
		return nil, nil, err
	}
	getPool.Supply.Sub(getPool.Supply, get)
	payPool.Debt.Sub(payPool.Debt, pay)
	cs.PutPool(getPool)
	if payAsset != getAsset {
		cs.PutPool(payPool)
	}
	if err := e.state.Apply(cs); err != nil {
		return nil, nil, err
	}
	return pay, get, nil
}

// UserInfo aggregates the user's positions across all touched assets into the
// common numeraire: total supply value, safe-factor derated borrow limit, and
// total debt value. The read is side-effect free; pools that have not been
// accrued at the current height are projected forward transiently.
func (e *Engine) UserInfo(addr crypto.Address) (*UserInfo, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	info := &UserInfo{
		SupplyValue: big.NewInt(0),
		BorrowLimit: big.NewInt(0),
		DebtValue:   big.NewInt(0),
	}

	supplyAssets, err := e.state.SupplySet(addr)
	if err != nil {
		return nil, err
	}
	for _, asset := range supplyAssets {
		pool, err := e.state.Pool(asset)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			continue
		}
		pos, err := e.state.UserSupply(asset, addr)
		if err != nil {
			return nil, err
		}
		if pos == nil {
			continue
		}
		supplyIdx, _, err := e.projectedIndexes(pool)
		if err != nil {
			return nil, err
		}
		amount := mulDiv(pos.Amount, supplyIdx, pos.Index)
		price, err := e.price(asset)
		if err != nil {
			return nil, err
		}
		info.SupplyValue.Add(info.SupplyValue, ratMulInt(price, amount))
		derated := new(big.Rat).Mul(price, ratFromRay(pool.SafeFactor))
		info.BorrowLimit.Add(info.BorrowLimit, ratMulInt(derated, amount))
	}

	debtAssets, err := e.state.DebtSet(addr)
	if err != nil {
		return nil, err
	}
	for _, asset := range debtAssets {
		pool, err := e.state.Pool(asset)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			continue
		}
		pos, err := e.state.UserDebt(asset, addr)
		if err != nil {
			return nil, err
		}
		if pos == nil {
			continue
		}
		_, debtIdx, err := e.projectedIndexes(pool)
		if err != nil {
			return nil, err
		}
		amount := mulDiv(pos.Amount, debtIdx, pos.Index)
		price, err := e.price(asset)
		if err != nil {
			return nil, err
		}
		info.DebtValue.Add(info.DebtValue, ratMulInt(price, amount))
	}
	return info, nil
}

// SupplyBalance returns the user's current supply amount in the asset with
// interest projected to the present, without mutating storage.
func (e *Engine) SupplyBalance(asset AssetID, addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.state.Pool(asset)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotExist
	}
	pos, err := e.state.UserSupply(asset, addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return big.NewInt(0), nil
	}
	supplyIdx, _, err := e.projectedIndexes(pool)
	if err != nil {
		return nil, err
	}
	return mulDiv(pos.Amount, supplyIdx, pos.Index), nil
}

// DebtBalance returns the user's current debt amount in the asset with
// interest projected to the present, without mutating storage.
func (e *Engine) DebtBalance(asset AssetID, addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.state.Pool(asset)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotExist
	}
	pos, err := e.state.UserDebt(asset, addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return big.NewInt(0), nil
	}
	_, debtIdx, err := e.projectedIndexes(pool)
	if err != nil {
		return nil, err
	}
	return mulDiv(pos.Amount, debtIdx, pos.Index), nil
}

// GetPool returns a copy of the pool record for queries.
func (e *Engine) GetPool(asset AssetID) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.state.Pool(asset)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotExist
	}
	return pool.Clone(), nil
}

// SupplyRate reports the pool's current per-time-unit supply rate.
func (e *Engine) SupplyRate(asset AssetID) (*big.Rat, error) {
	pool, err := e.GetPool(asset)
	if err != nil {
		return nil, err
	}
	return e.model.SupplyRate(pool), nil
}

// DebtRate reports the pool's current per-time-unit debt rate.
func (e *Engine) DebtRate(asset AssetID) (*big.Rat, error) {
	pool, err := e.GetPool(asset)
	if err != nil {
		return nil, err
	}
	return e.model.DebtRate(pool), nil
}

// --- internals ---

func (e *Engine) loadPool(asset AssetID) (*Pool, error) {
	pool, err := e.state.Pool(asset)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotExist
	}
	return pool, nil
}

// accrue applies lazy interest to the in-scope pool copy. It is idempotent
// within one time unit: a second call at the same height is a no-op.
func (e *Engine) accrue(pool *Pool) error {
	elapsed, err := e.elapsedSince(pool.LastUpdated)
	if err != nil {
		return err
	}
	if elapsed == 0 {
		return nil
	}
	// Rates are read before totals move so both multipliers see the same
	// pre-accrual utilization.
	supplyFactor := rateFactor(e.model.SupplyRate(pool), elapsed)
	debtFactor := rateFactor(e.model.DebtRate(pool), elapsed)

	pool.Supply = rayMulInt(supplyFactor, pool.Supply)
	pool.SupplyIndex = rayMul(pool.SupplyIndex, supplyFactor)
	pool.Debt = rayMulInt(debtFactor, pool.Debt)
	pool.DebtIndex = rayMul(pool.DebtIndex, debtFactor)
	pool.LastUpdated = e.height
	return nil
}

// elapsedSince converts the accrual gap to the bounded working width. A gap
// that does not fit is surfaced as an error, never truncated.
func (e *Engine) elapsedSince(last uint64) (uint32, error) {
	if e.height <= last {
		return 0, nil
	}
	delta := e.height - last
	if delta > math.MaxUint32 {
		return 0, ErrElapsedOverflow
	}
	return uint32(delta), nil
}

// projectedIndexes returns the pool's indices advanced to the current height
// without mutating the pool, so health reads reflect elapsed interest even
// before the pool is accrued.
func (e *Engine) projectedIndexes(pool *Pool) (*big.Int, *big.Int, error) {
	elapsed, err := e.elapsedSince(pool.LastUpdated)
	if err != nil {
		return nil, nil, err
	}
	if elapsed == 0 {
		return new(big.Int).Set(pool.SupplyIndex), new(big.Int).Set(pool.DebtIndex), nil
	}
	supplyIdx := rayMul(pool.SupplyIndex, rateFactor(e.model.SupplyRate(pool), elapsed))
	debtIdx := rayMul(pool.DebtIndex, rateFactor(e.model.DebtRate(pool), elapsed))
	return supplyIdx, debtIdx, nil
}

// rebase projects a position forward to the pool's current index and snapshots
// the index. Pure bookkeeping; callers pre-clamp any subtraction.
func rebase(pos *Position, index *big.Int) {
	pos.Amount = mulDiv(pos.Amount, index, pos.Index)
	pos.Index = new(big.Int).Set(index)
}

// belowThreshold reports whether threshold * debtValue exceeds the borrow
// limit, comparing in ray-scaled form to avoid truncation.
func (e *Engine) belowThreshold(debtValue, borrowLimit *big.Int) bool {
	if debtValue == nil || debtValue.Sign() == 0 {
		return false
	}
	if borrowLimit == nil || borrowLimit.Sign() < 0 {
		return true
	}
	scaledDebt := new(big.Int).Mul(e.threshold, debtValue)
	scaledLimit := new(big.Int).Mul(borrowLimit, ray)
	return scaledDebt.Cmp(scaledLimit) > 0
}

func (e *Engine) price(asset AssetID) (*big.Rat, error) {
	if e.oracle == nil {
		return nil, ErrPriceUnavailable
	}
	rate, err := e.oracle.GetRate(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if rate == nil || rate.Sign() <= 0 {
		return nil, ErrPriceUnavailable
	}
	return rate, nil
}

// stageSupply writes the position back, or deletes it and drops the asset
// from the user's supply set when its amount reaches zero.
func (e *Engine) stageSupply(cs *Changeset, asset AssetID, addr crypto.Address, pos *Position) error {
	if pos.Amount.Sign() != 0 {
		cs.PutSupply(asset, addr, pos)
		return nil
	}
	cs.DeleteSupply(asset, addr)
	set, err := e.state.SupplySet(addr)
	if err != nil {
		return err
	}
	cs.PutSupplySet(addr, removeFromSet(set, asset))
	return nil
}

// stageDebt mirrors stageSupply for the debt side.
func (e *Engine) stageDebt(cs *Changeset, asset AssetID, addr crypto.Address, pos *Position) error {
	if pos.Amount.Sign() != 0 {
		cs.PutDebt(asset, addr, pos)
		return nil
	}
	cs.DeleteDebt(asset, addr)
	set, err := e.state.DebtSet(addr)
	if err != nil {
		return err
	}
	cs.PutDebtSet(addr, removeFromSet(set, asset))
	return nil
}

func addToSet(set []AssetID, asset AssetID) ([]AssetID, bool) {
	for _, id := range set {
		if id == asset {
			return set, false
		}
	}
	return append(append([]AssetID(nil), set...), asset), true
}

func removeFromSet(set []AssetID, asset AssetID) []AssetID {
	out := make([]AssetID, 0, len(set))
	for _, id := range set {
		if id != asset {
			out = append(out, id)
		}
	}
	return out
}
