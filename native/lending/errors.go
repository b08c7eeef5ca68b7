package lending

import "errors"

var (
	// ErrNilState signals the engine has not been wired to persistence.
	ErrNilState = errors.New("lending engine: state not configured")
	// ErrPoolNotExist signals the pool for the requested asset was never
	// initialised.
	ErrPoolNotExist = errors.New("lending engine: pool does not exist")
	// ErrInvalidAmount rejects zero or negative operation amounts.
	ErrInvalidAmount = errors.New("lending engine: amount must be positive")
	// ErrTransferFailed wraps a failed asset ledger transfer.
	ErrTransferFailed = errors.New("lending engine: asset transfer failed")
	// ErrNotEnoughLiquidity signals the pool cash (supply minus debt) cannot
	// cover the requested withdrawal or borrow.
	ErrNotEnoughLiquidity = errors.New("lending engine: insufficient pool liquidity")
	// ErrUserNoSupply signals the caller holds no supply position in the pool.
	ErrUserNoSupply = errors.New("lending engine: user has no supply")
	// ErrUserNoDebt signals the caller holds no debt position in the pool.
	ErrUserNoDebt = errors.New("lending engine: user has no debt")
	// ErrBelowLiquidationThreshold rejects an operation that would push the
	// caller under the collateral safety margin.
	ErrBelowLiquidationThreshold = errors.New("lending engine: position would fall below liquidation threshold")
	// ErrAboveLiquidationThreshold rejects a liquidation against a target that
	// is still healthy.
	ErrAboveLiquidationThreshold = errors.New("lending engine: target is above liquidation threshold")
	// ErrAssetNotCollateral signals the seized asset is not enabled as
	// collateral.
	ErrAssetNotCollateral = errors.New("lending engine: asset not enabled as collateral")
	// ErrElapsedOverflow surfaces an elapsed-time delta that does not fit the
	// accrual working width instead of silently truncating it.
	ErrElapsedOverflow = errors.New("lending engine: elapsed time exceeds accrual width")
	// ErrPriceUnavailable guards against a zero or missing oracle price before
	// any conversion divides by it.
	ErrPriceUnavailable = errors.New("lending engine: oracle price unavailable")
)
