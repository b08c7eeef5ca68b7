package lending

import (
	"errors"
	"math/big"
	"testing"
)

// setupUnderwater builds a market where bob borrowed asset 1 against asset 2
// collateral and the collateral price then halved, leaving him liquidatable.
func setupUnderwater(t *testing.T) (*Engine, *memState, *mockLedger, *mockOracle) {
	t.Helper()
	engine, state, ledger, oracle := newTestEngine(t)
	mustInitPool(t, engine, 1, true)
	mustInitPool(t, engine, 2, true)
	oracle.set(1, big.NewRat(1, 1))
	oracle.set(2, big.NewRat(1, 1))

	alice := testAddr(0xA1)
	bob := testAddr(0xB2)
	ledger.credit(1, alice, 200_000)
	ledger.credit(2, bob, 200_000)

	if err := engine.Supply(alice, 1, big.NewInt(200_000)); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := engine.Supply(bob, 2, big.NewInt(200_000)); err != nil {
		t.Fatalf("collateral supply: %v", err)
	}
	if err := engine.Borrow(bob, 1, big.NewInt(100_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Collateral halves: borrow limit 0.7 * 0.5 * 200000 = 70000 < 100000.
	oracle.set(2, big.NewRat(1, 2))
	return engine, state, ledger, oracle
}

func TestLiquidateClampsToSeizureBound(t *testing.T) {
	engine, state, ledger, _ := setupUnderwater(t)
	bob := testAddr(0xB2)
	carol := testAddr(0xC3)
	ledger.credit(1, carol, 100_000)

	// pay limit = close_factor * collateral * (get_price / pay_price) *
	// discount = 200000 * 0.5 * 0.95 = 95000, below both the request and the
	// outstanding debt.
	pay, get, err := engine.Liquidate(carol, bob, 1, 2, big.NewInt(100_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if pay.Cmp(big.NewInt(95_000)) != 0 {
		t.Fatalf("pay = %v, want 95000", pay)
	}
	// 95000 / (0.5 * 0.95) = 200000: the discount hands over the whole
	// collateral position for less than its oracle value.
	if get.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("get = %v, want 200000", get)
	}

	if balance, _ := ledger.Balance(1, carol); balance.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("carol pay balance = %v, want 5000", balance)
	}
	if balance, _ := ledger.Balance(2, carol); balance.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("carol seized balance = %v, want 200000", balance)
	}

	if _, ok := state.supplies[positionKey{2, addrKey(bob)}]; ok {
		t.Fatal("fully seized supply position must be deleted")
	}
	debtPos := state.debts[positionKey{1, addrKey(bob)}]
	if debtPos == nil || debtPos.Amount.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("remaining debt = %+v, want 5000", debtPos)
	}
	if state.pools[2].Supply.Sign() != 0 {
		t.Fatalf("collateral pool supply = %v, want 0", state.pools[2].Supply)
	}
	if state.pools[1].Debt.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("debt pool total = %v, want 5000", state.pools[1].Debt)
	}
}

func TestLiquidateHonoursSmallRequest(t *testing.T) {
	engine, state, ledger, _ := setupUnderwater(t)
	bob := testAddr(0xB2)
	carol := testAddr(0xC3)
	ledger.credit(1, carol, 100_000)

	pay, get, err := engine.Liquidate(carol, bob, 1, 2, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if pay.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("pay = %v, want 10000", pay)
	}
	// 10000 / 0.475 truncated.
	if get.Cmp(big.NewInt(21_052)) != 0 {
		t.Fatalf("get = %v, want 21052", get)
	}
	supplyPos := state.supplies[positionKey{2, addrKey(bob)}]
	if supplyPos == nil || supplyPos.Amount.Cmp(big.NewInt(178_948)) != 0 {
		t.Fatalf("remaining collateral = %+v, want 178948", supplyPos)
	}
}

func TestLiquidateRejectsHealthyTarget(t *testing.T) {
	engine, state, ledger, oracle := setupUnderwater(t)
	oracle.set(2, big.NewRat(1, 1)) // price recovers, target healthy again
	bob := testAddr(0xB2)
	carol := testAddr(0xC3)
	ledger.credit(1, carol, 100_000)

	applies := state.applies
	_, _, err := engine.Liquidate(carol, bob, 1, 2, big.NewInt(10_000))
	if !errors.Is(err, ErrAboveLiquidationThreshold) {
		t.Fatalf("got %v, want ErrAboveLiquidationThreshold", err)
	}
	if state.applies != applies {
		t.Fatal("rejected liquidation must not commit")
	}
	if balance, _ := ledger.Balance(1, carol); balance.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatal("rejected liquidation must not move funds")
	}
}

func TestLiquidateRejectsNonCollateralAsset(t *testing.T) {
	engine, _, ledger, oracle := setupUnderwater(t)
	mustInitPool(t, engine, 3, false)
	oracle.set(3, big.NewRat(1, 1))
	bob := testAddr(0xB2)
	carol := testAddr(0xC3)
	ledger.credit(1, carol, 100_000)

	_, _, err := engine.Liquidate(carol, bob, 1, 3, big.NewInt(10_000))
	if !errors.Is(err, ErrAssetNotCollateral) {
		t.Fatalf("got %v, want ErrAssetNotCollateral", err)
	}
}

func TestLiquidateRequiresTargetPositions(t *testing.T) {
	engine, _, ledger, _ := setupUnderwater(t)
	carol := testAddr(0xC3)
	dave := testAddr(0xD4)
	ledger.credit(1, carol, 100_000)

	if _, _, err := engine.Liquidate(carol, dave, 1, 2, big.NewInt(10_000)); !errors.Is(err, ErrUserNoSupply) {
		t.Fatalf("got %v, want ErrUserNoSupply", err)
	}
}

func TestLiquidateSameAssetAliasing(t *testing.T) {
	engine, state, ledger, oracle := newTestEngine(t)
	mustInitPool(t, engine, 2, true)
	oracle.set(2, big.NewRat(1, 1))

	alice := testAddr(0xA1)
	bob := testAddr(0xB2)
	carol := testAddr(0xC3)
	ledger.credit(2, alice, 200_000)
	ledger.credit(2, bob, 200_000)
	ledger.credit(2, carol, 200_000)

	if err := engine.Supply(alice, 2, big.NewInt(200_000)); err != nil {
		t.Fatalf("supply: %v", err)
	}
	if err := engine.Supply(bob, 2, big.NewInt(200_000)); err != nil {
		t.Fatalf("collateral supply: %v", err)
	}
	if err := engine.Borrow(bob, 2, big.NewInt(100_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Tighten the safety margin after the borrow so the position becomes
	// liquidatable without a price move.
	engine.SetLiquidationThreshold(big.NewRat(3, 2))

	pay, get, err := engine.Liquidate(carol, bob, 2, 2, big.NewInt(100_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if pay.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("pay = %v, want 100000", pay)
	}
	// 100000 / 0.95 truncated.
	if get.Cmp(big.NewInt(105_263)) != 0 {
		t.Fatalf("get = %v, want 105263", get)
	}
	pool := state.pools[2]
	if pool.Debt.Sign() != 0 {
		t.Fatalf("pool debt = %v, want 0", pool.Debt)
	}
	wantSupply := big.NewInt(400_000 - 105_263)
	if pool.Supply.Cmp(wantSupply) != 0 {
		t.Fatalf("pool supply = %v, want %v", pool.Supply, wantSupply)
	}
}

func TestLiquidateRequiresFundedLiquidator(t *testing.T) {
	engine, state, ledger, _ := setupUnderwater(t)
	bob := testAddr(0xB2)
	carol := testAddr(0xC3)
	ledger.credit(1, carol, 10)

	applies := state.applies
	_, _, err := engine.Liquidate(carol, bob, 1, 2, big.NewInt(50_000))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if state.applies != applies {
		t.Fatal("failed liquidation must not commit")
	}
}
