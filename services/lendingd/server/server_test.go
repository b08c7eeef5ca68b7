package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"lendnet/crypto"
	"lendnet/native/lending"
)

type stubEngine struct {
	height     uint64
	lastAddr   crypto.Address
	lastAsset  lending.AssetID
	lastAmount *big.Int
	err        error
	pool       *lending.Pool
}

func (s *stubEngine) Supply(addr crypto.Address, asset lending.AssetID, amount *big.Int) error {
	s.lastAddr, s.lastAsset, s.lastAmount = addr, asset, amount
	return s.err
}

func (s *stubEngine) Withdraw(addr crypto.Address, asset lending.AssetID, amount *big.Int) (*big.Int, error) {
	s.lastAddr, s.lastAsset, s.lastAmount = addr, asset, amount
	if s.err != nil {
		return nil, s.err
	}
	return amount, nil
}

func (s *stubEngine) Borrow(addr crypto.Address, asset lending.AssetID, amount *big.Int) error {
	s.lastAddr, s.lastAsset, s.lastAmount = addr, asset, amount
	return s.err
}

func (s *stubEngine) Repay(addr crypto.Address, asset lending.AssetID, amount *big.Int) (*big.Int, error) {
	s.lastAddr, s.lastAsset, s.lastAmount = addr, asset, amount
	if s.err != nil {
		return nil, s.err
	}
	return amount, nil
}

func (s *stubEngine) Liquidate(liquidator, target crypto.Address, payAsset, getAsset lending.AssetID, payAmount *big.Int) (*big.Int, *big.Int, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return payAmount, new(big.Int).Mul(payAmount, big.NewInt(2)), nil
}

func (s *stubEngine) UserInfo(addr crypto.Address) (*lending.UserInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &lending.UserInfo{
		SupplyValue: big.NewInt(300),
		BorrowLimit: big.NewInt(210),
		DebtValue:   big.NewInt(100),
	}, nil
}

func (s *stubEngine) SupplyBalance(asset lending.AssetID, addr crypto.Address) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return big.NewInt(42), nil
}

func (s *stubEngine) DebtBalance(asset lending.AssetID, addr crypto.Address) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return big.NewInt(7), nil
}

func (s *stubEngine) GetPool(asset lending.AssetID) (*lending.Pool, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.pool != nil {
		return s.pool, nil
	}
	return nil, lending.ErrPoolNotExist
}

func (s *stubEngine) SupplyRate(asset lending.AssetID) (*big.Rat, error) {
	if s.err != nil {
		return nil, s.err
	}
	return big.NewRat(1, 100), nil
}

func (s *stubEngine) DebtRate(asset lending.AssetID) (*big.Rat, error) {
	if s.err != nil {
		return nil, s.err
	}
	return big.NewRat(1, 50), nil
}

func (s *stubEngine) SetBlockHeight(height uint64) { s.height = height }

func testAddress(seed byte) string {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = seed
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw).String()
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSupplyRoundTrip(t *testing.T) {
	stub := &stubEngine{}
	handler := New(stub, nil).Routes()

	rec := postJSON(t, handler, "/v1/lending/supply", map[string]any{
		"address": testAddress(0x11),
		"asset":   3,
		"amount":  "1000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastAsset != 3 {
		t.Fatalf("unexpected asset: %d", stub.lastAsset)
	}
	if stub.lastAmount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected amount: %v", stub.lastAmount)
	}
	if stub.height == 0 {
		t.Fatal("expected block height to be stamped before the call")
	}
	var resp struct {
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Amount != "1000" {
		t.Fatalf("unexpected amount in response: %q", resp.Amount)
	}
}

func TestSupplyRejectsBadRequests(t *testing.T) {
	stub := &stubEngine{}
	handler := New(stub, nil).Routes()

	cases := []map[string]any{
		{"address": "not-bech32", "asset": 1, "amount": "10"},
		{"address": testAddress(0x11), "asset": 1, "amount": "abc"},
		{"address": testAddress(0x11), "asset": 1, "amount": "-5"},
		{"address": testAddress(0x11), "asset": 1, "amount": "0"},
	}
	for i, payload := range cases {
		rec := postJSON(t, handler, "/v1/lending/supply", payload)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, rec.Code)
		}
	}
	if stub.lastAmount != nil {
		t.Fatal("engine must not be called for invalid requests")
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{lending.ErrInvalidAmount, http.StatusBadRequest},
		{lending.ErrPoolNotExist, http.StatusNotFound},
		{lending.ErrUserNoSupply, http.StatusNotFound},
		{lending.ErrUserNoDebt, http.StatusNotFound},
		{lending.ErrNotEnoughLiquidity, http.StatusConflict},
		{lending.ErrBelowLiquidationThreshold, http.StatusConflict},
		{lending.ErrAboveLiquidationThreshold, http.StatusConflict},
		{lending.ErrAssetNotCollateral, http.StatusConflict},
		{lending.ErrTransferFailed, http.StatusConflict},
		{lending.ErrPriceUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		stub := &stubEngine{err: tc.err}
		handler := New(stub, nil).Routes()
		rec := postJSON(t, handler, "/v1/lending/withdraw", map[string]any{
			"address": testAddress(0x22),
			"asset":   1,
			"amount":  "10",
		})
		if rec.Code != tc.status {
			t.Fatalf("error %v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
	}
}

func TestLiquidateResponse(t *testing.T) {
	stub := &stubEngine{}
	handler := New(stub, nil).Routes()

	rec := postJSON(t, handler, "/v1/lending/liquidate", map[string]any{
		"liquidator": testAddress(0x33),
		"target":     testAddress(0x44),
		"pay_asset":  1,
		"get_asset":  2,
		"amount":     "500",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Paid   string `json:"paid"`
		Seized string `json:"seized"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Paid != "500" || resp.Seized != "1000" {
		t.Fatalf("unexpected amounts: %+v", resp)
	}
}

func TestGetPoolAndRates(t *testing.T) {
	stub := &stubEngine{pool: &lending.Pool{
		Asset:           5,
		Enabled:         true,
		CanBeCollateral: true,
		Supply:          big.NewInt(1000),
		Debt:            big.NewInt(400),
		SupplyIndex:     big.NewInt(1),
		DebtIndex:       big.NewInt(1),
		LastUpdated:     99,
	}}
	handler := New(stub, nil).Routes()

	req := httptest.NewRequest(http.MethodGet, "/v1/lending/pools/5", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var pool struct {
		Asset       uint32 `json:"asset"`
		Supply      string `json:"supply"`
		Debt        string `json:"debt"`
		LastUpdated uint64 `json:"last_updated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pool); err != nil {
		t.Fatalf("decode pool: %v", err)
	}
	if pool.Asset != 5 || pool.Supply != "1000" || pool.Debt != "400" || pool.LastUpdated != 99 {
		t.Fatalf("unexpected pool payload: %+v", pool)
	}
	if stub.height == 0 {
		t.Fatal("expected block height to be stamped before the query")
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/lending/pools/5/rates", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected rates status %d", rec.Code)
	}
	var rates struct {
		SupplyRate string `json:"supply_rate"`
		DebtRate   string `json:"debt_rate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &rates); err != nil {
		t.Fatalf("decode rates: %v", err)
	}
	if rates.SupplyRate == "" || rates.DebtRate == "" {
		t.Fatalf("expected rates to be populated: %+v", rates)
	}
}

func TestGetAccount(t *testing.T) {
	stub := &stubEngine{}
	handler := New(stub, nil).Routes()

	req := httptest.NewRequest(http.MethodGet, "/v1/lending/accounts/"+testAddress(0x55), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SupplyValue string `json:"supply_value"`
		BorrowLimit string `json:"borrow_limit"`
		DebtValue   string `json:"debt_value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SupplyValue != "300" || resp.BorrowLimit != "210" || resp.DebtValue != "100" {
		t.Fatalf("unexpected account payload: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/lending/accounts/bogus", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad address, got %d", rec.Code)
	}
}
