package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"lendnet/crypto"
	"lendnet/native/common"
	"lendnet/native/lending"
	"lendnet/observability"
)

// Engine is the subset of the lending engine the HTTP surface drives. The
// daemon passes the real engine; tests pass a stub.
type Engine interface {
	Supply(addr crypto.Address, asset lending.AssetID, amount *big.Int) error
	Withdraw(addr crypto.Address, asset lending.AssetID, amount *big.Int) (*big.Int, error)
	Borrow(addr crypto.Address, asset lending.AssetID, amount *big.Int) error
	Repay(addr crypto.Address, asset lending.AssetID, amount *big.Int) (*big.Int, error)
	Liquidate(liquidator, target crypto.Address, payAsset, getAsset lending.AssetID, payAmount *big.Int) (*big.Int, *big.Int, error)
	UserInfo(addr crypto.Address) (*lending.UserInfo, error)
	SupplyBalance(asset lending.AssetID, addr crypto.Address) (*big.Int, error)
	DebtBalance(asset lending.AssetID, addr crypto.Address) (*big.Int, error)
	GetPool(asset lending.AssetID) (*lending.Pool, error)
	SupplyRate(asset lending.AssetID) (*big.Rat, error)
	DebtRate(asset lending.AssetID) (*big.Rat, error)
	SetBlockHeight(height uint64)
}

// Server exposes the lending engine over HTTP. Engine calls are serialised
// behind a mutex so each request observes a fully committed state.
type Server struct {
	engine  Engine
	mu      sync.Mutex
	log     *slog.Logger
	metrics *observability.LendingMetrics
	now     func() time.Time
}

// New wires the server to the engine. A nil logger falls back to the default.
func New(engine Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:  engine,
		log:     log,
		metrics: observability.Lending(),
		now:     time.Now,
	}
}

// Routes mounts the lending API onto a fresh router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1/lending", func(r chi.Router) {
		r.Post("/supply", s.handleSupply)
		r.Post("/withdraw", s.handleWithdraw)
		r.Post("/borrow", s.handleBorrow)
		r.Post("/repay", s.handleRepay)
		r.Post("/liquidate", s.handleLiquidate)
		r.Get("/pools/{asset}", s.handleGetPool)
		r.Get("/pools/{asset}/rates", s.handleGetRates)
		r.Get("/accounts/{address}", s.handleGetAccount)
		r.Get("/accounts/{address}/supply/{asset}", s.handleGetSupplyBalance)
		r.Get("/accounts/{address}/debt/{asset}", s.handleGetDebtBalance)
	})
	return r
}

type positionRequest struct {
	Address string `json:"address"`
	Asset   uint32 `json:"asset"`
	Amount  string `json:"amount"`
}

type liquidateRequest struct {
	Liquidator string `json:"liquidator"`
	Target     string `json:"target"`
	PayAsset   uint32 `json:"pay_asset"`
	GetAsset   uint32 `json:"get_asset"`
	Amount     string `json:"amount"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

type liquidateResponse struct {
	Paid   string `json:"paid"`
	Seized string `json:"seized"`
}

type accountResponse struct {
	SupplyValue string `json:"supply_value"`
	BorrowLimit string `json:"borrow_limit"`
	DebtValue   string `json:"debt_value"`
}

type poolResponse struct {
	Asset           uint32 `json:"asset"`
	Enabled         bool   `json:"enabled"`
	CanBeCollateral bool   `json:"can_be_collateral"`
	Supply          string `json:"supply"`
	Debt            string `json:"debt"`
	SupplyIndex     string `json:"supply_index"`
	DebtIndex       string `json:"debt_index"`
	LastUpdated     uint64 `json:"last_updated"`
}

type ratesResponse struct {
	SupplyRate string `json:"supply_rate"`
	DebtRate   string `json:"debt_rate"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	addr, asset, amount, ok := s.decodePosition(w, r, "supply", started)
	if !ok {
		return
	}
	err := s.withEngine(func() error { return s.engine.Supply(addr, asset, amount) })
	if err != nil {
		s.writeError(w, "supply", err, started)
		return
	}
	s.metrics.Observe("supply", "ok", started.UTC())
	writeJSON(w, http.StatusOK, amountResponse{Amount: amount.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	addr, asset, amount, ok := s.decodePosition(w, r, "withdraw", started)
	if !ok {
		return
	}
	var withdrawn *big.Int
	err := s.withEngine(func() error {
		var innerErr error
		withdrawn, innerErr = s.engine.Withdraw(addr, asset, amount)
		return innerErr
	})
	if err != nil {
		s.writeError(w, "withdraw", err, started)
		return
	}
	s.metrics.Observe("withdraw", "ok", started.UTC())
	writeJSON(w, http.StatusOK, amountResponse{Amount: withdrawn.String()})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	addr, asset, amount, ok := s.decodePosition(w, r, "borrow", started)
	if !ok {
		return
	}
	err := s.withEngine(func() error { return s.engine.Borrow(addr, asset, amount) })
	if err != nil {
		s.writeError(w, "borrow", err, started)
		return
	}
	s.metrics.Observe("borrow", "ok", started.UTC())
	writeJSON(w, http.StatusOK, amountResponse{Amount: amount.String()})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	addr, asset, amount, ok := s.decodePosition(w, r, "repay", started)
	if !ok {
		return
	}
	var repaid *big.Int
	err := s.withEngine(func() error {
		var innerErr error
		repaid, innerErr = s.engine.Repay(addr, asset, amount)
		return innerErr
	})
	if err != nil {
		s.writeError(w, "repay", err, started)
		return
	}
	s.metrics.Observe("repay", "ok", started.UTC())
	writeJSON(w, http.StatusOK, amountResponse{Amount: repaid.String()})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	var req liquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "liquidate", "invalid request body", started)
		return
	}
	liquidator, err := crypto.DecodeAddress(req.Liquidator)
	if err != nil {
		s.badRequest(w, "liquidate", "invalid liquidator address", started)
		return
	}
	target, err := crypto.DecodeAddress(req.Target)
	if err != nil {
		s.badRequest(w, "liquidate", "invalid target address", started)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.badRequest(w, "liquidate", "invalid amount", started)
		return
	}
	var paid, seized *big.Int
	callErr := s.withEngine(func() error {
		var innerErr error
		paid, seized, innerErr = s.engine.Liquidate(liquidator, target, lending.AssetID(req.PayAsset), lending.AssetID(req.GetAsset), amount)
		return innerErr
	})
	if callErr != nil {
		s.writeError(w, "liquidate", callErr, started)
		return
	}
	s.metrics.Observe("liquidate", "ok", started.UTC())
	writeJSON(w, http.StatusOK, liquidateResponse{Paid: paid.String(), Seized: seized.String()})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	asset, ok := parseAsset(chi.URLParam(r, "asset"))
	if !ok {
		s.badRequest(w, "get_pool", "invalid asset", started)
		return
	}
	var pool *lending.Pool
	callErr := s.withEngine(func() error {
		var innerErr error
		pool, innerErr = s.engine.GetPool(asset)
		return innerErr
	})
	if callErr != nil {
		s.writeError(w, "get_pool", callErr, started)
		return
	}
	s.metrics.Observe("get_pool", "ok", started.UTC())
	writeJSON(w, http.StatusOK, poolResponse{
		Asset:           uint32(pool.Asset),
		Enabled:         pool.Enabled,
		CanBeCollateral: pool.CanBeCollateral,
		Supply:          pool.Supply.String(),
		Debt:            pool.Debt.String(),
		SupplyIndex:     pool.SupplyIndex.String(),
		DebtIndex:       pool.DebtIndex.String(),
		LastUpdated:     pool.LastUpdated,
	})
}

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	asset, ok := parseAsset(chi.URLParam(r, "asset"))
	if !ok {
		s.badRequest(w, "get_rates", "invalid asset", started)
		return
	}
	var supplyRate, debtRate *big.Rat
	callErr := s.withEngine(func() error {
		var innerErr error
		supplyRate, innerErr = s.engine.SupplyRate(asset)
		if innerErr != nil {
			return innerErr
		}
		debtRate, innerErr = s.engine.DebtRate(asset)
		return innerErr
	})
	if callErr != nil {
		s.writeError(w, "get_rates", callErr, started)
		return
	}
	s.metrics.Observe("get_rates", "ok", started.UTC())
	writeJSON(w, http.StatusOK, ratesResponse{
		SupplyRate: supplyRate.FloatString(27),
		DebtRate:   debtRate.FloatString(27),
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	started := s.now()
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.badRequest(w, "get_account", "invalid address", started)
		return
	}
	var info *lending.UserInfo
	callErr := s.withEngine(func() error {
		var innerErr error
		info, innerErr = s.engine.UserInfo(addr)
		return innerErr
	})
	if callErr != nil {
		s.writeError(w, "get_account", callErr, started)
		return
	}
	s.metrics.Observe("get_account", "ok", started.UTC())
	writeJSON(w, http.StatusOK, accountResponse{
		SupplyValue: info.SupplyValue.String(),
		BorrowLimit: info.BorrowLimit.String(),
		DebtValue:   info.DebtValue.String(),
	})
}

func (s *Server) handleGetSupplyBalance(w http.ResponseWriter, r *http.Request) {
	s.handleBalance(w, r, "get_supply_balance", s.engine.SupplyBalance)
}

func (s *Server) handleGetDebtBalance(w http.ResponseWriter, r *http.Request) {
	s.handleBalance(w, r, "get_debt_balance", s.engine.DebtBalance)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, op string, query func(lending.AssetID, crypto.Address) (*big.Int, error)) {
	started := s.now()
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.badRequest(w, op, "invalid address", started)
		return
	}
	asset, ok := parseAsset(chi.URLParam(r, "asset"))
	if !ok {
		s.badRequest(w, op, "invalid asset", started)
		return
	}
	var balance *big.Int
	callErr := s.withEngine(func() error {
		var innerErr error
		balance, innerErr = query(asset, addr)
		return innerErr
	})
	if callErr != nil {
		s.writeError(w, op, callErr, started)
		return
	}
	s.metrics.Observe(op, "ok", started.UTC())
	writeJSON(w, http.StatusOK, amountResponse{Amount: balance.String()})
}

// withEngine serialises engine access and stamps the current wall clock as the
// accrual height before the call runs.
func (s *Server) withEngine(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SetBlockHeight(uint64(s.now().Unix()))
	return fn()
}

func (s *Server) decodePosition(w http.ResponseWriter, r *http.Request, op string, started time.Time) (crypto.Address, lending.AssetID, *big.Int, bool) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, op, "invalid request body", started)
		return crypto.Address{}, 0, nil, false
	}
	addr, err := crypto.DecodeAddress(req.Address)
	if err != nil {
		s.badRequest(w, op, "invalid address", started)
		return crypto.Address{}, 0, nil, false
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.badRequest(w, op, "invalid amount", started)
		return crypto.Address{}, 0, nil, false
	}
	return addr, lending.AssetID(req.Asset), amount, true
}

func (s *Server) badRequest(w http.ResponseWriter, op, msg string, started time.Time) {
	s.metrics.Observe(op, "bad_request", started.UTC())
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error, started time.Time) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("lending operation failed", "op", op, "error", err)
	} else {
		s.log.Info("lending operation rejected", "op", op, "error", err)
	}
	s.metrics.Observe(op, "error", started.UTC())
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, lending.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrPoolNotExist),
		errors.Is(err, lending.ErrUserNoSupply),
		errors.Is(err, lending.ErrUserNoDebt):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrNotEnoughLiquidity),
		errors.Is(err, lending.ErrBelowLiquidationThreshold),
		errors.Is(err, lending.ErrAboveLiquidationThreshold),
		errors.Is(err, lending.ErrAssetNotCollateral),
		errors.Is(err, lending.ErrTransferFailed):
		return http.StatusConflict
	case errors.Is(err, lending.ErrPriceUnavailable),
		errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseAmount(raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}

func parseAsset(raw string) (lending.AssetID, bool) {
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return lending.AssetID(parsed), true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
