package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"lendnet/crypto"
	"lendnet/native/assets"
	"lendnet/native/lending"
	"lendnet/native/oracle"
	"lendnet/observability"
	"lendnet/observability/logging"
	"lendnet/services/lendingd/config"
	"lendnet/services/lendingd/server"
	"lendnet/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDNET_ENV"))
	logger := logging.Setup("lendingd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("open database at %s: %v", cfg.DataDir, err)
	}
	defer db.Close()

	ledger := assets.NewLedger(db)
	feed := oracle.NewManualFeed()
	for _, price := range cfg.Prices {
		rate, err := price.Rate()
		if err != nil {
			log.Fatalf("seed price: %v", err)
		}
		feed.SetRate(lending.AssetID(price.Asset), rate)
	}

	engine := lending.NewEngine(ledger, feed, crypto.ModuleAddress("lending"))
	engine.SetState(lending.NewPersistentState(db))
	engine.SetBlockHeight(uint64(time.Now().Unix()))
	threshold, err := cfg.Threshold()
	if err != nil {
		log.Fatalf("liquidation threshold: %v", err)
	}
	if threshold != nil {
		engine.SetLiquidationThreshold(threshold)
	}
	for _, pool := range cfg.Pools {
		if err := engine.InitPool(lending.AssetID(pool.Asset), pool.Collateral); err != nil {
			log.Fatalf("init pool %d: %v", pool.Asset, err)
		}
	}

	api := server.New(engine, logger)
	router := chi.NewRouter()
	router.Mount("/", api.Routes())
	router.Method(http.MethodGet, "/metrics", observability.Lending().Handler())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "address", cfg.ListenAddress, "pools", len(cfg.Pools))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}
