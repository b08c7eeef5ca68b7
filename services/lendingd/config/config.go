package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the lending daemon.
type Config struct {
	ListenAddress        string        `yaml:"listen"`
	DataDir              string        `yaml:"data_dir"`
	Environment          string        `yaml:"env"`
	LiquidationThreshold string        `yaml:"liquidation_threshold"`
	Pools                []PoolConfig  `yaml:"pools"`
	Prices               []PriceConfig `yaml:"prices"`
}

// PoolConfig declares a pool created at startup.
type PoolConfig struct {
	Asset      uint32 `yaml:"asset"`
	Collateral bool   `yaml:"collateral"`
}

// PriceConfig seeds the manual price feed for an asset. The price is a decimal
// string in the common numeraire.
type PriceConfig struct {
	Asset uint32 `yaml:"asset"`
	Price string `yaml:"price"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8650",
		DataDir:       "lendingd-data",
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8650"
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = "lendingd-data"
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.LiquidationThreshold = strings.TrimSpace(cfg.LiquidationThreshold)
	for i := range cfg.Prices {
		cfg.Prices[i].Price = strings.TrimSpace(cfg.Prices[i].Price)
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if _, err := cfg.Threshold(); err != nil {
		return err
	}
	seen := make(map[uint32]bool, len(cfg.Pools))
	for _, pool := range cfg.Pools {
		if seen[pool.Asset] {
			return fmt.Errorf("pools: asset %d declared twice", pool.Asset)
		}
		seen[pool.Asset] = true
	}
	priced := make(map[uint32]bool, len(cfg.Prices))
	for _, price := range cfg.Prices {
		if priced[price.Asset] {
			return fmt.Errorf("prices: asset %d declared twice", price.Asset)
		}
		priced[price.Asset] = true
		if _, err := price.Rate(); err != nil {
			return err
		}
	}
	return nil
}

// Threshold parses the configured liquidation threshold, or nil when the
// daemon should keep the engine default.
func (cfg Config) Threshold() (*big.Rat, error) {
	if cfg.LiquidationThreshold == "" {
		return nil, nil
	}
	threshold, ok := new(big.Rat).SetString(cfg.LiquidationThreshold)
	if !ok || threshold.Sign() <= 0 {
		return nil, fmt.Errorf("liquidation_threshold: %q is not a positive decimal", cfg.LiquidationThreshold)
	}
	return threshold, nil
}

// Rate parses the seeded price as a rational number.
func (p PriceConfig) Rate() (*big.Rat, error) {
	rate, ok := new(big.Rat).SetString(p.Price)
	if !ok || rate.Sign() <= 0 {
		return nil, fmt.Errorf("prices: asset %d price %q is not a positive decimal", p.Asset, p.Price)
	}
	return rate, nil
}
