package oracle

import (
	"errors"
	"math/big"
	"sync"

	"lendnet/native/lending"
)

// ErrNoPrice is returned when no feed has been posted for an asset.
var ErrNoPrice = errors.New("oracle: no price for asset")

// ManualFeed is a governance-fed price store: trusted feeders post unit prices
// in the common numeraire and consumers read the latest value. It backs the
// lending engine's Oracle dependency.
type ManualFeed struct {
	mu    sync.RWMutex
	rates map[lending.AssetID]*big.Rat
}

// NewManualFeed returns an empty feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{rates: make(map[lending.AssetID]*big.Rat)}
}

// SetRate posts a unit price for the asset. Non-positive prices clear the
// feed so stale values cannot back new borrowing.
func (f *ManualFeed) SetRate(asset lending.AssetID, rate *big.Rat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rate == nil || rate.Sign() <= 0 {
		delete(f.rates, asset)
		return
	}
	f.rates[asset] = new(big.Rat).Set(rate)
}

// GetRate returns the latest posted price for the asset.
func (f *ManualFeed) GetRate(asset lending.AssetID) (*big.Rat, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rate, ok := f.rates[asset]
	if !ok {
		return nil, ErrNoPrice
	}
	return new(big.Rat).Set(rate), nil
}
