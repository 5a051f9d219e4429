package oracle

import (
	"fmt"
)

// PriceState is the latest accepted feed reading for one price key.
// Prices carry 8 decimals. Min and Max bound the feed spread; readers pick
// the side that is conservative for their operation.
type PriceState struct {
	Key           string
	MinPrice      uint64
	MaxPrice      uint64
	PriceSequence int64
	Timestamp     int64 // unix micros, versioned input
}

// PriceOracle caches the latest price per key, gated by the feed's own
// sequence numbers. Not thread-safe — only accessed from the
// single-threaded deterministic core.
type PriceOracle struct {
	prices map[string]*PriceState
}

func NewPriceOracle() *PriceOracle {
	return &PriceOracle{
		prices: make(map[string]*PriceState),
	}
}

// Update installs a feed reading. Stale or duplicate sequences are silently
// ignored (idempotent); sequence gaps are accepted — dropped price ticks
// are tolerable, unlike trade fills.
func (o *PriceOracle) Update(key string, minPrice, maxPrice uint64, sequence, timestamp int64) error {
	if minPrice == 0 || maxPrice == 0 {
		return fmt.Errorf("zero price for %s at seq %d", key, sequence)
	}
	if maxPrice < minPrice {
		return fmt.Errorf("inverted price band for %s: min=%d max=%d", key, minPrice, maxPrice)
	}

	current := o.prices[key]
	if current != nil && sequence <= current.PriceSequence {
		return nil
	}

	o.prices[key] = &PriceState{
		Key:           key,
		MinPrice:      minPrice,
		MaxPrice:      maxPrice,
		PriceSequence: sequence,
		Timestamp:     timestamp,
	}
	return nil
}

// Read returns the cached price for a key: the max-side price when maximize
// is set, the min side otherwise. Returns false when no reading has been
// accepted yet.
func (o *PriceOracle) Read(key string, maximize bool) (uint64, bool) {
	state := o.prices[key]
	if state == nil {
		return 0, false
	}
	if maximize {
		return state.MaxPrice, true
	}
	return state.MinPrice, true
}

// ReadState returns the full cached reading for a key.
func (o *PriceOracle) ReadState(key string) (*PriceState, bool) {
	state := o.prices[key]
	return state, state != nil
}

// GetAllPrices returns every cached reading (snapshot creation).
func (o *PriceOracle) GetAllPrices() map[string]*PriceState {
	result := make(map[string]*PriceState, len(o.prices))
	for k, v := range o.prices {
		result[k] = v
	}
	return result
}

// Restore directly installs a reading (snapshot restore).
func (o *PriceOracle) Restore(state *PriceState) {
	o.prices[state.Key] = state
}
