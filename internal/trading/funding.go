package trading

import (
	"fmt"

	fpmath "PerpCore/internal/math"
)

// MarketParams are the per-market accrual parameters. Rates are fractions
// scaled by PRECISION; SkewFactor and open interest share the USD notional
// scale.
type MarketParams struct {
	MarketID             string
	SkewFactor           uint64
	MaxFundingVelocity   uint64
	RolloverFeePerSecond uint64 // accumulator units per second
	MakerFeeRate         uint64
	TakerFeeRate         uint64
	EffectiveSeq         int64
}

// FundingState is the global accrual state of one market. Signed values are
// (magnitude, isPositive) pairs. Mutated only by the deterministic core.
type FundingState struct {
	MarketID string

	AccFundingRate             uint64
	AccFundingRatePositive     bool
	AccFundingFeePerSize       uint64
	AccFundingFeePerSizePos    bool
	AccRolloverFeePerCollateral uint64

	LongOpenInterest  uint64
	ShortOpenInterest uint64

	LastUpdateTimestamp int64 // unix seconds, versioned input
}

// FundingManager tracks the accrual state and parameters of every market.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type FundingManager struct {
	states map[string]*FundingState
	params map[string]*MarketParams
}

func NewFundingManager() *FundingManager {
	return &FundingManager{
		states: make(map[string]*FundingState),
		params: make(map[string]*MarketParams),
	}
}

// SetParams installs or updates market parameters. Updates with a stale
// EffectiveSeq are rejected so replays cannot regress parameters.
func (fm *FundingManager) SetParams(p *MarketParams) error {
	if existing, ok := fm.params[p.MarketID]; ok && p.EffectiveSeq <= existing.EffectiveSeq {
		return fmt.Errorf("stale params for %s: effective_seq=%d, have=%d",
			p.MarketID, p.EffectiveSeq, existing.EffectiveSeq)
	}
	fm.params[p.MarketID] = p
	if _, ok := fm.states[p.MarketID]; !ok {
		fm.states[p.MarketID] = &FundingState{
			MarketID:                p.MarketID,
			AccFundingRatePositive:  true,
			AccFundingFeePerSizePos: true,
		}
	}
	return nil
}

// GetParams returns the parameters for a market.
func (fm *FundingManager) GetParams(marketID string) (*MarketParams, bool) {
	p, ok := fm.params[marketID]
	return p, ok
}

// GetState returns the accrual state for a market.
func (fm *FundingManager) GetState(marketID string) (*FundingState, bool) {
	s, ok := fm.states[marketID]
	return s, ok
}

// Accrue advances a market's funding-rate, funding-fee-per-size, and
// rollover accumulators to the given timestamp. Updates are monotonic in
// time: a timestamp at or before the last update is a no-op (idempotent,
// never retroactive).
func (fm *FundingManager) Accrue(marketID string, now int64) error {
	state, ok := fm.states[marketID]
	if !ok {
		return fmt.Errorf("unknown market: %s", marketID)
	}
	params := fm.params[marketID]

	if now <= state.LastUpdateTimestamp {
		return nil
	}
	if state.LastUpdateTimestamp == 0 {
		// First accrual just anchors the clock.
		state.LastUpdateTimestamp = now
		return nil
	}

	timeDelta := uint64(now - state.LastUpdateTimestamp)

	rateBefore, rateBeforePos := state.AccFundingRate, state.AccFundingRatePositive

	state.AccFundingRate, state.AccFundingRatePositive = CalculateFundingRate(
		rateBefore, rateBeforePos,
		state.LongOpenInterest, state.ShortOpenInterest,
		params.SkewFactor, params.MaxFundingVelocity,
		timeDelta,
	)

	state.AccFundingFeePerSize, state.AccFundingFeePerSizePos = CalculateFundingFeePerSize(
		state.AccFundingFeePerSize, state.AccFundingFeePerSizePos,
		rateBefore, rateBeforePos,
		state.AccFundingRate, state.AccFundingRatePositive,
		timeDelta,
	)

	state.AccRolloverFeePerCollateral += params.RolloverFeePerSecond * timeDelta
	state.LastUpdateTimestamp = now

	return nil
}

// AddOpenInterest books sizeDelta notional onto one side of a market.
func (fm *FundingManager) AddOpenInterest(marketID string, isLong bool, sizeDelta uint64) error {
	state, ok := fm.states[marketID]
	if !ok {
		return fmt.Errorf("unknown market: %s", marketID)
	}
	if isLong {
		state.LongOpenInterest += sizeDelta
	} else {
		state.ShortOpenInterest += sizeDelta
	}
	return nil
}

// ReduceOpenInterest removes sizeDelta notional from one side, clamping at
// zero — open interest must never wrap.
func (fm *FundingManager) ReduceOpenInterest(marketID string, isLong bool, sizeDelta uint64) error {
	state, ok := fm.states[marketID]
	if !ok {
		return fmt.Errorf("unknown market: %s", marketID)
	}
	if isLong {
		state.LongOpenInterest -= fpmath.Min(state.LongOpenInterest, sizeDelta)
	} else {
		state.ShortOpenInterest -= fpmath.Min(state.ShortOpenInterest, sizeDelta)
	}
	return nil
}

// RestoreState directly installs a funding state (snapshot restore).
func (fm *FundingManager) RestoreState(state *FundingState) {
	fm.states[state.MarketID] = state
}

// RestoreParams directly installs market params (snapshot restore).
func (fm *FundingManager) RestoreParams(p *MarketParams) {
	fm.params[p.MarketID] = p
}

// GetAllStates returns every market's funding state (snapshot creation).
func (fm *FundingManager) GetAllStates() map[string]*FundingState {
	result := make(map[string]*FundingState, len(fm.states))
	for k, v := range fm.states {
		result[k] = v
	}
	return result
}

// GetAllParams returns every market's params (snapshot creation).
func (fm *FundingManager) GetAllParams() map[string]*MarketParams {
	result := make(map[string]*MarketParams, len(fm.params))
	for k, v := range fm.params {
		result[k] = v
	}
	return result
}
