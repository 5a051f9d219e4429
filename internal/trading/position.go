package trading

import (
	fpmath "PerpCore/internal/math"

	"github.com/google/uuid"
)

// Position is one user's exposure in one market, plus the accrual snapshot
// taken at entry. The snapshot is owned exclusively by the position and is
// refreshed only at open/increase/decrease/close; fee deltas are always
// computed as (current global accumulator - snapshot accumulator).
type Position struct {
	UserID   uuid.UUID
	MarketID string
	IsLong   bool

	Size          uint64 // USD notional, 6 decimals
	Collateral    uint64 // USD, 6 decimals
	AvgEntryPrice uint64 // 8 decimals

	AccRolloverFeePerCollateralAtEntry uint64
	AccFundingFeePerSizeAtEntry        uint64
	AccFundingFeePerSizeAtEntryPos     bool

	Version int64 // bumped on every mutation
}

// IsEmpty reports whether the position carries no exposure.
func (p *Position) IsEmpty() bool {
	return p.Size == 0
}

// AccruedFees returns the rollover and funding owed by the position between
// its entry snapshot and the given global state, and whether the funding
// leg is profit to the position.
func (p *Position) AccruedFees(state *FundingState) (rollover uint64, funding uint64, fundingIsProfit bool) {
	rollover = CalculateRolloverFee(
		p.AccRolloverFeePerCollateralAtEntry,
		state.AccRolloverFeePerCollateral,
		p.Collateral,
	)
	funding, fundingIsProfit = CalculateFundingFee(
		state.AccFundingFeePerSize, state.AccFundingFeePerSizePos,
		p.AccFundingFeePerSizeAtEntry, p.AccFundingFeePerSizeAtEntryPos,
		p.Size, p.IsLong,
	)
	return rollover, funding, fundingIsProfit
}

// snapshotAccruals re-anchors the position's entry snapshot at the current
// global accumulators. Must follow any fee settlement.
func (p *Position) snapshotAccruals(state *FundingState) {
	p.AccRolloverFeePerCollateralAtEntry = state.AccRolloverFeePerCollateral
	p.AccFundingFeePerSizeAtEntry = state.AccFundingFeePerSize
	p.AccFundingFeePerSizeAtEntryPos = state.AccFundingFeePerSizePos
}

// PositionManager owns every live position, keyed by (user, market).
// Not thread-safe — only accessed from the single-threaded deterministic core.
type PositionManager struct {
	positions map[positionKey]*Position
}

type positionKey struct {
	userID   uuid.UUID
	marketID string
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions: make(map[positionKey]*Position),
	}
}

// GetPosition returns the position for (user, market), or nil.
func (pm *PositionManager) GetPosition(userID uuid.UUID, marketID string) *Position {
	return pm.positions[positionKey{userID, marketID}]
}

// GetUserPositions returns all of a user's positions.
func (pm *PositionManager) GetUserPositions(userID uuid.UUID) []*Position {
	result := make([]*Position, 0, 2)
	for key, pos := range pm.positions {
		if key.userID == userID {
			result = append(result, pos)
		}
	}
	return result
}

// GetAllPositions returns every live position (snapshot creation).
func (pm *PositionManager) GetAllPositions() []*Position {
	result := make([]*Position, 0, len(pm.positions))
	for _, pos := range pm.positions {
		result = append(result, pos)
	}
	return result
}

// SetPosition directly installs a position (snapshot restore).
func (pm *PositionManager) SetPosition(pos *Position) {
	pm.positions[positionKey{pos.UserID, pos.MarketID}] = pos
}

// IncreaseResult reports the fee settlement produced by an open/increase.
type IncreaseResult struct {
	Rollover        uint64
	Funding         uint64
	FundingIsProfit bool
}

// Increase opens or grows a position at execPrice, settling outstanding
// accrued fees against the old exposure first and re-anchoring the
// snapshot. The caller books open interest and moves balances.
func (pm *PositionManager) Increase(
	userID uuid.UUID, marketID string, isLong bool,
	sizeDelta, collateralDelta, execPrice uint64,
	state *FundingState,
) IncreaseResult {
	key := positionKey{userID, marketID}
	pos := pm.positions[key]

	var result IncreaseResult
	if pos == nil {
		pos = &Position{
			UserID:                         userID,
			MarketID:                       marketID,
			IsLong:                         isLong,
			AccFundingFeePerSizeAtEntryPos: true,
		}
		pm.positions[key] = pos
	} else {
		result.Rollover, result.Funding, result.FundingIsProfit = pos.AccruedFees(state)
	}

	pos.AvgEntryPrice = CalculateNewPrice(pos.AvgEntryPrice, pos.Size, execPrice, sizeDelta)
	pos.Size += sizeDelta
	pos.Collateral += collateralDelta
	pos.snapshotAccruals(state)
	pos.Version++

	return result
}

// DecreaseResult reports the PnL, fee settlement, and collateral released
// by a decrease/close.
type DecreaseResult struct {
	PnL                uint64
	IsProfit           bool
	Rollover           uint64
	Funding            uint64
	FundingIsProfit    bool
	CollateralReleased uint64
	Closed             bool
}

// Decrease shrinks or closes a position at execPrice. Accrued fees on the
// full pre-decrease exposure are settled, PnL is realized on sizeDelta, and
// collateral is released proportionally (fully on close). sizeDelta is
// clamped to the position size.
func (pm *PositionManager) Decrease(
	userID uuid.UUID, marketID string,
	sizeDelta, execPrice uint64,
	state *FundingState,
) DecreaseResult {
	key := positionKey{userID, marketID}
	pos := pm.positions[key]

	var result DecreaseResult
	if pos == nil || pos.IsEmpty() {
		return result
	}

	sizeDelta = fpmath.Min(sizeDelta, pos.Size)

	result.Rollover, result.Funding, result.FundingIsProfit = pos.AccruedFees(state)
	result.PnL, result.IsProfit = CalculatePnLWithoutFee(pos.AvgEntryPrice, execPrice, sizeDelta, pos.IsLong)

	if sizeDelta == pos.Size {
		result.CollateralReleased = pos.Collateral
		result.Closed = true
		delete(pm.positions, key)
		return result
	}

	result.CollateralReleased = fpmath.MulDiv(pos.Collateral, sizeDelta, pos.Size)
	pos.Size -= sizeDelta
	pos.Collateral -= result.CollateralReleased
	pos.snapshotAccruals(state)
	pos.Version++

	return result
}
