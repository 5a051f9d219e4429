package houselp

import (
	fpmath "PerpCore/internal/math"
	"PerpCore/internal/oracle"
)

// feeBasisPoints computes the dynamic fee for moving usdDelta of value into
// (increase) or out of (decrease) one vault. Each vault has a target USD
// balance proportional to its weight; a flow that moves the vault toward
// target earns a rebate off the base fee, a flow that moves it away pays a
// tax scaled by the average of the pre- and post-flow deviation, capped at
// one full target's worth of deviation.
func (p *Pool) feeBasisPoints(ap *AssetPool, usdDelta uint64, increase bool, tvl uint64) uint64 {
	if !ap.DynamicFeeEnabled {
		return ap.FeeBasisPoint
	}
	if p.TotalWeight == 0 || tvl == 0 {
		return ap.FeeBasisPoint
	}

	target := fpmath.MulDiv(tvl, ap.Weight, p.TotalWeight)
	if target == 0 {
		return ap.FeeBasisPoint
	}

	current := p.vaultUSDValue(ap)
	initialDiff, _ := fpmath.AbsDiff(current, target)

	var next uint64
	if increase {
		next = current + usdDelta
	} else if usdDelta >= current {
		next = 0
	} else {
		next = current - usdDelta
	}
	nextDiff, _ := fpmath.AbsDiff(next, target)

	if nextDiff < initialDiff {
		// Moving toward target: rebate off the base fee, floor at zero.
		rebate := fpmath.MulDiv(ap.TaxBasisPoint, initialDiff, target)
		if rebate >= ap.FeeBasisPoint {
			return 0
		}
		return ap.FeeBasisPoint - rebate
	}

	avgDiff := fpmath.Min((initialDiff+nextDiff)/2, target)
	tax := fpmath.MulDiv(ap.TaxBasisPoint, avgDiff, target)
	return ap.FeeBasisPoint + tax
}

// vaultUSDValue prices one vault's available balance at the mid band,
// in TVLDecimals. Falls back to zero when the asset has no price yet.
func (p *Pool) vaultUSDValue(ap *AssetPool) uint64 {
	state, ok := p.priceState(ap.PriceKey)
	if !ok {
		return 0
	}
	mid, _ := fpmath.SignedAverage(state.MinPrice, true, state.MaxPrice, true)
	return fpmath.MultiplyWithDecimals(ap.Available(), ap.Decimals, mid, TVLDecimals, TVLDecimals)
}

func (p *Pool) priceState(key string) (*oracle.PriceState, bool) {
	return p.oracle.ReadState(key)
}
