// Package trading implements the pure accrual and pricing math for the
// perpetual engine: execution price with price impact, PnL, funding-rate
// and rollover-fee accrual, maker/taker fees, and settle-amount netting.
// Every function is a deterministic integer computation — no floating
// point, floor-only rounding, wide intermediates for all products.
package trading

import (
	fpmath "PerpCore/internal/math"
)

const (
	// SecondsPerDay is the reference period the funding velocity and the
	// rate integration are scaled against.
	SecondsPerDay uint64 = 86_400

	// priceWeightScale is the 18-decimal intermediate used while averaging
	// execution prices, so small sizes/prices do not lose precision.
	priceWeightScale uint64 = 1_000_000_000_000_000_000
)

// CalculateNewPrice returns the size-weighted average execution price after
// adding sizeDelta notional at newPrice to an existing position of
// originalSize notional at originalPrice. Sizes are USD notionals, so the
// average is harmonic in price: total notional divided by total quantity.
//
// Bootstrap case: originalSize == 0 returns newPrice unchanged.
// No-op case: sizeDelta == 0 returns originalPrice unchanged.
func CalculateNewPrice(originalPrice, originalSize, newPrice, sizeDelta uint64) uint64 {
	if sizeDelta == 0 {
		return originalPrice
	}
	if originalSize == 0 || originalPrice == 0 {
		return newPrice
	}
	if newPrice == 0 {
		return originalPrice
	}

	// Quantities carried at 18 decimals: qty = notional / price.
	quantity := fpmath.MulDiv(originalSize, priceWeightScale, originalPrice) +
		fpmath.MulDiv(sizeDelta, priceWeightScale, newPrice)

	return fpmath.MulDiv(originalSize+sizeDelta, priceWeightScale, quantity)
}

// CalculatePnLWithoutFee returns the unsettled PnL of closing sizeDelta
// notional entered at originalPrice against newPrice, before fees.
// amount = |priceGap| / originalPrice * sizeDelta. Equal prices degenerate
// to (0, true).
func CalculatePnLWithoutFee(originalPrice, newPrice, sizeDelta uint64, isLong bool) (uint64, bool) {
	if originalPrice == 0 || sizeDelta == 0 || originalPrice == newPrice {
		return 0, true
	}

	gap, priceRose := fpmath.AbsDiff(newPrice, originalPrice)
	amount := fpmath.MulDiv(sizeDelta, gap, originalPrice)
	return amount, isLong == priceRose
}

// CalculatePriceImpact adjusts an execution price for the market-skew move
// the trade causes. The offset is linear in skew (price * skew / skewFactor)
// and the charged impact is the average of the offset before and after the
// trade — the trapezoidal approximation of integrating impact across the
// trade size. A long-heavy skew pushes the price up, a short-heavy skew
// pushes it down, on both sides of the trade.
//
// skewFactor == 0 disables impact and returns price unchanged.
func CalculatePriceImpact(price, sizeDelta uint64, isLong, isIncrease bool, longOI, shortOI, skewFactor uint64) uint64 {
	if skewFactor == 0 || sizeDelta == 0 {
		return price
	}

	skewBefore, longHeavy := fpmath.AbsDiff(longOI, shortOI)

	// An increase adds OI on the trade side; a decrease removes it.
	deltaLong := isLong == isIncrease
	skewAfter, afterLongHeavy := fpmath.SignedAdd(skewBefore, longHeavy, sizeDelta, deltaLong)

	offsetBefore := fpmath.MulDiv(price, skewBefore, skewFactor)
	offsetAfter := fpmath.MulDiv(price, skewAfter, skewFactor)

	impact, up := fpmath.SignedAverage(offsetBefore, longHeavy, offsetAfter, afterLongHeavy)
	if up {
		return price + impact
	}
	if impact >= price {
		return 0
	}
	return price - impact
}

// CalculateRolloverFee returns the carrying cost accrued on collateral
// between two readings of the global per-collateral accumulator:
// (exitAcc - entryAcc) * collateral / PRECISION / 100. Zero collateral
// accrues nothing; a non-advancing accumulator accrues nothing.
func CalculateRolloverFee(entryAcc, exitAcc, collateral uint64) uint64 {
	if collateral == 0 || exitAcc <= entryAcc {
		return 0
	}
	return fpmath.MulDiv(exitAcc-entryAcc, collateral, fpmath.Precision) / 100
}

// CalculateFundingFee returns the funding owed on a position of the given
// size between the entry snapshot and the current global per-size
// accumulator, and whether the amount is profit to the position. Longs pay
// when the accumulator delta is positive and receive when it is negative;
// shorts are the mirror image.
func CalculateFundingFee(
	accPerSize uint64, accPositive bool,
	entryAccPerSize uint64, entryPositive bool,
	size uint64, isLong bool,
) (uint64, bool) {
	delta, deltaPositive := fpmath.SignedSub(accPerSize, accPositive, entryAccPerSize, entryPositive)
	fee := fpmath.MulDiv(delta, size, fpmath.Precision) / 100
	if fee == 0 {
		return 0, true
	}
	return fee, deltaPositive != isLong
}

// CalculateFundingRate advances the accumulated funding rate by one update
// interval. Velocity is proportional to min(skew/skewFactor, 1) of
// maxVelocity, applied linearly over timeDelta seconds against a one-day
// reference period, and signed by which side of open interest dominates.
// The result accumulates onto the previous rate via signed addition.
//
// skewFactor == 0 disables funding and returns the previous rate unchanged.
func CalculateFundingRate(
	prevRate uint64, prevPositive bool,
	longOI, shortOI, skewFactor, maxVelocity uint64,
	timeDelta uint64,
) (uint64, bool) {
	if skewFactor == 0 {
		return prevRate, prevPositive
	}

	skew, longHeavy := fpmath.AbsDiff(longOI, shortOI)
	velocity := fpmath.MulDiv(maxVelocity, fpmath.Min(skew, skewFactor), skewFactor)
	delta := fpmath.MulDiv(velocity, timeDelta, SecondsPerDay)

	return fpmath.SignedAdd(prevRate, prevPositive, delta, longHeavy)
}

// CalculateFundingFeePerSize integrates the funding rate over timeDelta
// seconds onto the per-size accumulator. The integration uses the average
// of the rate before and after the update (trapezoidal rule) — integrating
// only the new rate would under-count the interval during which the rate
// was still ramping.
func CalculateFundingFeePerSize(
	prevAcc uint64, prevAccPositive bool,
	rateBefore uint64, rateBeforePositive bool,
	rateAfter uint64, rateAfterPositive bool,
	timeDelta uint64,
) (uint64, bool) {
	avgRate, avgPositive := fpmath.SignedAverage(rateBefore, rateBeforePositive, rateAfter, rateAfterPositive)
	delta := fpmath.MulDiv(avgRate, timeDelta, SecondsPerDay)
	return fpmath.SignedAdd(prevAcc, prevAccPositive, delta, avgPositive)
}

// CalculateMakerTakerFee charges trading fees by how the trade moves market
// skew. A trade that keeps the skew on the same side pays a single rate:
// the taker rate when it reduces the dominant-side skew, the maker rate
// when it increases it. A trade that flips the skew sign is split
// size-proportionally: the portion closing the old skew pays the taker
// rate, the portion opening the new skew pays the maker rate.
// Rates are fractions scaled by PRECISION (1_000_000 = 100%).
func CalculateMakerTakerFee(
	sizeDelta uint64, isLong, isIncrease bool,
	longOI, shortOI uint64,
	makerFeeRate, takerFeeRate uint64,
) uint64 {
	if sizeDelta == 0 {
		return 0
	}

	skewBefore, longHeavy := fpmath.AbsDiff(longOI, shortOI)
	deltaLong := isLong == isIncrease
	skewAfter, afterLongHeavy := fpmath.SignedAdd(skewBefore, longHeavy, sizeDelta, deltaLong)

	flipped := skewBefore != 0 && skewAfter != 0 && longHeavy != afterLongHeavy
	if !flipped {
		rate := takerFeeRate
		if skewAfter > skewBefore {
			rate = makerFeeRate
		}
		return fpmath.MulDiv(sizeDelta, rate, fpmath.Precision)
	}

	// Sign flip: |skewBefore| of the trade closes the old skew, the rest
	// opens the new one.
	closing := skewBefore
	opening := sizeDelta - closing
	return fpmath.MulDiv(closing, takerFeeRate, fpmath.Precision) +
		fpmath.MulDiv(opening, makerFeeRate, fpmath.Precision)
}

// CalculateSettleAmount nets a signed PnL against a signed fee and reports
// which way the balance moves. depositToLP == true means the net flows from
// trader to the house pool (the trader owes); false means the pool pays the
// trader.
func CalculateSettleAmount(pnl uint64, isPnlProfit bool, fee uint64, isFeeProfit bool) (uint64, bool) {
	net, traderGains := fpmath.SignedAdd(pnl, isPnlProfit, fee, isFeeProfit)
	return net, !traderGains
}
