package trading_test

import (
	"testing"

	"PerpCore/internal/trading"
)

// ============================================================================
// Test: CalculateNewPrice
// ============================================================================

func TestCalculateNewPrice_Average(t *testing.T) {
	// 20000 notional entered at 10000 plus 40000 at 20000:
	// qty = 2 + 2, price = 60000 / 4 = 15000
	got := trading.CalculateNewPrice(10000, 20000, 20000, 40000)
	if got != 15000 {
		t.Errorf("got %d, want 15000", got)
	}
}

func TestCalculateNewPrice_Average_Floors(t *testing.T) {
	// qty = 2 + 4, price = 40000 / 6 = 6666.67 -> 6666
	got := trading.CalculateNewPrice(10000, 20000, 5000, 20000)
	if got != 6666 {
		t.Errorf("got %d, want 6666", got)
	}
}

func TestCalculateNewPrice_Bootstrap(t *testing.T) {
	if got := trading.CalculateNewPrice(0, 0, 12345, 1000); got != 12345 {
		t.Errorf("original_size==0: got %d, want 12345", got)
	}
}

func TestCalculateNewPrice_NoOp(t *testing.T) {
	if got := trading.CalculateNewPrice(10000, 20000, 99999, 0); got != 10000 {
		t.Errorf("size_delta==0: got %d, want 10000", got)
	}
}

// ============================================================================
// Test: CalculatePnLWithoutFee
// ============================================================================

func TestCalculatePnL_LongProfit(t *testing.T) {
	amount, profit := trading.CalculatePnLWithoutFee(10000, 20000, 10000, true)
	if amount != 10000 || !profit {
		t.Errorf("got (%d, %v), want (10000, true)", amount, profit)
	}
}

func TestCalculatePnL_LongLoss(t *testing.T) {
	amount, profit := trading.CalculatePnLWithoutFee(10000, 5000, 10000, true)
	if amount != 5000 || profit {
		t.Errorf("got (%d, %v), want (5000, false)", amount, profit)
	}
}

func TestCalculatePnL_ShortMirrors(t *testing.T) {
	amount, profit := trading.CalculatePnLWithoutFee(10000, 5000, 10000, false)
	if amount != 5000 || !profit {
		t.Errorf("got (%d, %v), want (5000, true)", amount, profit)
	}
}

func TestCalculatePnL_EqualPrices(t *testing.T) {
	amount, profit := trading.CalculatePnLWithoutFee(10000, 10000, 10000, true)
	if amount != 0 || !profit {
		t.Errorf("got (%d, %v), want (0, true)", amount, profit)
	}
}

// ============================================================================
// Test: CalculatePriceImpact
// ============================================================================

func TestCalculatePriceImpact_FromFlat(t *testing.T) {
	got := trading.CalculatePriceImpact(10000, 600, true, true, 0, 0, 30000)
	if got != 10100 {
		t.Errorf("got %d, want 10100", got)
	}
}

func TestCalculatePriceImpact_ExistingSkew(t *testing.T) {
	got := trading.CalculatePriceImpact(10000, 600, true, true, 600, 0, 30000)
	if got != 10300 {
		t.Errorf("got %d, want 10300", got)
	}
}

func TestCalculatePriceImpact_ShortHeavyPushesDown(t *testing.T) {
	got := trading.CalculatePriceImpact(10000, 600, false, true, 0, 600, 30000)
	if got != 9700 {
		t.Errorf("got %d, want 9700", got)
	}
}

func TestCalculatePriceImpact_Disabled(t *testing.T) {
	got := trading.CalculatePriceImpact(10000, 600, true, true, 0, 0, 0)
	if got != 10000 {
		t.Errorf("skew_factor==0: got %d, want 10000", got)
	}
}

// ============================================================================
// Test: CalculateRolloverFee
// ============================================================================

func TestCalculateRolloverFee(t *testing.T) {
	got := trading.CalculateRolloverFee(1_000_000, 2_000_000, 20000)
	if got != 200 {
		t.Errorf("got %d, want 200", got)
	}
}

func TestCalculateRolloverFee_ZeroCollateral(t *testing.T) {
	if got := trading.CalculateRolloverFee(1_000_000, 2_000_000, 0); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestCalculateRolloverFee_NoAdvance(t *testing.T) {
	if got := trading.CalculateRolloverFee(2_000_000, 2_000_000, 20000); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

// ============================================================================
// Test: CalculateFundingRate
// ============================================================================

func TestCalculateFundingRate_Sequence(t *testing.T) {
	// Starting (0, +), long OI 200000, skew factor 3.3e9, max velocity 3e8,
	// one full day.
	rate, pos := trading.CalculateFundingRate(0, true, 200_000, 0, 3_300_000_000, 300_000_000, 86_400)
	if rate != 18181 || !pos {
		t.Fatalf("day 1: got (%d, %v), want (18181, true)", rate, pos)
	}

	// Feeding that back with flat OI leaves the rate unchanged.
	rate, pos = trading.CalculateFundingRate(rate, pos, 0, 0, 3_300_000_000, 300_000_000, 3_600)
	if rate != 18181 || !pos {
		t.Errorf("flat OI: got (%d, %v), want (18181, true)", rate, pos)
	}
}

func TestCalculateFundingRate_ShortHeavyNegative(t *testing.T) {
	rate, pos := trading.CalculateFundingRate(0, true, 0, 200_000, 3_300_000_000, 300_000_000, 86_400)
	if rate != 18181 || pos {
		t.Errorf("got (%d, %v), want (18181, false)", rate, pos)
	}
}

func TestCalculateFundingRate_VelocityCapped(t *testing.T) {
	// Skew beyond skewFactor saturates at max velocity.
	rate, pos := trading.CalculateFundingRate(0, true, 10_000, 0, 1_000, 500, 86_400)
	if rate != 500 || !pos {
		t.Errorf("got (%d, %v), want (500, true)", rate, pos)
	}
}

func TestCalculateFundingRate_Disabled(t *testing.T) {
	rate, pos := trading.CalculateFundingRate(777, false, 200_000, 0, 0, 300_000_000, 86_400)
	if rate != 777 || pos {
		t.Errorf("skew_factor==0: got (%d, %v), want (777, false)", rate, pos)
	}
}

// ============================================================================
// Test: CalculateFundingFeePerSize
// ============================================================================

func TestCalculateFundingFeePerSize_Trapezoidal(t *testing.T) {
	// Rate ramps 0 -> 1000 over a day: the accumulator integrates the
	// average (500), not the final rate.
	acc, pos := trading.CalculateFundingFeePerSize(0, true, 0, true, 1000, true, 86_400)
	if acc != 500 || !pos {
		t.Errorf("got (%d, %v), want (500, true)", acc, pos)
	}
}

func TestCalculateFundingFeePerSize_SignedAccumulation(t *testing.T) {
	// Positive accumulator, negative rate interval: accumulator shrinks.
	acc, pos := trading.CalculateFundingFeePerSize(400, true, 600, false, 600, false, 86_400)
	if acc != 200 || pos {
		t.Errorf("got (%d, %v), want (200, false)", acc, pos)
	}
}

// ============================================================================
// Test: CalculateFundingFee
// ============================================================================

func TestCalculateFundingFee_LongPaysPositive(t *testing.T) {
	// Accumulator moved +2_000_000 since entry on a 10000-notional long:
	// 2_000_000 * 10000 / 1e6 / 100 = 200, long pays.
	fee, profit := trading.CalculateFundingFee(2_000_000, true, 0, true, 10000, true)
	if fee != 200 || profit {
		t.Errorf("got (%d, %v), want (200, false)", fee, profit)
	}
}

func TestCalculateFundingFee_ShortReceivesPositive(t *testing.T) {
	fee, profit := trading.CalculateFundingFee(2_000_000, true, 0, true, 10000, false)
	if fee != 200 || !profit {
		t.Errorf("got (%d, %v), want (200, true)", fee, profit)
	}
}

func TestCalculateFundingFee_LongReceivesNegative(t *testing.T) {
	fee, profit := trading.CalculateFundingFee(2_000_000, false, 0, true, 10000, true)
	if fee != 200 || !profit {
		t.Errorf("got (%d, %v), want (200, true)", fee, profit)
	}
}

// ============================================================================
// Test: CalculateMakerTakerFee
// ============================================================================

const (
	testMakerRate = 500  // 0.05%
	testTakerRate = 1000 // 0.10%
)

func TestMakerTakerFee_IncreasingSkew(t *testing.T) {
	// Long increase onto a long-heavy market grows the skew: maker rate.
	got := trading.CalculateMakerTakerFee(10_000_000, true, true, 500_000, 0, testMakerRate, testTakerRate)
	want := uint64(10_000_000) * testMakerRate / 1_000_000
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestMakerTakerFee_ReducingSkew(t *testing.T) {
	// Short increase onto a long-heavy market shrinks the skew without
	// flipping it: taker rate.
	got := trading.CalculateMakerTakerFee(400_000, false, true, 500_000, 0, testMakerRate, testTakerRate)
	want := uint64(400_000) * testTakerRate / 1_000_000
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestMakerTakerFee_SkewFlipBlended(t *testing.T) {
	// Short 800_000 onto long-heavy skew 500_000: 500_000 closes the old
	// skew at the taker rate, 300_000 opens the new one at the maker rate.
	got := trading.CalculateMakerTakerFee(800_000, false, true, 500_000, 0, testMakerRate, testTakerRate)
	want := uint64(500_000)*testTakerRate/1_000_000 + uint64(300_000)*testMakerRate/1_000_000
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestMakerTakerFee_ZeroSize(t *testing.T) {
	if got := trading.CalculateMakerTakerFee(0, true, true, 500_000, 0, testMakerRate, testTakerRate); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

// ============================================================================
// Test: CalculateSettleAmount
// ============================================================================

func TestSettleAmount_ProfitExceedsFee(t *testing.T) {
	amount, depositToLP := trading.CalculateSettleAmount(1000, true, 300, false)
	if amount != 700 || depositToLP {
		t.Errorf("got (%d, %v), want (700, false)", amount, depositToLP)
	}
}

func TestSettleAmount_FeeExceedsProfit(t *testing.T) {
	amount, depositToLP := trading.CalculateSettleAmount(200, true, 300, false)
	if amount != 100 || !depositToLP {
		t.Errorf("got (%d, %v), want (100, true)", amount, depositToLP)
	}
}

func TestSettleAmount_LossPlusFee(t *testing.T) {
	amount, depositToLP := trading.CalculateSettleAmount(1000, false, 300, false)
	if amount != 1300 || !depositToLP {
		t.Errorf("got (%d, %v), want (1300, true)", amount, depositToLP)
	}
}

func TestSettleAmount_ExactWash(t *testing.T) {
	amount, depositToLP := trading.CalculateSettleAmount(300, true, 300, false)
	if amount != 0 || depositToLP {
		t.Errorf("got (%d, %v), want (0, false)", amount, depositToLP)
	}
}
