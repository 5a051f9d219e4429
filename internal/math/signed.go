package math

// Signed magnitudes are represented as (u64 magnitude, bool isPositive)
// pairs throughout the accrual accumulators — there is no native signed
// fixed-point type. A zero magnitude is canonically positive.

// SignedAdd adds two signed magnitudes.
func SignedAdd(a uint64, aPos bool, b uint64, bPos bool) (uint64, bool) {
	if aPos == bPos {
		return a + b, canonical(a+b, aPos)
	}
	if a >= b {
		return a - b, canonical(a-b, aPos)
	}
	return b - a, canonical(b-a, bPos)
}

// SignedSub subtracts b from a.
func SignedSub(a uint64, aPos bool, b uint64, bPos bool) (uint64, bool) {
	return SignedAdd(a, aPos, b, !bPos)
}

// SignedAverage returns (a+b)/2 over signed magnitudes, truncating the
// magnitude (rounds toward zero).
func SignedAverage(a uint64, aPos bool, b uint64, bPos bool) (uint64, bool) {
	if aPos == bPos {
		// a/2 + b/2 + carry avoids overflow of a+b.
		avg := a/2 + b/2 + (a%2+b%2)/2
		return avg, canonical(avg, aPos)
	}
	if a >= b {
		return (a - b) / 2, canonical((a-b)/2, aPos)
	}
	return (b - a) / 2, canonical((b-a)/2, bPos)
}

// AbsDiff returns |a-b| and whether a >= b.
func AbsDiff(a, b uint64) (uint64, bool) {
	if a >= b {
		return a - b, true
	}
	return b - a, false
}

func canonical(magnitude uint64, positive bool) bool {
	if magnitude == 0 {
		return true
	}
	return positive
}
