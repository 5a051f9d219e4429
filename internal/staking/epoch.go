package staking

// Epoch and lock-duration constants. Epochs are calendar weeks anchored at
// the unix epoch; locks decay linearly over at most one year of weekly
// buckets.
const (
	SecondsPerDay int64 = 86_400
	EpochDuration int64 = 7 * SecondsPerDay

	MinLockDuration int64 = 14 * SecondsPerDay
	MaxLockDuration int64 = 52 * EpochDuration

	// Voting power spreads across at most this many future epoch buckets.
	MaxPowerEpochs = 52

	// Epoch buckets older than this many epochs are pruned.
	PruneEpochs int64 = 12
)

// EpochStart truncates a timestamp to the start of its epoch.
func EpochStart(ts int64) int64 {
	return ts - ts%EpochDuration
}

// NextEpochStart returns the start of the epoch after the one containing ts.
// Lock durations are measured from here: a lock only earns power from the
// first full epoch it covers.
func NextEpochStart(ts int64) int64 {
	return EpochStart(ts) + EpochDuration
}
