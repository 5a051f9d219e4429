package staking

import (
	"github.com/google/uuid"
)

// PowerLedger holds per-epoch voting power: one accumulator per (user,
// epoch) and one global total per epoch. Epochs are keyed by their start
// timestamp. Not thread-safe — only accessed from the single-threaded
// deterministic core.
type PowerLedger struct {
	userPower  map[uuid.UUID]map[int64]uint64
	totalPower map[int64]uint64
}

func NewPowerLedger() *PowerLedger {
	return &PowerLedger{
		userPower:  make(map[uuid.UUID]map[int64]uint64),
		totalPower: make(map[int64]uint64),
	}
}

// Add books power into one epoch bucket for a user and the global total.
func (pl *PowerLedger) Add(userID uuid.UUID, epochStart int64, power uint64) {
	if power == 0 {
		return
	}
	epochs, ok := pl.userPower[userID]
	if !ok {
		epochs = make(map[int64]uint64)
		pl.userPower[userID] = epochs
	}
	epochs[epochStart] += power
	pl.totalPower[epochStart] += power
}

// Sub removes power from one epoch bucket, clamping at zero on both the
// user and global side — removal during a recompute must never underflow.
func (pl *PowerLedger) Sub(userID uuid.UUID, epochStart int64, power uint64) {
	if power == 0 {
		return
	}
	if epochs, ok := pl.userPower[userID]; ok {
		if epochs[epochStart] <= power {
			delete(epochs, epochStart)
		} else {
			epochs[epochStart] -= power
		}
		if len(epochs) == 0 {
			delete(pl.userPower, userID)
		}
	}
	if pl.totalPower[epochStart] <= power {
		delete(pl.totalPower, epochStart)
	} else {
		pl.totalPower[epochStart] -= power
	}
}

// UserPowerAt returns one user's power in the epoch containing ts.
func (pl *PowerLedger) UserPowerAt(userID uuid.UUID, ts int64) uint64 {
	return pl.userPower[userID][EpochStart(ts)]
}

// TotalPowerAt returns the global power in the epoch containing ts.
func (pl *PowerLedger) TotalPowerAt(ts int64) uint64 {
	return pl.totalPower[EpochStart(ts)]
}

// Prune drops every epoch bucket more than PruneEpochs behind now, bounding
// table growth. Run before any power update.
func (pl *PowerLedger) Prune(now int64) {
	cutoff := EpochStart(now) - PruneEpochs*EpochDuration

	for epoch := range pl.totalPower {
		if epoch < cutoff {
			delete(pl.totalPower, epoch)
		}
	}
	for userID, epochs := range pl.userPower {
		for epoch := range epochs {
			if epoch < cutoff {
				delete(epochs, epoch)
			}
		}
		if len(epochs) == 0 {
			delete(pl.userPower, userID)
		}
	}
}

// === Snapshot support ===

// SnapshotTotals returns a copy of the global per-epoch totals.
func (pl *PowerLedger) SnapshotTotals() map[int64]uint64 {
	result := make(map[int64]uint64, len(pl.totalPower))
	for k, v := range pl.totalPower {
		result[k] = v
	}
	return result
}

// SnapshotUsers returns a copy of every user's per-epoch powers.
func (pl *PowerLedger) SnapshotUsers() map[uuid.UUID]map[int64]uint64 {
	result := make(map[uuid.UUID]map[int64]uint64, len(pl.userPower))
	for userID, epochs := range pl.userPower {
		inner := make(map[int64]uint64, len(epochs))
		for k, v := range epochs {
			inner[k] = v
		}
		result[userID] = inner
	}
	return result
}

// Restore replaces the ledger contents (snapshot restore).
func (pl *PowerLedger) Restore(users map[uuid.UUID]map[int64]uint64, totals map[int64]uint64) {
	pl.userPower = make(map[uuid.UUID]map[int64]uint64, len(users))
	for userID, epochs := range users {
		inner := make(map[int64]uint64, len(epochs))
		for k, v := range epochs {
			inner[k] = v
		}
		pl.userPower[userID] = inner
	}
	pl.totalPower = make(map[int64]uint64, len(totals))
	for k, v := range totals {
		pl.totalPower[k] = v
	}
}
