package staking

import (
	"errors"
	"fmt"

	"PerpCore/internal/bank"
	fpmath "PerpCore/internal/math"

	"github.com/google/uuid"
)

var (
	ErrMaxNumVeMKLExceeded = errors.New("max number of ve positions exceeded")
	ErrUnableUnlock        = errors.New("lock has not expired")
	ErrInvalidDuration     = errors.New("lock duration outside bounds")
	ErrLockShorten         = errors.New("lock can only extend")
	ErrInvalidAsset        = errors.New("asset cannot be vote-escrowed")
	ErrNoPosition          = errors.New("no ve position")
)

// MaxNumVeMKL is the per-user position limit.
const MaxNumVeMKL = 1

// Config fixes the escrow schedule. Multipliers weight each lockable asset
// kind's contribution to voting power, scaled by PRECISION.
type Config struct {
	TGETimestamp     int64 // token-generation event, unix seconds
	Launched         bool  // real token live; placeholder swaps 1:1 on touch
	MKLMultiplier    uint64
	EsMKLMultiplier  uint64
	PreMKLMultiplier uint64
}

// Position is one user's vote-escrow lock: a frozen native-token store, a
// frozen escrowed-token store, and the unlock time driving linear power
// decay. IsPlaceholder marks a native store still holding the pre-launch
// token.
type Position struct {
	UserID        uuid.UUID
	MKLBalance    uint64
	EsMKLBalance  uint64
	IsPlaceholder bool
	UnlockTime    int64
	Version       int64
}

// UnlockResult reports the stores returned by an unlock.
type UnlockResult struct {
	MKLAmount   uint64
	EsMKLAmount uint64
	Swapped     bool // placeholder converted to the real token on exit
}

// Manager owns every vote-escrow position and the epoch power ledger.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type Manager struct {
	cfg       Config
	positions map[uuid.UUID]*Position
	ledger    *PowerLedger
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:       cfg,
		positions: make(map[uuid.UUID]*Position),
		ledger:    NewPowerLedger(),
	}
}

// Ledger exposes the epoch power ledger for reward-share queries.
func (m *Manager) Ledger() *PowerLedger {
	return m.ledger
}

// SetLaunched flips the real-token launch flag. Placeholder stores swap
// lazily, on the next touch of each position.
func (m *Manager) SetLaunched() {
	m.cfg.Launched = true
}

// GetPosition returns a user's position, or nil.
func (m *Manager) GetPosition(userID uuid.UUID) *Position {
	return m.positions[userID]
}

func (m *Manager) validateDuration(unlockTime, now int64) error {
	duration := unlockTime - NextEpochStart(now)
	if duration < MinLockDuration || duration > MaxLockDuration {
		return fmt.Errorf("%w: duration=%ds", ErrInvalidDuration, duration)
	}
	if duration%SecondsPerDay != 0 {
		return fmt.Errorf("%w: duration not whole days", ErrInvalidDuration)
	}
	if unlockTime < m.cfg.TGETimestamp+MinLockDuration {
		return fmt.Errorf("%w: unlock before TGE window", ErrInvalidDuration)
	}
	return nil
}

// Lock creates a vote-escrow position and spreads its decaying power across
// future epoch buckets. One position per user.
func (m *Manager) Lock(userID uuid.UUID, asset bank.AssetID, amount uint64, unlockTime, now int64) (*Position, error) {
	if err := m.validateDuration(unlockTime, now); err != nil {
		return nil, err
	}
	if _, ok := m.positions[userID]; ok {
		return nil, ErrMaxNumVeMKLExceeded
	}

	pos := &Position{
		UserID:     userID,
		UnlockTime: unlockTime,
	}
	switch asset {
	case bank.AssetMKL:
		pos.MKLBalance = amount
	case bank.AssetPreMKL:
		pos.MKLBalance = amount
		pos.IsPlaceholder = true
	case bank.AssetEsMKL:
		pos.EsMKLBalance = amount
	default:
		return nil, fmt.Errorf("%w: asset id %d", ErrInvalidAsset, asset)
	}

	m.positions[userID] = pos
	m.ledger.Prune(now)
	m.updateVotePower(pos, now, true)
	pos.Version++

	return pos, nil
}

// IncreaseLock adds balance and/or extends a position's unlock time. The
// old power contribution is removed from every future bucket before
// balances change and the new schedule is re-added, re-anchoring the decay.
// A zero extraAmount with the same unlock time still re-runs the cycle.
func (m *Manager) IncreaseLock(userID uuid.UUID, asset bank.AssetID, extraAmount uint64, newUnlockTime, now int64) (*Position, error) {
	pos, ok := m.positions[userID]
	if !ok {
		return nil, ErrNoPosition
	}
	if newUnlockTime < pos.UnlockTime {
		return nil, ErrLockShorten
	}
	if err := m.validateDuration(newUnlockTime, now); err != nil {
		return nil, err
	}

	m.ledger.Prune(now)
	m.updateVotePower(pos, now, false)

	m.swapPlaceholder(pos)
	switch asset {
	case bank.AssetMKL:
		if pos.IsPlaceholder {
			return nil, fmt.Errorf("%w: real token into placeholder store", ErrInvalidAsset)
		}
		pos.MKLBalance += extraAmount
	case bank.AssetPreMKL:
		if !pos.IsPlaceholder && pos.MKLBalance > 0 {
			return nil, fmt.Errorf("%w: placeholder into real-token store", ErrInvalidAsset)
		}
		if extraAmount > 0 {
			pos.IsPlaceholder = true
		}
		pos.MKLBalance += extraAmount
	case bank.AssetEsMKL:
		pos.EsMKLBalance += extraAmount
	default:
		return nil, fmt.Errorf("%w: asset id %d", ErrInvalidAsset, asset)
	}
	pos.UnlockTime = newUnlockTime

	m.updateVotePower(pos, now, true)
	pos.Version++

	return pos, nil
}

// Unlock destroys an expired position and returns both frozen stores,
// swapping a placeholder store to the real token when launched.
func (m *Manager) Unlock(userID uuid.UUID, now int64) (*UnlockResult, error) {
	pos, ok := m.positions[userID]
	if !ok {
		return nil, ErrNoPosition
	}
	if now < pos.UnlockTime {
		return nil, fmt.Errorf("%w: unlock_time=%d now=%d", ErrUnableUnlock, pos.UnlockTime, now)
	}

	m.ledger.Prune(now)
	m.updateVotePower(pos, now, false)

	swapped := m.swapPlaceholder(pos)
	result := &UnlockResult{
		MKLAmount:   pos.MKLBalance,
		EsMKLAmount: pos.EsMKLBalance,
		Swapped:     swapped,
	}
	delete(m.positions, userID)

	return result, nil
}

// swapPlaceholder converts a pre-launch store to the real token 1:1 once
// launched. Reports whether a swap happened.
func (m *Manager) swapPlaceholder(pos *Position) bool {
	if !pos.IsPlaceholder || !m.cfg.Launched {
		return false
	}
	pos.IsPlaceholder = false
	return true
}

// weightedBalance folds both stores through their multipliers.
func (m *Manager) weightedBalance(pos *Position) uint64 {
	mklMult := m.cfg.MKLMultiplier
	if pos.IsPlaceholder {
		mklMult = m.cfg.PreMKLMultiplier
	}
	return fpmath.MulDiv(pos.MKLBalance, mklMult, fpmath.Precision) +
		fpmath.MulDiv(pos.EsMKLBalance, m.cfg.EsMKLMultiplier, fpmath.Precision)
}

// updateVotePower spreads the position's linearly decaying power across
// every future epoch bucket up to the unlock time, bounded at
// MaxPowerEpochs. increase=false subtracts the same schedule (clamped at
// zero) when recomputing during an extend or unlock.
func (m *Manager) updateVotePower(pos *Position, now int64, increase bool) {
	weighted := m.weightedBalance(pos)
	if weighted == 0 {
		return
	}

	epoch := NextEpochStart(now)
	for i := 0; i < MaxPowerEpochs && epoch < pos.UnlockTime; i++ {
		remaining := pos.UnlockTime - epoch
		power := fpmath.MulDiv(weighted, uint64(remaining), uint64(MaxLockDuration))
		if increase {
			m.ledger.Add(pos.UserID, epoch, power)
		} else {
			m.ledger.Sub(pos.UserID, epoch, power)
		}
		epoch += EpochDuration
	}
}

// === Snapshot support ===

// GetAllPositions returns every live position.
func (m *Manager) GetAllPositions() []*Position {
	result := make([]*Position, 0, len(m.positions))
	for _, pos := range m.positions {
		result = append(result, pos)
	}
	return result
}

// RestorePosition directly installs a position without booking power — the
// power ledger is restored separately.
func (m *Manager) RestorePosition(pos *Position) {
	m.positions[pos.UserID] = pos
}
