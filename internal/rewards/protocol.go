package rewards

import (
	"errors"
	"fmt"

	fpmath "PerpCore/internal/math"
	"PerpCore/internal/staking"

	"github.com/google/uuid"
)

// ClaimableDuration is the window after an epoch's start during which its
// protocol rewards can be claimed.
const ClaimableDuration int64 = 14 * staking.SecondsPerDay

var (
	ErrAlreadyClaimed   = errors.New("epoch already claimed")
	ErrRewardExpired    = errors.New("claim window expired")
	ErrRewardNotExpired = errors.New("claim window still open")
	ErrNoEpochReward    = errors.New("no reward registered for epoch")
	ErrNoVePower        = errors.New("no voting power at epoch")
	ErrAdminCapMinted   = errors.New("admin capability already minted")
	ErrBadAdminCap      = errors.New("capability does not belong to this distributor")
)

// EpochReward is one epoch's registered protocol reward and its claim
// bookkeeping.
type EpochReward struct {
	EpochStartAt int64
	Amount       uint64
	TotalClaimed uint64
	Drained      bool // expired remainder withdrawn by admin

	claimed map[uuid.UUID]bool
}

// ExpireAt returns when the epoch's claim window closes.
func (er *EpochReward) ExpireAt() int64 {
	return er.EpochStartAt + ClaimableDuration
}

// ProtocolReward distributes epoch-scoped rewards pro-rata by vote-escrow
// power, read from the staking epoch ledger.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type ProtocolReward struct {
	epochs map[int64]*EpochReward
	ledger *staking.PowerLedger

	adminCapMinted bool
}

// AdminCapability authorizes sweeping expired epoch remainders. Minted at
// most once per distributor; holding the handle is the authorization.
type AdminCapability struct {
	owner *ProtocolReward
}

func NewProtocolReward(ledger *staking.PowerLedger) *ProtocolReward {
	return &ProtocolReward{
		epochs: make(map[int64]*EpochReward),
		ledger: ledger,
	}
}

// MintAdminCapability issues the distributor's admin handle. Only the first
// call succeeds.
func (pr *ProtocolReward) MintAdminCapability() (*AdminCapability, error) {
	if pr.adminCapMinted {
		return nil, ErrAdminCapMinted
	}
	pr.adminCapMinted = true
	return &AdminCapability{owner: pr}, nil
}

// Register books reward for one epoch. Registering the same epoch again
// tops it up.
func (pr *ProtocolReward) Register(epochStartAt int64, amount uint64) {
	er, ok := pr.epochs[epochStartAt]
	if !ok {
		er = &EpochReward{
			EpochStartAt: epochStartAt,
			claimed:      make(map[uuid.UUID]bool),
		}
		pr.epochs[epochStartAt] = er
	}
	er.Amount += amount
}

// GetEpoch returns one epoch's reward record.
func (pr *ProtocolReward) GetEpoch(epochStartAt int64) (*EpochReward, bool) {
	er, ok := pr.epochs[epochStartAt]
	return er, ok
}

// Claim pays a user's pro-rata share of one epoch's reward:
// amount * user_power / total_power at that epoch. Double claims and
// claims past the window are rejected. The amount is returned, not
// transferred.
func (pr *ProtocolReward) Claim(userID uuid.UUID, epochStartAt, now int64) (uint64, error) {
	er, ok := pr.epochs[epochStartAt]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoEpochReward, epochStartAt)
	}
	if now >= er.ExpireAt() || er.Drained {
		return 0, fmt.Errorf("%w: epoch %d", ErrRewardExpired, epochStartAt)
	}
	if er.claimed[userID] {
		return 0, fmt.Errorf("%w: epoch %d", ErrAlreadyClaimed, epochStartAt)
	}

	totalPower := pr.ledger.TotalPowerAt(epochStartAt)
	if totalPower == 0 {
		return 0, fmt.Errorf("%w: epoch %d", ErrNoVePower, epochStartAt)
	}
	userPower := pr.ledger.UserPowerAt(userID, epochStartAt)
	if userPower == 0 {
		return 0, fmt.Errorf("%w: user %s", ErrNoVePower, userID)
	}

	share := fpmath.MulDiv(er.Amount, userPower, totalPower)
	if share > er.Amount-er.TotalClaimed {
		share = er.Amount - er.TotalClaimed
	}

	er.claimed[userID] = true
	er.TotalClaimed += share
	return share, nil
}

// WithdrawExpired sweeps the unclaimed remainder of an expired epoch.
// Admin path; fails while the window is still open.
func (pr *ProtocolReward) WithdrawExpired(cap *AdminCapability, epochStartAt, now int64) (uint64, error) {
	if cap == nil || cap.owner != pr {
		return 0, ErrBadAdminCap
	}
	er, ok := pr.epochs[epochStartAt]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoEpochReward, epochStartAt)
	}
	if now < er.ExpireAt() {
		return 0, fmt.Errorf("%w: epoch %d expires at %d", ErrRewardNotExpired, epochStartAt, er.ExpireAt())
	}
	if er.Drained {
		return 0, nil
	}

	remainder := er.Amount - er.TotalClaimed
	er.Drained = true
	return remainder, nil
}

// === Snapshot support ===

// EpochSnapshot is the serializable form of one epoch record.
type EpochSnapshot struct {
	EpochStartAt int64
	Amount       uint64
	TotalClaimed uint64
	Drained      bool
	ClaimedBy    []uuid.UUID
}

// Snapshot returns every epoch record.
func (pr *ProtocolReward) Snapshot() []EpochSnapshot {
	result := make([]EpochSnapshot, 0, len(pr.epochs))
	for _, er := range pr.epochs {
		snap := EpochSnapshot{
			EpochStartAt: er.EpochStartAt,
			Amount:       er.Amount,
			TotalClaimed: er.TotalClaimed,
			Drained:      er.Drained,
			ClaimedBy:    make([]uuid.UUID, 0, len(er.claimed)),
		}
		for userID := range er.claimed {
			snap.ClaimedBy = append(snap.ClaimedBy, userID)
		}
		result = append(result, snap)
	}
	return result
}

// Restore reinstalls one epoch record (snapshot restore).
func (pr *ProtocolReward) Restore(snap EpochSnapshot) {
	er := &EpochReward{
		EpochStartAt: snap.EpochStartAt,
		Amount:       snap.Amount,
		TotalClaimed: snap.TotalClaimed,
		Drained:      snap.Drained,
		claimed:      make(map[uuid.UUID]bool, len(snap.ClaimedBy)),
	}
	for _, userID := range snap.ClaimedBy {
		er.claimed[userID] = true
	}
	pr.epochs[snap.EpochStartAt] = er
}
