package rewards

import (
	"errors"
	"fmt"

	fpmath "PerpCore/internal/math"

	"github.com/google/uuid"
)

var (
	ErrUnknownPool   = errors.New("unknown reward pool")
	ErrInsufficient  = errors.New("unstake exceeds staked amount")
	ErrPoolExists    = errors.New("reward pool already exists")
	ErrNothingStaked = errors.New("nothing staked")
)

// Pool is one staking pool in a distributor. AccRewardPerShare carries
// PRECISION extra decimals; rewards accrue in proportion to
// AllocPoint/totalAllocPoint of whatever the distributor takes in.
type Pool struct {
	PoolID            string
	AllocPoint        uint64
	TotalStaking      uint64
	AccRewardPerShare uint64
	LastUpdateTime    int64
}

// UserStake is one user's stake in one pool. RewardDebt is the usual
// accumulator checkpoint: pending = amount*acc/PRECISION - debt.
type UserStake struct {
	Amount     uint64
	RewardDebt uint64
}

type stakeKey struct {
	poolID string
	userID uuid.UUID
}

// distributor is the shared accumulator machinery of both reward flavors.
type distributor struct {
	pools      map[string]*Pool
	poolOrder  []string
	stakes     map[stakeKey]*UserStake
	totalAlloc uint64
}

func newDistributor() distributor {
	return distributor{
		pools:  make(map[string]*Pool),
		stakes: make(map[stakeKey]*UserStake),
	}
}

// AddPool registers a staking pool.
func (d *distributor) AddPool(poolID string, allocPoint uint64, now int64) error {
	if _, ok := d.pools[poolID]; ok {
		return fmt.Errorf("%w: %s", ErrPoolExists, poolID)
	}
	d.pools[poolID] = &Pool{
		PoolID:         poolID,
		AllocPoint:     allocPoint,
		LastUpdateTime: now,
	}
	d.poolOrder = append(d.poolOrder, poolID)
	d.totalAlloc += allocPoint
	return nil
}

// GetPool returns a pool by id.
func (d *distributor) GetPool(poolID string) (*Pool, bool) {
	p, ok := d.pools[poolID]
	return p, ok
}

// GetStake returns a user's stake in a pool.
func (d *distributor) GetStake(poolID string, userID uuid.UUID) (*UserStake, bool) {
	s, ok := d.stakes[stakeKey{poolID, userID}]
	return s, ok
}

// creditPool folds poolReward into a pool's accumulator. A pool with
// nothing staked only advances its marker — reward is not banked for later.
func (d *distributor) creditPool(p *Pool, poolReward uint64, now int64) {
	p.LastUpdateTime = now
	if p.TotalStaking == 0 || poolReward == 0 {
		return
	}
	p.AccRewardPerShare += fpmath.MulDiv(poolReward, fpmath.Precision, p.TotalStaking)
}

// pending returns a user's unharvested reward in one pool.
func (d *distributor) pending(p *Pool, stake *UserStake) uint64 {
	if stake == nil || stake.Amount == 0 {
		return 0
	}
	accrued := fpmath.MulDiv(stake.Amount, p.AccRewardPerShare, fpmath.Precision)
	if accrued <= stake.RewardDebt {
		return 0
	}
	return accrued - stake.RewardDebt
}

// adjustStake harvests then applies delta to the user's stake. The pool's
// accumulator must already be current. Returns the harvested amount; the
// caller is responsible for paying it out.
func (d *distributor) adjustStake(p *Pool, userID uuid.UUID, delta uint64, increase bool) (uint64, error) {
	key := stakeKey{p.PoolID, userID}
	stake := d.stakes[key]
	if stake == nil {
		stake = &UserStake{}
		d.stakes[key] = stake
	}

	harvested := d.pending(p, stake)

	if increase {
		stake.Amount += delta
		p.TotalStaking += delta
	} else {
		if delta > stake.Amount {
			return 0, fmt.Errorf("%w: have=%d want=%d", ErrInsufficient, stake.Amount, delta)
		}
		stake.Amount -= delta
		p.TotalStaking -= delta
	}

	stake.RewardDebt = fpmath.MulDiv(stake.Amount, p.AccRewardPerShare, fpmath.Precision)
	if stake.Amount == 0 {
		delete(d.stakes, key)
	}
	return harvested, nil
}

// === Snapshot support ===

// GetAllPools returns every pool in registration order.
func (d *distributor) GetAllPools() []*Pool {
	result := make([]*Pool, 0, len(d.poolOrder))
	for _, id := range d.poolOrder {
		result = append(result, d.pools[id])
	}
	return result
}

// GetAllStakes returns every stake keyed by pool and user.
func (d *distributor) GetAllStakes() map[string]map[uuid.UUID]*UserStake {
	result := make(map[string]map[uuid.UUID]*UserStake)
	for key, stake := range d.stakes {
		inner, ok := result[key.poolID]
		if !ok {
			inner = make(map[uuid.UUID]*UserStake)
			result[key.poolID] = inner
		}
		inner[key.userID] = stake
	}
	return result
}

// RestoreStake directly installs a stake (snapshot restore).
func (d *distributor) RestoreStake(poolID string, userID uuid.UUID, stake *UserStake) {
	d.stakes[stakeKey{poolID, userID}] = stake
}

// RestorePool directly installs a pool, replacing any registered one
// (snapshot restore).
func (d *distributor) RestorePool(p *Pool) {
	if existing, ok := d.pools[p.PoolID]; ok {
		d.totalAlloc -= existing.AllocPoint
	} else {
		d.poolOrder = append(d.poolOrder, p.PoolID)
	}
	d.pools[p.PoolID] = p
	d.totalAlloc += p.AllocPoint
}

// FeeDistributor allocates deposited fees across its pools by alloc share.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type FeeDistributor struct {
	distributor
}

func NewFeeDistributor() *FeeDistributor {
	return &FeeDistributor{distributor: newDistributor()}
}

// DepositFee splits a fee across every pool proportionally to alloc points
// and folds each slice into that pool's accumulator.
func (fd *FeeDistributor) DepositFee(amount uint64, now int64) {
	if fd.totalAlloc == 0 {
		return
	}
	for _, id := range fd.poolOrder {
		p := fd.pools[id]
		poolReward := fpmath.MulDiv(amount, p.AllocPoint, fd.totalAlloc)
		fd.creditPool(p, poolReward, now)
	}
}

// Stake books delta into a pool, harvesting first. The harvested amount is
// returned, not transferred.
func (fd *FeeDistributor) Stake(poolID string, userID uuid.UUID, delta uint64, now int64) (uint64, error) {
	p, ok := fd.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPool, poolID)
	}
	p.LastUpdateTime = now
	return fd.adjustStake(p, userID, delta, true)
}

// Unstake removes delta from a pool, harvesting first.
func (fd *FeeDistributor) Unstake(poolID string, userID uuid.UUID, delta uint64, now int64) (uint64, error) {
	p, ok := fd.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPool, poolID)
	}
	p.LastUpdateTime = now
	return fd.adjustStake(p, userID, delta, false)
}

// Pending returns a user's unharvested reward.
func (fd *FeeDistributor) Pending(poolID string, userID uuid.UUID) uint64 {
	p, ok := fd.pools[poolID]
	if !ok {
		return 0
	}
	return fd.pending(p, fd.stakes[stakeKey{poolID, userID}])
}

// EmissionDistributor accrues reward continuously at RewardPerTime units
// per second, split across pools by alloc share.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type EmissionDistributor struct {
	distributor
	RewardPerTime uint64
}

func NewEmissionDistributor(rewardPerTime uint64) *EmissionDistributor {
	return &EmissionDistributor{
		distributor:   newDistributor(),
		RewardPerTime: rewardPerTime,
	}
}

// UpdatePool accrues emission into one pool up to now.
func (ed *EmissionDistributor) UpdatePool(poolID string, now int64) error {
	p, ok := ed.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPool, poolID)
	}
	ed.updatePool(p, now)
	return nil
}

func (ed *EmissionDistributor) updatePool(p *Pool, now int64) {
	if now <= p.LastUpdateTime || ed.totalAlloc == 0 {
		p.LastUpdateTime = now
		return
	}
	elapsed := uint64(now - p.LastUpdateTime)
	poolReward := fpmath.MulDiv(ed.RewardPerTime*elapsed, p.AllocPoint, ed.totalAlloc)
	ed.creditPool(p, poolReward, now)
}

// Stake books delta into a pool, accruing emission and harvesting first.
func (ed *EmissionDistributor) Stake(poolID string, userID uuid.UUID, delta uint64, now int64) (uint64, error) {
	p, ok := ed.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPool, poolID)
	}
	ed.updatePool(p, now)
	return ed.adjustStake(p, userID, delta, true)
}

// Unstake removes delta from a pool, accruing emission and harvesting first.
func (ed *EmissionDistributor) Unstake(poolID string, userID uuid.UUID, delta uint64, now int64) (uint64, error) {
	p, ok := ed.pools[poolID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPool, poolID)
	}
	ed.updatePool(p, now)
	return ed.adjustStake(p, userID, delta, false)
}

// Pending returns a user's unharvested reward as of now.
func (ed *EmissionDistributor) Pending(poolID string, userID uuid.UUID, now int64) uint64 {
	p, ok := ed.pools[poolID]
	if !ok {
		return 0
	}
	stake := ed.stakes[stakeKey{poolID, userID}]
	if stake == nil || stake.Amount == 0 {
		return 0
	}

	acc := p.AccRewardPerShare
	if now > p.LastUpdateTime && p.TotalStaking > 0 && ed.totalAlloc > 0 {
		elapsed := uint64(now - p.LastUpdateTime)
		poolReward := fpmath.MulDiv(ed.RewardPerTime*elapsed, p.AllocPoint, ed.totalAlloc)
		acc += fpmath.MulDiv(poolReward, fpmath.Precision, p.TotalStaking)
	}
	accrued := fpmath.MulDiv(stake.Amount, acc, fpmath.Precision)
	if accrued <= stake.RewardDebt {
		return 0
	}
	return accrued - stake.RewardDebt
}
