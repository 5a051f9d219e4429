package event

import (
	"time"

	"github.com/google/uuid"
)

// StakeLock represents a new vote-escrow lock.
// Idempotency key: lock_id.
type StakeLock struct {
	LockID     uuid.UUID
	UserID     uuid.UUID
	Asset      string // MKL, esMKL or preMKL
	Amount     uint64
	UnlockTime int64 // unix seconds
	Sequence   int64
	Timestamp  time.Time
}

func (s *StakeLock) IdempotencyKey() string {
	return s.LockID.String()
}

func (s *StakeLock) EventType() EventType {
	return EventTypeStakeLock
}

func (s *StakeLock) MarketID() *string {
	return nil
}

func (s *StakeLock) SourceSequence() int64 {
	return s.Sequence
}

// StakeIncrease extends an existing lock with more balance and/or a later
// unlock time. A zero Amount re-anchors the decay schedule only.
// Idempotency key: increase_id.
type StakeIncrease struct {
	IncreaseID    uuid.UUID
	UserID        uuid.UUID
	Asset         string
	Amount        uint64
	NewUnlockTime int64
	Sequence      int64
	Timestamp     time.Time
}

func (s *StakeIncrease) IdempotencyKey() string {
	return s.IncreaseID.String()
}

func (s *StakeIncrease) EventType() EventType {
	return EventTypeStakeIncrease
}

func (s *StakeIncrease) MarketID() *string {
	return nil
}

func (s *StakeIncrease) SourceSequence() int64 {
	return s.Sequence
}

// StakeUnlock destroys an expired lock and thaws its stores.
// Idempotency key: unlock_id.
type StakeUnlock struct {
	UnlockID  uuid.UUID
	UserID    uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (s *StakeUnlock) IdempotencyKey() string {
	return s.UnlockID.String()
}

func (s *StakeUnlock) EventType() EventType {
	return EventTypeStakeUnlock
}

func (s *StakeUnlock) MarketID() *string {
	return nil
}

func (s *StakeUnlock) SourceSequence() int64 {
	return s.Sequence
}
