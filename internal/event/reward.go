package event

import (
	"time"

	"github.com/google/uuid"
)

// RewardRegister books protocol reward for one epoch out of collected fees.
// Admin path. Idempotency key: register_id.
type RewardRegister struct {
	RegisterID   uuid.UUID
	EpochStartAt int64
	Amount       uint64
	Sequence     int64
	Timestamp    time.Time
}

func (r *RewardRegister) IdempotencyKey() string {
	return r.RegisterID.String()
}

func (r *RewardRegister) EventType() EventType {
	return EventTypeRewardRegister
}

func (r *RewardRegister) MarketID() *string {
	return nil
}

func (r *RewardRegister) SourceSequence() int64 {
	return r.Sequence
}

// RewardClaim pays a user's share of one epoch's protocol reward.
// Idempotency key: claim_id.
type RewardClaim struct {
	ClaimID      uuid.UUID
	UserID       uuid.UUID
	EpochStartAt int64
	Sequence     int64
	Timestamp    time.Time
}

func (r *RewardClaim) IdempotencyKey() string {
	return r.ClaimID.String()
}

func (r *RewardClaim) EventType() EventType {
	return EventTypeRewardClaim
}

func (r *RewardClaim) MarketID() *string {
	return nil
}

func (r *RewardClaim) SourceSequence() int64 {
	return r.Sequence
}
