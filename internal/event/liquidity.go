package event

import (
	"time"

	"github.com/google/uuid"
)

// LiquidityDeposit represents a provider depositing into the house pool.
// Idempotency key: deposit_id.
type LiquidityDeposit struct {
	DepositID uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    uint64 // asset units at the asset's native decimals
	Sequence  int64
	Timestamp time.Time
}

func (l *LiquidityDeposit) IdempotencyKey() string {
	return l.DepositID.String()
}

func (l *LiquidityDeposit) EventType() EventType {
	return EventTypeLiquidityDeposit
}

func (l *LiquidityDeposit) MarketID() *string {
	return nil
}

func (l *LiquidityDeposit) SourceSequence() int64 {
	return l.Sequence
}

// LiquidityWithdraw represents a provider burning MKLP for pool assets.
// Idempotency key: withdraw_id.
type LiquidityWithdraw struct {
	WithdrawID  uuid.UUID
	UserID      uuid.UUID
	Asset       string
	ShareAmount uint64 // MKLP to burn (decimal_precision=6)
	Sequence    int64
	Timestamp   time.Time
}

func (l *LiquidityWithdraw) IdempotencyKey() string {
	return l.WithdrawID.String()
}

func (l *LiquidityWithdraw) EventType() EventType {
	return EventTypeLiquidityWithdraw
}

func (l *LiquidityWithdraw) MarketID() *string {
	return nil
}

func (l *LiquidityWithdraw) SourceSequence() int64 {
	return l.Sequence
}
