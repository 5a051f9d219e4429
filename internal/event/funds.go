package event

import (
	"time"

	"github.com/google/uuid"
)

// FundsDeposit books external funds into a user wallet.
// Idempotency key: deposit_id.
type FundsDeposit struct {
	DepositID uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    uint64
	Sequence  int64
	Timestamp time.Time
}

func (d *FundsDeposit) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *FundsDeposit) EventType() EventType {
	return EventTypeFundsDeposit
}

func (d *FundsDeposit) MarketID() *string {
	return nil
}

func (d *FundsDeposit) SourceSequence() int64 {
	return d.Sequence
}

// FundsWithdraw pays wallet funds back out across the external boundary.
// Idempotency key: withdraw_id.
type FundsWithdraw struct {
	WithdrawID uuid.UUID
	UserID     uuid.UUID
	Asset      string
	Amount     uint64
	Sequence   int64
	Timestamp  time.Time
}

func (w *FundsWithdraw) IdempotencyKey() string {
	return w.WithdrawID.String()
}

func (w *FundsWithdraw) EventType() EventType {
	return EventTypeFundsWithdraw
}

func (w *FundsWithdraw) MarketID() *string {
	return nil
}

func (w *FundsWithdraw) SourceSequence() int64 {
	return w.Sequence
}
