package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeTradeExecuted
	EventTypeFundsDeposit
	EventTypeFundsWithdraw
	EventTypeLiquidityDeposit
	EventTypeLiquidityWithdraw
	EventTypeStakeLock
	EventTypeStakeIncrease
	EventTypeStakeUnlock
	EventTypePriceUpdate
	EventTypeFundingTick
	EventTypeRewardRegister
	EventTypeRewardClaim
	EventTypeParamUpdate
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Market context (nullable for global events)
	MarketID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context (nil for global events)
	MarketID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeTradeExecuted:
		return "TradeExecuted"
	case EventTypeFundsDeposit:
		return "FundsDeposit"
	case EventTypeFundsWithdraw:
		return "FundsWithdraw"
	case EventTypeLiquidityDeposit:
		return "LiquidityDeposit"
	case EventTypeLiquidityWithdraw:
		return "LiquidityWithdraw"
	case EventTypeStakeLock:
		return "StakeLock"
	case EventTypeStakeIncrease:
		return "StakeIncrease"
	case EventTypeStakeUnlock:
		return "StakeUnlock"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeFundingTick:
		return "FundingTick"
	case EventTypeRewardRegister:
		return "RewardRegister"
	case EventTypeRewardClaim:
		return "RewardClaim"
	case EventTypeParamUpdate:
		return "ParamUpdate"
	default:
		return "Unknown"
	}
}
