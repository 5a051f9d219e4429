package event

import (
	"time"

	"github.com/google/uuid"
)

// TradeExecuted represents a matched perp trade from the execution layer.
// Idempotency key: trade_id (UUID from the execution layer).
type TradeExecuted struct {
	TradeID         uuid.UUID // Idempotency key
	UserID          uuid.UUID
	Market          string
	IsLong          bool
	IsIncrease      bool      // open/increase vs decrease/close
	SizeDelta       uint64    // USD notional (decimal_precision=6, scale=1_000_000)
	CollateralDelta uint64    // USD, only meaningful on increase
	OraclePrice     uint64    // Fixed-point: price scale (decimal_precision=8)
	TradeSequence   int64     // Source sequence from execution layer
	Timestamp       time.Time // Versioned input timestamp (NOT wall-clock)
}

func (t *TradeExecuted) IdempotencyKey() string {
	return t.TradeID.String()
}

func (t *TradeExecuted) EventType() EventType {
	return EventTypeTradeExecuted
}

func (t *TradeExecuted) MarketID() *string {
	m := t.Market
	return &m
}

func (t *TradeExecuted) SourceSequence() int64 {
	return t.TradeSequence
}
