package event

import (
	"fmt"
)

// FundingTick advances one market's funding, per-size and rollover
// accumulators to TickTimestamp. Ticks at or before the market's last
// update are idempotent no-ops.
// Idempotency key: "{market}:{tick_id}".
type FundingTick struct {
	Market        string
	TickID        int64 // Monotonic per market
	TickTimestamp int64 // unix seconds (versioned input)
}

func (f *FundingTick) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", f.Market, f.TickID)
}

func (f *FundingTick) EventType() EventType {
	return EventTypeFundingTick
}

func (f *FundingTick) MarketID() *string {
	s := f.Market
	return &s
}

func (f *FundingTick) SourceSequence() int64 {
	return f.TickID
}
