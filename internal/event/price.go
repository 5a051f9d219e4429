package event

import "fmt"

// PriceUpdate represents an oracle feed reading for one price key.
// Prices carry a min/max band at 8 decimals.
type PriceUpdate struct {
	PriceKey       string
	MinPrice       uint64
	MaxPrice       uint64
	PriceSequence  int64 // Monotonic per key
	PriceTimestamp int64 // Epoch microseconds (versioned input)
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", p.PriceKey, p.PriceSequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) MarketID() *string {
	return nil
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.PriceSequence
}
