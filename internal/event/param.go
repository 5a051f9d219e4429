package event

import (
	"fmt"
)

// ParamUpdate represents an admin update to one market's accrual
// parameters. When received, the core first accrues the market up to the
// event timestamp under the old parameters, then installs the new ones.
type ParamUpdate struct {
	Market               string
	SkewFactor           uint64 // USD notional scale
	MaxFundingVelocity   uint64 // PRECISION scale, per day
	RolloverFeePerSecond uint64 // accumulator units per second
	MakerFeeRate         uint64 // PRECISION scale
	TakerFeeRate         uint64 // PRECISION scale
	EffectiveSeq         int64  // Sequence at which params take effect
	Sequence             int64  // Source sequence
	Timestamp            int64  // Epoch microseconds (versioned input)
}

func (p *ParamUpdate) IdempotencyKey() string {
	return fmt.Sprintf("param:%s:%d", p.Market, p.EffectiveSeq)
}

func (p *ParamUpdate) EventType() EventType {
	return EventTypeParamUpdate
}

func (p *ParamUpdate) MarketID() *string {
	s := p.Market
	return &s
}

func (p *ParamUpdate) SourceSequence() int64 {
	return p.Sequence
}
