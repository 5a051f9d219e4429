package ingestion

import (
	"PerpCore/internal/event"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GRPCIngestService provides admin/manual event injection via gRPC, for
// operational corrections and bootstrap — not for high-throughput
// ingestion (use NATS for that).
type GRPCIngestService struct {
	eventChan chan<- event.Event
}

func NewGRPCIngestService(eventChan chan<- event.Event) *GRPCIngestService {
	return &GRPCIngestService{eventChan: eventChan}
}

// InjectFundsDeposit manually injects a FundsDeposit event.
func (s *GRPCIngestService) InjectFundsDeposit(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
	amount uint64,
) error {
	if amount == 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.FundsDeposit{
		DepositID: uuid.New(),
		UserID:    userID,
		Asset:     asset,
		Amount:    amount,
		Sequence:  time.Now().UnixMicro(), // Admin-injected: use timestamp as sequence
		Timestamp: time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectFundsWithdraw manually injects a FundsWithdraw event.
func (s *GRPCIngestService) InjectFundsWithdraw(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
	amount uint64,
) error {
	if amount == 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.FundsWithdraw{
		WithdrawID: uuid.New(),
		UserID:     userID,
		Asset:      asset,
		Amount:     amount,
		Sequence:   time.Now().UnixMicro(),
		Timestamp:  time.Now(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPrice manually injects a PriceUpdate event.
func (s *GRPCIngestService) InjectPrice(
	ctx context.Context,
	priceKey string,
	minPrice, maxPrice uint64,
	priceSequence int64,
) error {
	if minPrice == 0 || maxPrice == 0 {
		return fmt.Errorf("prices must be positive")
	}
	if maxPrice < minPrice {
		return fmt.Errorf("inverted price band")
	}

	evt := &event.PriceUpdate{
		PriceKey:       priceKey,
		MinPrice:       minPrice,
		MaxPrice:       maxPrice,
		PriceSequence:  priceSequence,
		PriceTimestamp: time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectFundingTick manually injects a FundingTick event.
func (s *GRPCIngestService) InjectFundingTick(
	ctx context.Context,
	marketID string,
	tickID int64,
) error {
	evt := &event.FundingTick{
		Market:        marketID,
		TickID:        tickID,
		TickTimestamp: time.Now().Unix(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectParamUpdate manually injects a ParamUpdate event.
func (s *GRPCIngestService) InjectParamUpdate(
	ctx context.Context,
	marketID string,
	skewFactor, maxFundingVelocity, rolloverFeePerSecond uint64,
	makerFeeRate, takerFeeRate uint64,
	effectiveSeq int64,
) error {
	evt := &event.ParamUpdate{
		Market:               marketID,
		SkewFactor:           skewFactor,
		MaxFundingVelocity:   maxFundingVelocity,
		RolloverFeePerSecond: rolloverFeePerSecond,
		MakerFeeRate:         makerFeeRate,
		TakerFeeRate:         takerFeeRate,
		EffectiveSeq:         effectiveSeq,
		Sequence:             time.Now().UnixMicro(),
		Timestamp:            time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
