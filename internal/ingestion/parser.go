package ingestion

import (
	"PerpCore/internal/event"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts
// raw events before sending to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "TradeExecuted":
		return parseTradeExecuted(raw.Data)
	case "FundsDeposit":
		return parseFundsDeposit(raw.Data)
	case "FundsWithdraw":
		return parseFundsWithdraw(raw.Data)
	case "LiquidityDeposit":
		return parseLiquidityDeposit(raw.Data)
	case "LiquidityWithdraw":
		return parseLiquidityWithdraw(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "FundingTick":
		return parseFundingTick(raw.Data)
	case "ParamUpdate":
		return parseParamUpdate(raw.Data)
	case "StakeLock":
		return parseStakeLock(raw.Data)
	case "StakeIncrease":
		return parseStakeIncrease(raw.Data)
	case "StakeUnlock":
		return parseStakeUnlock(raw.Data)
	case "RewardRegister":
		return parseRewardRegister(raw.Data)
	case "RewardClaim":
		return parseRewardClaim(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type tradeExecutedJSON struct {
	TradeID         string `json:"trade_id"`
	UserID          string `json:"user_id"`
	Market          string `json:"market"`
	Side            string `json:"side"`      // "long" or "short"
	Direction       string `json:"direction"` // "increase" or "decrease"
	SizeDelta       uint64 `json:"size_delta"`
	CollateralDelta uint64 `json:"collateral_delta"`
	OraclePrice     uint64 `json:"oracle_price"`
	TradeSequence   int64  `json:"trade_sequence"`
	TimestampUs     int64  `json:"timestamp_us"`
}

func parseTradeExecuted(data []byte) (*event.TradeExecuted, error) {
	var j tradeExecutedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TradeExecuted: %w", err)
	}

	tradeID, err := uuid.Parse(j.TradeID)
	if err != nil {
		return nil, fmt.Errorf("parse trade_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	if j.Side != "long" && j.Side != "short" {
		return nil, fmt.Errorf("invalid side: %q", j.Side)
	}
	if j.Direction != "increase" && j.Direction != "decrease" {
		return nil, fmt.Errorf("invalid direction: %q", j.Direction)
	}

	return &event.TradeExecuted{
		TradeID:         tradeID,
		UserID:          userID,
		Market:          j.Market,
		IsLong:          j.Side == "long",
		IsIncrease:      j.Direction == "increase",
		SizeDelta:       j.SizeDelta,
		CollateralDelta: j.CollateralDelta,
		OraclePrice:     j.OraclePrice,
		TradeSequence:   j.TradeSequence,
		Timestamp:       time.UnixMicro(j.TimestampUs),
	}, nil
}

type fundsJSON struct {
	DepositID   string `json:"deposit_id,omitempty"`
	WithdrawID  string `json:"withdraw_id,omitempty"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      uint64 `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseFundsDeposit(data []byte) (*event.FundsDeposit, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundsDeposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.FundsDeposit{
		DepositID: depositID,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseFundsWithdraw(data []byte) (*event.FundsWithdraw, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundsWithdraw: %w", err)
	}
	withdrawID, err := uuid.Parse(j.WithdrawID)
	if err != nil {
		return nil, fmt.Errorf("parse withdraw_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.FundsWithdraw{
		WithdrawID: withdrawID,
		UserID:     userID,
		Asset:      j.Asset,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type liquidityJSON struct {
	DepositID   string `json:"deposit_id,omitempty"`
	WithdrawID  string `json:"withdraw_id,omitempty"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      uint64 `json:"amount,omitempty"`
	ShareAmount uint64 `json:"share_amount,omitempty"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseLiquidityDeposit(data []byte) (*event.LiquidityDeposit, error) {
	var j liquidityJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidityDeposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.LiquidityDeposit{
		DepositID: depositID,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseLiquidityWithdraw(data []byte) (*event.LiquidityWithdraw, error) {
	var j liquidityJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidityWithdraw: %w", err)
	}
	withdrawID, err := uuid.Parse(j.WithdrawID)
	if err != nil {
		return nil, fmt.Errorf("parse withdraw_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.LiquidityWithdraw{
		WithdrawID:  withdrawID,
		UserID:      userID,
		Asset:       j.Asset,
		ShareAmount: j.ShareAmount,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type priceUpdateJSON struct {
	PriceKey       string `json:"price_key"`
	MinPrice       uint64 `json:"min_price"`
	MaxPrice       uint64 `json:"max_price"`
	PriceSequence  int64  `json:"price_sequence"`
	PriceTimestamp int64  `json:"price_timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	return &event.PriceUpdate{
		PriceKey:       j.PriceKey,
		MinPrice:       j.MinPrice,
		MaxPrice:       j.MaxPrice,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestamp,
	}, nil
}

type fundingTickJSON struct {
	Market        string `json:"market"`
	TickID        int64  `json:"tick_id"`
	TickTimestamp int64  `json:"tick_timestamp"`
}

func parseFundingTick(data []byte) (*event.FundingTick, error) {
	var j fundingTickJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundingTick: %w", err)
	}
	return &event.FundingTick{
		Market:        j.Market,
		TickID:        j.TickID,
		TickTimestamp: j.TickTimestamp,
	}, nil
}

type paramUpdateJSON struct {
	Market               string `json:"market"`
	SkewFactor           uint64 `json:"skew_factor"`
	MaxFundingVelocity   uint64 `json:"max_funding_velocity"`
	RolloverFeePerSecond uint64 `json:"rollover_fee_per_second"`
	MakerFeeRate         uint64 `json:"maker_fee_rate"`
	TakerFeeRate         uint64 `json:"taker_fee_rate"`
	EffectiveSeq         int64  `json:"effective_seq"`
	Sequence             int64  `json:"sequence"`
	TimestampUs          int64  `json:"timestamp_us"`
}

func parseParamUpdate(data []byte) (*event.ParamUpdate, error) {
	var j paramUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ParamUpdate: %w", err)
	}
	return &event.ParamUpdate{
		Market:               j.Market,
		SkewFactor:           j.SkewFactor,
		MaxFundingVelocity:   j.MaxFundingVelocity,
		RolloverFeePerSecond: j.RolloverFeePerSecond,
		MakerFeeRate:         j.MakerFeeRate,
		TakerFeeRate:         j.TakerFeeRate,
		EffectiveSeq:         j.EffectiveSeq,
		Sequence:             j.Sequence,
		Timestamp:            j.TimestampUs,
	}, nil
}

type stakeLockJSON struct {
	LockID      string `json:"lock_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      uint64 `json:"amount"`
	UnlockTime  int64  `json:"unlock_time"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseStakeLock(data []byte) (*event.StakeLock, error) {
	var j stakeLockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeLock: %w", err)
	}
	lockID, err := uuid.Parse(j.LockID)
	if err != nil {
		return nil, fmt.Errorf("parse lock_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.StakeLock{
		LockID:     lockID,
		UserID:     userID,
		Asset:      j.Asset,
		Amount:     j.Amount,
		UnlockTime: j.UnlockTime,
		Sequence:   j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type stakeIncreaseJSON struct {
	IncreaseID    string `json:"increase_id"`
	UserID        string `json:"user_id"`
	Asset         string `json:"asset"`
	Amount        uint64 `json:"amount"`
	NewUnlockTime int64  `json:"new_unlock_time"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

func parseStakeIncrease(data []byte) (*event.StakeIncrease, error) {
	var j stakeIncreaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeIncrease: %w", err)
	}
	increaseID, err := uuid.Parse(j.IncreaseID)
	if err != nil {
		return nil, fmt.Errorf("parse increase_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.StakeIncrease{
		IncreaseID:    increaseID,
		UserID:        userID,
		Asset:         j.Asset,
		Amount:        j.Amount,
		NewUnlockTime: j.NewUnlockTime,
		Sequence:      j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}

type stakeUnlockJSON struct {
	UnlockID    string `json:"unlock_id"`
	UserID      string `json:"user_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseStakeUnlock(data []byte) (*event.StakeUnlock, error) {
	var j stakeUnlockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeUnlock: %w", err)
	}
	unlockID, err := uuid.Parse(j.UnlockID)
	if err != nil {
		return nil, fmt.Errorf("parse unlock_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.StakeUnlock{
		UnlockID:  unlockID,
		UserID:    userID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type rewardRegisterJSON struct {
	RegisterID   string `json:"register_id"`
	EpochStartAt int64  `json:"epoch_start_at"`
	Amount       uint64 `json:"amount"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseRewardRegister(data []byte) (*event.RewardRegister, error) {
	var j rewardRegisterJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RewardRegister: %w", err)
	}
	registerID, err := uuid.Parse(j.RegisterID)
	if err != nil {
		return nil, fmt.Errorf("parse register_id: %w", err)
	}
	return &event.RewardRegister{
		RegisterID:   registerID,
		EpochStartAt: j.EpochStartAt,
		Amount:       j.Amount,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type rewardClaimJSON struct {
	ClaimID      string `json:"claim_id"`
	UserID       string `json:"user_id"`
	EpochStartAt int64  `json:"epoch_start_at"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseRewardClaim(data []byte) (*event.RewardClaim, error) {
	var j rewardClaimJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RewardClaim: %w", err)
	}
	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.RewardClaim{
		ClaimID:      claimID,
		UserID:       userID,
		EpochStartAt: j.EpochStartAt,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}
