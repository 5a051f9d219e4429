package persistence

import (
	"encoding/json"
	"fmt"

	"PerpCore/internal/event"
)

// DecodeEventPayload rebuilds the typed event from a stored row so it can be
// replayed through the core after a restart. The payload column holds the
// JSON encoding the core produced when the event was first applied, so
// replay sees byte-identical inputs.
func DecodeEventPayload(eventType string, payload []byte) (event.Event, error) {
	var evt event.Event

	switch eventType {
	case "TradeExecuted":
		evt = &event.TradeExecuted{}
	case "FundsDeposit":
		evt = &event.FundsDeposit{}
	case "FundsWithdraw":
		evt = &event.FundsWithdraw{}
	case "LiquidityDeposit":
		evt = &event.LiquidityDeposit{}
	case "LiquidityWithdraw":
		evt = &event.LiquidityWithdraw{}
	case "StakeLock":
		evt = &event.StakeLock{}
	case "StakeIncrease":
		evt = &event.StakeIncrease{}
	case "StakeUnlock":
		evt = &event.StakeUnlock{}
	case "PriceUpdate":
		evt = &event.PriceUpdate{}
	case "FundingTick":
		evt = &event.FundingTick{}
	case "RewardRegister":
		evt = &event.RewardRegister{}
	case "RewardClaim":
		evt = &event.RewardClaim{}
	case "ParamUpdate":
		evt = &event.ParamUpdate{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return evt, nil
}
