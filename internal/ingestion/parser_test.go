package ingestion_test

import (
	"PerpCore/internal/event"
	"PerpCore/internal/ingestion"
	"encoding/json"
	"testing"
	"time"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseTradeExecuted(t *testing.T) {
	payload := map[string]interface{}{
		"trade_id":         "550e8400-e29b-41d4-a716-446655440000",
		"user_id":          "660e8400-e29b-41d4-a716-446655440001",
		"market":           "BTC-PERP",
		"side":             "long",
		"direction":        "increase",
		"size_delta":       uint64(1_000_000),
		"collateral_delta": uint64(100_000),
		"oracle_price":     uint64(5_000_000_000_000),
		"trade_sequence":   int64(42),
		"timestamp_us":     int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "TradeExecuted")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	te, ok := evt.(*event.TradeExecuted)
	if !ok {
		t.Fatalf("expected *event.TradeExecuted, got %T", evt)
	}

	if te.Market != "BTC-PERP" {
		t.Errorf("market: got %s, want BTC-PERP", te.Market)
	}
	if !te.IsLong {
		t.Error("side: got short, want long")
	}
	if !te.IsIncrease {
		t.Error("direction: got decrease, want increase")
	}
	if te.SizeDelta != 1_000_000 {
		t.Errorf("size_delta: got %d, want 1_000_000", te.SizeDelta)
	}
	if te.CollateralDelta != 100_000 {
		t.Errorf("collateral_delta: got %d, want 100_000", te.CollateralDelta)
	}
	if te.TradeSequence != 42 {
		t.Errorf("trade_sequence: got %d, want 42", te.TradeSequence)
	}
	if te.EventType() != event.EventTypeTradeExecuted {
		t.Errorf("event type: got %v, want TradeExecuted", te.EventType())
	}
}

func TestParseTradeExecuted_InvalidSide_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"trade_id":       "550e8400-e29b-41d4-a716-446655440000",
		"user_id":        "660e8400-e29b-41d4-a716-446655440001",
		"market":         "BTC-PERP",
		"side":           "sideways",
		"direction":      "increase",
		"size_delta":     uint64(1),
		"oracle_price":   uint64(1),
		"trade_sequence": int64(0),
		"timestamp_us":   int64(0),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "TradeExecuted"); err == nil {
		t.Fatal("expected error for invalid side")
	}
}

func TestParseFundsDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "USDC",
		"amount":       uint64(1_000_000),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "FundsDeposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	fd, ok := evt.(*event.FundsDeposit)
	if !ok {
		t.Fatalf("expected *event.FundsDeposit, got %T", evt)
	}

	if fd.Asset != "USDC" {
		t.Errorf("asset: got %s, want USDC", fd.Asset)
	}
	if fd.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", fd.Amount)
	}
}

func TestParseLiquidityWithdraw(t *testing.T) {
	payload := map[string]interface{}{
		"withdraw_id":  "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "USDC",
		"share_amount": uint64(9_970_000),
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "LiquidityWithdraw")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lw, ok := evt.(*event.LiquidityWithdraw)
	if !ok {
		t.Fatalf("expected *event.LiquidityWithdraw, got %T", evt)
	}

	if lw.ShareAmount != 9_970_000 {
		t.Errorf("share_amount: got %d, want 9_970_000", lw.ShareAmount)
	}
	if lw.EventType() != event.EventTypeLiquidityWithdraw {
		t.Errorf("event type: got %v, want LiquidityWithdraw", lw.EventType())
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"price_key":          "ETH:USD",
		"min_price":          uint64(299_900_000_000),
		"max_price":          uint64(300_100_000_000),
		"price_sequence":     int64(100),
		"price_timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.PriceUpdate)
	if !ok {
		t.Fatalf("expected *event.PriceUpdate, got %T", evt)
	}

	if pu.PriceKey != "ETH:USD" {
		t.Errorf("price_key: got %s, want ETH:USD", pu.PriceKey)
	}
	if pu.MinPrice != 299_900_000_000 || pu.MaxPrice != 300_100_000_000 {
		t.Errorf("band: got (%d, %d)", pu.MinPrice, pu.MaxPrice)
	}
	if pu.PriceSequence != 100 {
		t.Errorf("price_sequence: got %d, want 100", pu.PriceSequence)
	}
}

func TestParseParamUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"market":                  "BTC-PERP",
		"skew_factor":             uint64(3_300_000_000),
		"max_funding_velocity":    uint64(300_000_000),
		"rollover_fee_per_second": uint64(10),
		"maker_fee_rate":          uint64(500),
		"taker_fee_rate":          uint64(1000),
		"effective_seq":           int64(99),
		"sequence":                int64(1),
		"timestamp_us":            int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ParamUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.ParamUpdate)
	if !ok {
		t.Fatalf("expected *event.ParamUpdate, got %T", evt)
	}

	if pu.Market != "BTC-PERP" {
		t.Errorf("market: got %s, want BTC-PERP", pu.Market)
	}
	if pu.SkewFactor != 3_300_000_000 {
		t.Errorf("skew_factor: got %d, want 3_300_000_000", pu.SkewFactor)
	}
	if pu.MakerFeeRate != 500 || pu.TakerFeeRate != 1000 {
		t.Errorf("fee rates: got (%d, %d)", pu.MakerFeeRate, pu.TakerFeeRate)
	}
	if pu.EffectiveSeq != 99 {
		t.Errorf("effective_seq: got %d, want 99", pu.EffectiveSeq)
	}
}

func TestParseStakeLock(t *testing.T) {
	payload := map[string]interface{}{
		"lock_id":      "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "MKL",
		"amount":       uint64(1_000_000),
		"unlock_time":  int64(1_725_000_000),
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "StakeLock")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sl, ok := evt.(*event.StakeLock)
	if !ok {
		t.Fatalf("expected *event.StakeLock, got %T", evt)
	}

	if sl.Asset != "MKL" {
		t.Errorf("asset: got %s, want MKL", sl.Asset)
	}
	if sl.UnlockTime != 1_725_000_000 {
		t.Errorf("unlock_time: got %d, want 1_725_000_000", sl.UnlockTime)
	}
}

func TestParseRewardClaim(t *testing.T) {
	payload := map[string]interface{}{
		"claim_id":       "550e8400-e29b-41d4-a716-446655440000",
		"user_id":        "660e8400-e29b-41d4-a716-446655440001",
		"epoch_start_at": int64(1_724_457_600),
		"sequence":       int64(9),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "RewardClaim")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rc, ok := evt.(*event.RewardClaim)
	if !ok {
		t.Fatalf("expected *event.RewardClaim, got %T", evt)
	}

	if rc.EpochStartAt != 1_724_457_600 {
		t.Errorf("epoch_start_at: got %d, want 1_724_457_600", rc.EpochStartAt)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "TradeExecuted")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"trade_id":       "not-a-uuid",
		"user_id":        "also-not-a-uuid",
		"market":         "BTC-PERP",
		"side":           "long",
		"direction":      "increase",
		"size_delta":     uint64(1),
		"oracle_price":   uint64(1),
		"trade_sequence": int64(0),
		"timestamp_us":   int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "TradeExecuted")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
