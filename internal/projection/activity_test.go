package projection

import (
	"fmt"
	"testing"
)

func entryOutput(seq int64, market string, debit, credit string, amount int64) ProjectionOutput {
	var marketID *string
	if market != "" {
		marketID = &market
	}
	return ProjectionOutput{
		Sequence:  seq,
		EventType: "TradeExecuted",
		MarketID:  marketID,
		Journals: []JournalEntry{{
			DebitAccount:  debit,
			CreditAccount: credit,
			AssetID:       1,
			Amount:        amount,
			JournalType:   0,
		}},
		Timestamp: seq * 1_000_000,
	}
}

// ============================================================
// Test: user and market queries return newest entries first
// ============================================================

func TestActivityQuery_NewestFirst(t *testing.T) {
	p := NewActivityProjection(16)
	userAcct := "user:b4e2f3a0-0000-0000-0000-000000000001:wallet:USDC"

	p.Record(entryOutput(1, "BTC-PERP", userAcct, "system:fees:USDC", 100))
	p.Record(entryOutput(2, "ETH-PERP", "system:lp_vault:USDC", userAcct, 200))
	p.Record(entryOutput(3, "BTC-PERP", "system:fees:USDC", "system:treasury:USDC", 300))

	byUser := p.QueryByUser("b4e2f3a0-0000-0000-0000-000000000001", 10)
	if len(byUser) != 2 {
		t.Fatalf("expected 2 user entries, got %d", len(byUser))
	}
	if byUser[0].Sequence != 2 || byUser[1].Sequence != 1 {
		t.Errorf("expected newest-first order, got %d then %d", byUser[0].Sequence, byUser[1].Sequence)
	}

	byMarket := p.QueryByMarket("BTC-PERP", 10)
	if len(byMarket) != 2 {
		t.Fatalf("expected 2 market entries, got %d", len(byMarket))
	}
	if byMarket[0].Sequence != 3 {
		t.Errorf("expected sequence 3 first, got %d", byMarket[0].Sequence)
	}
}

// ============================================================
// Test: ring buffer evicts oldest entries once full
// ============================================================

func TestActivityRing_EvictsOldest(t *testing.T) {
	p := NewActivityProjection(4)

	for seq := int64(1); seq <= 6; seq++ {
		debit := fmt.Sprintf("user:%d:wallet:USDC", seq)
		p.Record(entryOutput(seq, "BTC-PERP", debit, "system:fees:USDC", seq*10))
	}

	entries := p.QueryByMarket("BTC-PERP", 10)
	if len(entries) != 4 {
		t.Fatalf("expected 4 retained entries, got %d", len(entries))
	}
	if entries[0].Sequence != 6 || entries[3].Sequence != 3 {
		t.Errorf("expected sequences 6..3, got %d..%d", entries[0].Sequence, entries[3].Sequence)
	}
}

// ============================================================
// Test: limit caps the result set
// ============================================================

func TestActivityQuery_LimitApplied(t *testing.T) {
	p := NewActivityProjection(16)
	for seq := int64(1); seq <= 8; seq++ {
		p.Record(entryOutput(seq, "BTC-PERP", "user:a:wallet:USDC", "system:fees:USDC", 10))
	}

	entries := p.QueryByMarket("BTC-PERP", 3)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Sequence != 8 {
		t.Errorf("expected newest sequence 8, got %d", entries[0].Sequence)
	}
}
