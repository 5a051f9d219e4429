package query

import "github.com/google/uuid"

// BalanceResponse represents user balance state for API queries.
type BalanceResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Asset  string    `json:"asset"`

	// Ledger balances (from journal entries)
	WalletBalance     int64 `json:"wallet_balance"`     // freely withdrawable
	FrozenBalance     int64 `json:"frozen_balance"`     // locked under vote-escrow
	CollateralBalance int64 `json:"collateral_balance"` // posted against positions
	TotalBalance      int64 `json:"total_balance"`      // wallet + frozen + collateral

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last applied event sequence
}

// MarketActivityResponse represents cumulative per-market counters.
type MarketActivityResponse struct {
	MarketID       string `json:"market_id"`
	EventCount     int64  `json:"event_count"`
	FeesCollected  int64  `json:"fees_collected"`
	FundingSettled int64  `json:"funding_settled"`
	AsOfSequence   int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
