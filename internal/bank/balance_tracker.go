package bank

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === User balance queries ===

// GetUserWallet returns a user's liquid balance in one asset
func (bt *BalanceTracker) GetUserWallet(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeWallet, assetID))
}

// GetUserFrozen returns the amount locked under vote-escrow
func (bt *BalanceTracker) GetUserFrozen(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeFrozen, assetID))
}

// GetUserCollateral returns collateral posted against open positions
func (bt *BalanceTracker) GetUserCollateral(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeCollateral, assetID))
}

// GetUserTotalBalance returns wallet + frozen + posted collateral
func (bt *BalanceTracker) GetUserTotalBalance(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetUserWallet(userID, assetID) +
		bt.GetUserFrozen(userID, assetID) +
		bt.GetUserCollateral(userID, assetID)
}

// === System balance queries ===

// GetLPVaultBalance returns the house pool's holdings of one asset
func (bt *BalanceTracker) GetLPVaultBalance(assetID AssetID) int64 {
	return bt.GetBalance(NewSystemAccountKey("house", SubTypeSystemLPVault, assetID))
}

// GetFeeBalance returns undistributed fees in one asset
func (bt *BalanceTracker) GetFeeBalance(assetID AssetID) int64 {
	return bt.GetBalance(NewSystemAccountKey("protocol", SubTypeSystemFees, assetID))
}

// GetShareSupply returns outstanding LP shares. The equity account runs
// negative by exactly the circulating supply.
func (bt *BalanceTracker) GetShareSupply() int64 {
	return -bt.GetBalance(NewSystemAccountKey("house", SubTypeSystemShareSupply, AssetMKLP))
}

// === Invariant checks ===

// ValidateSufficientWallet checks if user has enough liquid balance
func (bt *BalanceTracker) ValidateSufficientWallet(userID uuid.UUID, assetID AssetID, required int64) error {
	wallet := bt.GetUserWallet(userID, assetID)
	if wallet < required {
		return fmt.Errorf("insufficient wallet balance: have=%d, need=%d", wallet, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances (snapshot restore)
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}
