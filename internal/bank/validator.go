package bank

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateUserNonNegative checks every user-side store of one asset is >= 0
func (v *InvariantValidator) ValidateUserNonNegative(userID uuid.UUID, assetID AssetID) error {
	for _, subType := range []AccountSubType{SubTypeWallet, SubTypeFrozen, SubTypeCollateral} {
		if err := v.tracker.ValidateNonNegative(NewUserAccountKey(userID, subType, assetID)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateVaultNonNegative checks the house pool never owes more than it holds
func (v *InvariantValidator) ValidateVaultNonNegative(assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewSystemAccountKey("house", SubTypeSystemLPVault, assetID))
}

// ValidateEpochRewardNonNegative checks an epoch reward account never overdraws
func (v *InvariantValidator) ValidateEpochRewardNonNegative(epoch uint64, assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewEpochRewardKey(epoch, assetID))
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
