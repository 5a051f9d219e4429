package bank

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for protocol operations.
// Methods that can overdraw an account pre-check balances against the
// tracker and fail before any journal is produced.
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// Sequence returns the next journal sequence to be assigned.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence overrides the journal sequence (snapshot restore).
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}
}

func (jg *JournalGenerator) addJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount int64, jt JournalType) {
	if amount == 0 {
		return
	}
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      jg.sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

func (jg *JournalGenerator) finish(b *Batch) (*Batch, error) {
	if len(b.Journals) == 0 {
		// All legs netted to zero: still advance the sequence so replays
		// stay aligned, but hand back nothing to apply.
		jg.sequence++
		return nil, nil
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	jg.sequence++
	return b, nil
}

// GenerateDeposit books an external deposit into a user wallet.
// Moves funds: external:deposits → user:wallet
func (jg *JournalGenerator) GenerateDeposit(
	userID uuid.UUID, eventRef string, assetID AssetID, amount, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		assetID, amount, JournalTypeDeposit)
	return jg.finish(batch)
}

// GenerateWithdrawal books a withdrawal out of a user wallet.
// Pre-check: the wallet must cover the amount.
func (jg *JournalGenerator) GenerateWithdrawal(
	userID uuid.UUID, eventRef string, assetID AssetID, amount, timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		assetID, amount, JournalTypeWithdrawal)
	return jg.finish(batch)
}

// GenerateCollateralPost moves wallet funds to posted collateral for an
// open/increase.
func (jg *JournalGenerator) GenerateCollateralPost(
	userID uuid.UUID, eventRef string, amount, timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, AssetUSDC, amount); err != nil {
		return nil, fmt.Errorf("collateral pre-check failed: %w", err)
	}
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewUserAccountKey(userID, SubTypeCollateral, AssetUSDC),
		NewUserAccountKey(userID, SubTypeWallet, AssetUSDC),
		AssetUSDC, amount, JournalTypeCollateralPost)
	return jg.finish(batch)
}

// GenerateTradeSettle settles a decrease/close: released collateral returns
// to the wallet, then the net settle amount moves between the wallet and
// the house pool. depositToLP means the trader owes the pool.
func (jg *JournalGenerator) GenerateTradeSettle(
	userID uuid.UUID, eventRef string,
	collateralReleased, settleAmount int64, depositToLP bool,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	vault := NewSystemAccountKey("house", SubTypeSystemLPVault, AssetUSDC)
	wallet := NewUserAccountKey(userID, SubTypeWallet, AssetUSDC)

	jg.addJournal(batch,
		wallet,
		NewUserAccountKey(userID, SubTypeCollateral, AssetUSDC),
		AssetUSDC, collateralReleased, JournalTypeCollateralRelease)

	if depositToLP {
		jg.addJournal(batch, vault, wallet, AssetUSDC, settleAmount, JournalTypeTradeSettle)
	} else {
		jg.addJournal(batch, wallet, vault, AssetUSDC, settleAmount, JournalTypeTradeSettle)
	}
	return jg.finish(batch)
}

// GenerateTradeFee moves a trading fee from the user wallet into the
// protocol fee account. Fees settle through the wallet so the collateral
// account stays an exact mirror of position collateral.
func (jg *JournalGenerator) GenerateTradeFee(
	userID uuid.UUID, eventRef string, fee, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewSystemAccountKey("protocol", SubTypeSystemFees, AssetUSDC),
		NewUserAccountKey(userID, SubTypeWallet, AssetUSDC),
		AssetUSDC, fee, JournalTypeTradeFee)
	return jg.finish(batch)
}

// GenerateFundingSettle moves a funding payment between the user wallet
// and the house pool. isProfit means the pool pays the position.
func (jg *JournalGenerator) GenerateFundingSettle(
	userID uuid.UUID, eventRef string, amount int64, isProfit bool, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	vault := NewSystemAccountKey("house", SubTypeSystemLPVault, AssetUSDC)
	wallet := NewUserAccountKey(userID, SubTypeWallet, AssetUSDC)

	if isProfit {
		jg.addJournal(batch, wallet, vault, AssetUSDC, amount, JournalTypeFundingSettle)
	} else {
		jg.addJournal(batch, vault, wallet, AssetUSDC, amount, JournalTypeFundingSettle)
	}
	return jg.finish(batch)
}

// GenerateRolloverFee moves the carrying cost from the user wallet into
// the house pool.
func (jg *JournalGenerator) GenerateRolloverFee(
	userID uuid.UUID, eventRef string, fee, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewSystemAccountKey("house", SubTypeSystemLPVault, AssetUSDC),
		NewUserAccountKey(userID, SubTypeWallet, AssetUSDC),
		AssetUSDC, fee, JournalTypeRolloverFee)
	return jg.finish(batch)
}

// GenerateLiquidityDeposit books a provider's deposit: the net amount joins
// the house pool, the entry fee goes to the fee account, and LP shares are
// minted against the share-supply equity account.
func (jg *JournalGenerator) GenerateLiquidityDeposit(
	userID uuid.UUID, eventRef string, assetID AssetID,
	depositAmount, fee, sharesMinted int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, assetID, depositAmount); err != nil {
		return nil, fmt.Errorf("liquidity deposit pre-check failed: %w", err)
	}
	batch := jg.newBatch(eventRef, timestamp)
	wallet := NewUserAccountKey(userID, SubTypeWallet, assetID)

	jg.addJournal(batch,
		NewSystemAccountKey("house", SubTypeSystemLPVault, assetID),
		wallet, assetID, depositAmount-fee, JournalTypeLiquidityDeposit)
	jg.addJournal(batch,
		NewSystemAccountKey("protocol", SubTypeSystemFees, assetID),
		wallet, assetID, fee, JournalTypeLiquidityFee)
	jg.addJournal(batch,
		NewUserAccountKey(userID, SubTypeWallet, AssetMKLP),
		NewSystemAccountKey("house", SubTypeSystemShareSupply, AssetMKLP),
		AssetMKLP, sharesMinted, JournalTypeShareMint)
	return jg.finish(batch)
}

// GenerateLiquidityWithdraw books a provider's exit: shares burn back into
// the equity account, the gross amount leaves the pool, and the exit fee is
// split off to the fee account.
func (jg *JournalGenerator) GenerateLiquidityWithdraw(
	userID uuid.UUID, eventRef string, assetID AssetID,
	sharesBurned, grossAmount, fee int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, AssetMKLP, sharesBurned); err != nil {
		return nil, fmt.Errorf("liquidity withdraw pre-check failed: %w", err)
	}
	batch := jg.newBatch(eventRef, timestamp)
	wallet := NewUserAccountKey(userID, SubTypeWallet, assetID)
	vault := NewSystemAccountKey("house", SubTypeSystemLPVault, assetID)

	jg.addJournal(batch,
		NewSystemAccountKey("house", SubTypeSystemShareSupply, AssetMKLP),
		NewUserAccountKey(userID, SubTypeWallet, AssetMKLP),
		AssetMKLP, sharesBurned, JournalTypeShareBurn)
	jg.addJournal(batch, wallet, vault, assetID, grossAmount-fee, JournalTypeLiquidityWithdraw)
	jg.addJournal(batch,
		NewSystemAccountKey("protocol", SubTypeSystemFees, assetID),
		vault, assetID, fee, JournalTypeLiquidityFee)
	return jg.finish(batch)
}

// GenerateStakeLock freezes wallet tokens under a vote-escrow position.
func (jg *JournalGenerator) GenerateStakeLock(
	userID uuid.UUID, eventRef string, assetID AssetID, amount, timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("stake pre-check failed: %w", err)
	}
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewUserAccountKey(userID, SubTypeFrozen, assetID),
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		assetID, amount, JournalTypeStakeLock)
	return jg.finish(batch)
}

// GenerateStakeUnlock thaws frozen tokens back into the wallet.
func (jg *JournalGenerator) GenerateStakeUnlock(
	userID uuid.UUID, eventRef string, assetID AssetID, amount, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		NewUserAccountKey(userID, SubTypeFrozen, assetID),
		assetID, amount, JournalTypeStakeUnlock)
	return jg.finish(batch)
}

// GenerateTokenSwap converts one wallet asset into another 1:1 through the
// escrowed-mint equity account (preMKL redemption, esMKL vesting).
func (jg *JournalGenerator) GenerateTokenSwap(
	userID uuid.UUID, eventRef string,
	fromAsset, toAsset AssetID, amount, timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, fromAsset, amount); err != nil {
		return nil, fmt.Errorf("swap pre-check failed: %w", err)
	}
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewSystemAccountKey("protocol", SubTypeSystemEscrowedMint, fromAsset),
		NewUserAccountKey(userID, SubTypeWallet, fromAsset),
		fromAsset, amount, JournalTypeTokenSwap)
	jg.addJournal(batch,
		NewUserAccountKey(userID, SubTypeWallet, toAsset),
		NewSystemAccountKey("protocol", SubTypeSystemEscrowedMint, toAsset),
		toAsset, amount, JournalTypeTokenSwap)
	return jg.finish(batch)
}

// GenerateFrozenSwap converts a frozen store from one asset to another 1:1
// through the escrowed-mint equity accounts. Placeholder redemption on a
// still-locked position: the tokens never touch the wallet.
func (jg *JournalGenerator) GenerateFrozenSwap(
	userID uuid.UUID, eventRef string,
	fromAsset, toAsset AssetID, amount, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewSystemAccountKey("protocol", SubTypeSystemEscrowedMint, fromAsset),
		NewUserAccountKey(userID, SubTypeFrozen, fromAsset),
		fromAsset, amount, JournalTypeTokenSwap)
	jg.addJournal(batch,
		NewUserAccountKey(userID, SubTypeFrozen, toAsset),
		NewSystemAccountKey("protocol", SubTypeSystemEscrowedMint, toAsset),
		toAsset, amount, JournalTypeTokenSwap)
	return jg.finish(batch)
}

// GenerateRewardFund moves collected fees into a staking reward pool, or
// mints escrowed tokens into it via the escrowed-mint account.
func (jg *JournalGenerator) GenerateRewardFund(
	poolName, eventRef string, assetID AssetID, amount int64, fromFees bool, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	source := NewSystemAccountKey("protocol", SubTypeSystemEscrowedMint, assetID)
	if fromFees {
		source = NewSystemAccountKey("protocol", SubTypeSystemFees, assetID)
	}
	jg.addJournal(batch,
		NewSystemAccountKey(poolName, SubTypeSystemRewardPool, assetID),
		source, assetID, amount, JournalTypeRewardFund)
	return jg.finish(batch)
}

// GenerateEpochRewardFund seeds one epoch's protocol reward account.
func (jg *JournalGenerator) GenerateEpochRewardFund(
	epoch uint64, eventRef string, assetID AssetID, amount, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewEpochRewardKey(epoch, assetID),
		NewSystemAccountKey("protocol", SubTypeSystemFees, assetID),
		assetID, amount, JournalTypeRewardFund)
	return jg.finish(batch)
}

// GenerateRewardClaim pays a user's reward out of a pool account.
func (jg *JournalGenerator) GenerateRewardClaim(
	userID uuid.UUID, eventRef string,
	source AccountKey, assetID AssetID, amount, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		source, assetID, amount, JournalTypeRewardClaim)
	return jg.finish(batch)
}

// GenerateRewardExpire sweeps an expired epoch's unclaimed rewards into the
// treasury.
func (jg *JournalGenerator) GenerateRewardExpire(
	epoch uint64, eventRef string, assetID AssetID, amount, timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	jg.addJournal(batch,
		NewSystemAccountKey("protocol", SubTypeSystemTreasury, assetID),
		NewEpochRewardKey(epoch, assetID),
		assetID, amount, JournalTypeRewardExpire)
	return jg.finish(batch)
}
