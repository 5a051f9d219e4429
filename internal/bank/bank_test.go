package bank_test

import (
	"testing"

	"PerpCore/internal/bank"

	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := bank.NewUserAccountKey(userID, bank.SubTypeWallet, bank.AssetUSDC)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:wallet:USDC"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPath(t *testing.T) {
	key := bank.NewSystemAccountKey("house", bank.SubTypeSystemLPVault, bank.AssetUSDC)
	if path := key.AccountPath(); path != "system:lp_vault:USDC" {
		t.Errorf("got %q, want %q", path, "system:lp_vault:USDC")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := bank.NewExternalAccountKey(bank.SubTypeExternalDeposits, bank.AssetMKL)
	if path := key.AccountPath(); path != "external:deposits:MKL" {
		t.Errorf("got %q, want %q", path, "external:deposits:MKL")
	}
}

func TestGetAssetID_Known(t *testing.T) {
	for _, asset := range []string{"USDC", "MKL", "esMKL", "preMKL", "MKLP"} {
		if _, ok := bank.GetAssetID(asset); !ok {
			t.Errorf("%s should be a known asset", asset)
		}
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	if _, ok := bank.GetAssetID("DOGE"); ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := bank.NewBalanceTracker()
	userID := uuid.New()

	j := bank.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  bank.NewUserAccountKey(userID, bank.SubTypeWallet, bank.AssetUSDC),
		CreditAccount: bank.NewExternalAccountKey(bank.SubTypeExternalDeposits, bank.AssetUSDC),
		AssetID:       bank.AssetUSDC,
		Amount:        1_000_000,
		JournalType:   bank.JournalTypeDeposit,
	}
	bt.ApplyJournal(j)

	if got := bt.GetUserWallet(userID, bank.AssetUSDC); got != 1_000_000 {
		t.Errorf("wallet = %d, want 1_000_000", got)
	}
	// Zero-sum: the external boundary account runs negative.
	totals := bt.ComputeGlobalBalance()
	if totals[bank.AssetUSDC] != 0 {
		t.Errorf("global balance = %d, want 0", totals[bank.AssetUSDC])
	}
}

func TestBatch_ValidateRejectsCrossAsset(t *testing.T) {
	batchID := uuid.New()
	batch := &bank.Batch{
		BatchID: batchID,
		Journals: []bank.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  bank.NewUserAccountKey(uuid.New(), bank.SubTypeWallet, bank.AssetMKL),
			CreditAccount: bank.NewExternalAccountKey(bank.SubTypeExternalDeposits, bank.AssetUSDC),
			AssetID:       bank.AssetUSDC,
			Amount:        100,
		}},
	}
	if err := batch.Validate(); err == nil {
		t.Error("cross-asset journal must be rejected")
	}
}

func TestBatch_ValidateRejectsNonPositive(t *testing.T) {
	batchID := uuid.New()
	batch := &bank.Batch{
		BatchID: batchID,
		Journals: []bank.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  bank.NewUserAccountKey(uuid.New(), bank.SubTypeWallet, bank.AssetUSDC),
			CreditAccount: bank.NewExternalAccountKey(bank.SubTypeExternalDeposits, bank.AssetUSDC),
			AssetID:       bank.AssetUSDC,
			Amount:        0,
		}},
	}
	if err := batch.Validate(); err == nil {
		t.Error("zero-amount journal must be rejected")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func setupFundedUser(t *testing.T, amount int64) (*bank.BalanceTracker, *bank.JournalGenerator, uuid.UUID) {
	t.Helper()
	bt := bank.NewBalanceTracker()
	jg := bank.NewJournalGenerator(1, bt)
	userID := uuid.New()

	batch, err := jg.GenerateDeposit(userID, "dep-1", bank.AssetUSDC, amount, 1)
	if err != nil {
		t.Fatalf("GenerateDeposit: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	return bt, jg, userID
}

func TestGenerator_WithdrawalInsufficient(t *testing.T) {
	_, jg, userID := setupFundedUser(t, 1000)

	if _, err := jg.GenerateWithdrawal(userID, "wd-1", bank.AssetUSDC, 2000, 2); err == nil {
		t.Error("overdrawing withdrawal must fail the pre-check")
	}
}

func TestGenerator_LiquidityDepositLegs(t *testing.T) {
	bt, jg, userID := setupFundedUser(t, 10_000_000)

	batch, err := jg.GenerateLiquidityDeposit(userID, "lp-1", bank.AssetUSDC, 10_000_000, 30_000, 9_970_000, 2)
	if err != nil {
		t.Fatalf("GenerateLiquidityDeposit: %v", err)
	}
	if len(batch.Journals) != 3 {
		t.Fatalf("legs = %d, want 3 (vault, fee, mint)", len(batch.Journals))
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	if got := bt.GetLPVaultBalance(bank.AssetUSDC); got != 9_970_000 {
		t.Errorf("vault = %d, want 9_970_000", got)
	}
	if got := bt.GetFeeBalance(bank.AssetUSDC); got != 30_000 {
		t.Errorf("fees = %d, want 30_000", got)
	}
	if got := bt.GetShareSupply(); got != 9_970_000 {
		t.Errorf("share supply = %d, want 9_970_000", got)
	}
	if got := bt.GetUserWallet(userID, bank.AssetMKLP); got != 9_970_000 {
		t.Errorf("user shares = %d, want 9_970_000", got)
	}
}

func TestGenerator_LiquidityRoundTripIsZeroSum(t *testing.T) {
	bt, jg, userID := setupFundedUser(t, 10_000_000)

	dep, err := jg.GenerateLiquidityDeposit(userID, "lp-1", bank.AssetUSDC, 10_000_000, 30_000, 9_970_000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(dep); err != nil {
		t.Fatal(err)
	}

	wd, err := jg.GenerateLiquidityWithdraw(userID, "lp-2", bank.AssetUSDC, 9_970_000, 9_970_000, 29_910, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(wd); err != nil {
		t.Fatal(err)
	}

	v := bank.NewInvariantValidator(bt)
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("ledger not zero-sum: %v", err)
	}
	if got := bt.GetShareSupply(); got != 0 {
		t.Errorf("share supply = %d, want 0 after full burn", got)
	}
	if err := v.ValidateVaultNonNegative(bank.AssetUSDC); err != nil {
		t.Errorf("vault invariant: %v", err)
	}
}

func TestGenerator_StakeLockFreezesWallet(t *testing.T) {
	bt := bank.NewBalanceTracker()
	jg := bank.NewJournalGenerator(1, bt)
	userID := uuid.New()

	dep, err := jg.GenerateDeposit(userID, "dep-1", bank.AssetMKL, 500, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(dep); err != nil {
		t.Fatal(err)
	}

	lock, err := jg.GenerateStakeLock(userID, "lock-1", bank.AssetMKL, 300, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(lock); err != nil {
		t.Fatal(err)
	}

	if got := bt.GetUserWallet(userID, bank.AssetMKL); got != 200 {
		t.Errorf("wallet = %d, want 200", got)
	}
	if got := bt.GetUserFrozen(userID, bank.AssetMKL); got != 300 {
		t.Errorf("frozen = %d, want 300", got)
	}

	// Locking more than the remaining wallet fails.
	if _, err := jg.GenerateStakeLock(userID, "lock-2", bank.AssetMKL, 201, 3); err == nil {
		t.Error("overdrawn lock must fail the pre-check")
	}
}

func TestGenerator_TokenSwapOneToOne(t *testing.T) {
	bt := bank.NewBalanceTracker()
	jg := bank.NewJournalGenerator(1, bt)
	userID := uuid.New()

	dep, err := jg.GenerateDeposit(userID, "dep-1", bank.AssetPreMKL, 1000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(dep); err != nil {
		t.Fatal(err)
	}

	swap, err := jg.GenerateTokenSwap(userID, "swap-1", bank.AssetPreMKL, bank.AssetMKL, 1000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(swap); err != nil {
		t.Fatal(err)
	}

	if got := bt.GetUserWallet(userID, bank.AssetPreMKL); got != 0 {
		t.Errorf("preMKL wallet = %d, want 0", got)
	}
	if got := bt.GetUserWallet(userID, bank.AssetMKL); got != 1000 {
		t.Errorf("MKL wallet = %d, want 1000", got)
	}
	if err := bank.NewInvariantValidator(bt).ValidateGlobalBalance(); err != nil {
		t.Errorf("ledger not zero-sum: %v", err)
	}
}

func TestGenerator_EpochRewardLifecycle(t *testing.T) {
	bt := bank.NewBalanceTracker()
	jg := bank.NewJournalGenerator(1, bt)
	userID := uuid.New()

	// Seed fees, fund the epoch, claim part, expire the rest.
	fees := bank.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  bank.NewSystemAccountKey("protocol", bank.SubTypeSystemFees, bank.AssetUSDC),
		CreditAccount: bank.NewExternalAccountKey(bank.SubTypeExternalDeposits, bank.AssetUSDC),
		AssetID:       bank.AssetUSDC,
		Amount:        1000,
	}
	bt.ApplyJournal(fees)

	fund, err := jg.GenerateEpochRewardFund(7, "fund-1", bank.AssetUSDC, 1000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(fund); err != nil {
		t.Fatal(err)
	}

	claim, err := jg.GenerateRewardClaim(userID, "claim-1",
		bank.NewEpochRewardKey(7, bank.AssetUSDC), bank.AssetUSDC, 400, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(claim); err != nil {
		t.Fatal(err)
	}

	expire, err := jg.GenerateRewardExpire(7, "expire-1", bank.AssetUSDC, 600, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(expire); err != nil {
		t.Fatal(err)
	}

	if got := bt.GetBalance(bank.NewEpochRewardKey(7, bank.AssetUSDC)); got != 0 {
		t.Errorf("epoch account = %d, want 0 after expiry", got)
	}
	if got := bt.GetUserWallet(userID, bank.AssetUSDC); got != 400 {
		t.Errorf("claimed = %d, want 400", got)
	}
	v := bank.NewInvariantValidator(bt)
	if err := v.ValidateEpochRewardNonNegative(7, bank.AssetUSDC); err != nil {
		t.Error(err)
	}
}

func TestGenerator_SequenceAdvancesOnEmptyBatch(t *testing.T) {
	bt := bank.NewBalanceTracker()
	jg := bank.NewJournalGenerator(10, bt)

	// A zero-fee trade fee nets to nothing but still consumes the sequence.
	batch, err := jg.GenerateTradeFee(uuid.New(), "fee-0", 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if batch != nil {
		t.Error("zero-amount batch must be elided")
	}
	if jg.Sequence() != 11 {
		t.Errorf("sequence = %d, want 11", jg.Sequence())
	}
}
