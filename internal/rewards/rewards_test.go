package rewards_test

import (
	"errors"
	"testing"

	"PerpCore/internal/bank"
	fpmath "PerpCore/internal/math"
	"PerpCore/internal/rewards"
	"PerpCore/internal/staking"

	"github.com/google/uuid"
)

// ============================================================================
// Test: FeeDistributor
// ============================================================================

func TestFeeDistributor_SoleStakerHarvestsFullFee(t *testing.T) {
	fd := rewards.NewFeeDistributor()
	if err := fd.AddPool("mkl", 100, 1); err != nil {
		t.Fatal(err)
	}
	user := uuid.New()

	if _, err := fd.Stake("mkl", user, 1000, 1); err != nil {
		t.Fatal(err)
	}
	fd.DepositFee(5_000_000, 2)

	// Single fully-weighted staker gets the whole fee back.
	harvested, err := fd.Unstake("mkl", user, 1000, 3)
	if err != nil {
		t.Fatal(err)
	}
	if harvested != 5_000_000 {
		t.Errorf("harvested = %d, want 5_000_000", harvested)
	}
}

func TestFeeDistributor_SplitByAllocPoint(t *testing.T) {
	fd := rewards.NewFeeDistributor()
	if err := fd.AddPool("mkl", 75, 1); err != nil {
		t.Fatal(err)
	}
	if err := fd.AddPool("mklp", 25, 1); err != nil {
		t.Fatal(err)
	}
	a, b := uuid.New(), uuid.New()

	if _, err := fd.Stake("mkl", a, 100, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := fd.Stake("mklp", b, 100, 1); err != nil {
		t.Fatal(err)
	}
	fd.DepositFee(1_000_000, 2)

	if got := fd.Pending("mkl", a); got != 750_000 {
		t.Errorf("mkl pending = %d, want 750_000", got)
	}
	if got := fd.Pending("mklp", b); got != 250_000 {
		t.Errorf("mklp pending = %d, want 250_000", got)
	}
}

func TestFeeDistributor_NoBankingWhileEmpty(t *testing.T) {
	fd := rewards.NewFeeDistributor()
	if err := fd.AddPool("mkl", 100, 1); err != nil {
		t.Fatal(err)
	}
	// Fee lands while nothing is staked: forfeited, not banked.
	fd.DepositFee(1_000_000, 2)

	user := uuid.New()
	if _, err := fd.Stake("mkl", user, 1000, 3); err != nil {
		t.Fatal(err)
	}
	if got := fd.Pending("mkl", user); got != 0 {
		t.Errorf("pending = %d, want 0 (pre-stake fee not banked)", got)
	}
}

func TestFeeDistributor_ProportionalSplit(t *testing.T) {
	fd := rewards.NewFeeDistributor()
	if err := fd.AddPool("mkl", 100, 1); err != nil {
		t.Fatal(err)
	}
	a, b := uuid.New(), uuid.New()

	if _, err := fd.Stake("mkl", a, 300, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := fd.Stake("mkl", b, 100, 1); err != nil {
		t.Fatal(err)
	}
	fd.DepositFee(1_000_000, 2)

	if got := fd.Pending("mkl", a); got != 750_000 {
		t.Errorf("a pending = %d, want 750_000", got)
	}
	if got := fd.Pending("mkl", b); got != 250_000 {
		t.Errorf("b pending = %d, want 250_000", got)
	}
}

func TestFeeDistributor_UnstakeTooMuch(t *testing.T) {
	fd := rewards.NewFeeDistributor()
	if err := fd.AddPool("mkl", 100, 1); err != nil {
		t.Fatal(err)
	}
	user := uuid.New()
	if _, err := fd.Stake("mkl", user, 100, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := fd.Unstake("mkl", user, 101, 2); !errors.Is(err, rewards.ErrInsufficient) {
		t.Errorf("got %v, want ErrInsufficient", err)
	}
}

func TestFeeDistributor_DuplicatePool(t *testing.T) {
	fd := rewards.NewFeeDistributor()
	if err := fd.AddPool("mkl", 100, 1); err != nil {
		t.Fatal(err)
	}
	if err := fd.AddPool("mkl", 50, 1); !errors.Is(err, rewards.ErrPoolExists) {
		t.Errorf("got %v, want ErrPoolExists", err)
	}
}

// ============================================================================
// Test: EmissionDistributor
// ============================================================================

func TestEmissionDistributor_AccruesPerSecond(t *testing.T) {
	ed := rewards.NewEmissionDistributor(10) // 10 units/second
	if err := ed.AddPool("mklp", 100, 1000); err != nil {
		t.Fatal(err)
	}
	user := uuid.New()

	if _, err := ed.Stake("mklp", user, 500, 1000); err != nil {
		t.Fatal(err)
	}
	// 100 seconds at 10/s, sole staker: 1000 units.
	if got := ed.Pending("mklp", user, 1100); got != 1000 {
		t.Errorf("pending = %d, want 1000", got)
	}

	harvested, err := ed.Unstake("mklp", user, 500, 1100)
	if err != nil {
		t.Fatal(err)
	}
	if harvested != 1000 {
		t.Errorf("harvested = %d, want 1000", harvested)
	}
}

func TestEmissionDistributor_NothingWhileEmpty(t *testing.T) {
	ed := rewards.NewEmissionDistributor(10)
	if err := ed.AddPool("mklp", 100, 1000); err != nil {
		t.Fatal(err)
	}
	user := uuid.New()

	// Pool sat empty from t=1000 to t=2000; emission over that stretch is
	// not banked for the first staker.
	if _, err := ed.Stake("mklp", user, 500, 2000); err != nil {
		t.Fatal(err)
	}
	if got := ed.Pending("mklp", user, 2000); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

// ============================================================================
// Test: ProtocolReward
// ============================================================================

const week = staking.EpochDuration

func protocolFixture(t *testing.T) (*rewards.ProtocolReward, *staking.Manager, uuid.UUID, int64) {
	t.Helper()
	m := staking.NewManager(staking.Config{
		MKLMultiplier:    fpmath.Precision,
		EsMKLMultiplier:  fpmath.Precision,
		PreMKLMultiplier: fpmath.Precision,
	})
	user := uuid.New()
	now := 2000 * week
	epoch := staking.NextEpochStart(now)
	if _, err := m.Lock(user, bank.AssetMKL, 1_000_000, epoch+26*week, now); err != nil {
		t.Fatal(err)
	}
	pr := rewards.NewProtocolReward(m.Ledger())
	pr.Register(epoch, 1_000_000)
	return pr, m, user, epoch
}

func TestProtocolReward_SoleStakerClaimsAll(t *testing.T) {
	pr, _, user, epoch := protocolFixture(t)

	got, err := pr.Claim(user, epoch, epoch+1)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got != 1_000_000 {
		t.Errorf("claimed = %d, want 1_000_000", got)
	}
}

func TestProtocolReward_DoubleClaimRejected(t *testing.T) {
	pr, _, user, epoch := protocolFixture(t)

	if _, err := pr.Claim(user, epoch, epoch+1); err != nil {
		t.Fatal(err)
	}
	if _, err := pr.Claim(user, epoch, epoch+2); !errors.Is(err, rewards.ErrAlreadyClaimed) {
		t.Errorf("got %v, want ErrAlreadyClaimed", err)
	}
}

func TestProtocolReward_ExpiredClaimRejected(t *testing.T) {
	pr, _, user, epoch := protocolFixture(t)

	late := epoch + rewards.ClaimableDuration
	if _, err := pr.Claim(user, epoch, late); !errors.Is(err, rewards.ErrRewardExpired) {
		t.Errorf("got %v, want ErrRewardExpired", err)
	}
}

func TestProtocolReward_ShareByVePower(t *testing.T) {
	m := staking.NewManager(staking.Config{
		MKLMultiplier:    fpmath.Precision,
		EsMKLMultiplier:  fpmath.Precision,
		PreMKLMultiplier: fpmath.Precision,
	})
	a, b := uuid.New(), uuid.New()
	now := 2000 * week
	epoch := staking.NextEpochStart(now)

	// Same duration, 3:1 balances.
	if _, err := m.Lock(a, bank.AssetMKL, 3_000_000, epoch+26*week, now); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Lock(b, bank.AssetMKL, 1_000_000, epoch+26*week, now); err != nil {
		t.Fatal(err)
	}

	pr := rewards.NewProtocolReward(m.Ledger())
	pr.Register(epoch, 1_000_000)

	gotA, err := pr.Claim(a, epoch, epoch+1)
	if err != nil {
		t.Fatal(err)
	}
	gotB, err := pr.Claim(b, epoch, epoch+1)
	if err != nil {
		t.Fatal(err)
	}
	if gotA != 750_000 || gotB != 250_000 {
		t.Errorf("claims = %d/%d, want 750_000/250_000", gotA, gotB)
	}
}

func TestProtocolReward_AdminWithdrawExpired(t *testing.T) {
	pr, _, user, epoch := protocolFixture(t)

	cap, err := pr.MintAdminCapability()
	if err != nil {
		t.Fatal(err)
	}

	// Sweeping without the handle is rejected.
	if _, err := pr.WithdrawExpired(nil, epoch, epoch+rewards.ClaimableDuration); !errors.Is(err, rewards.ErrBadAdminCap) {
		t.Errorf("nil cap: got %v, want ErrBadAdminCap", err)
	}

	// The handle mints exactly once.
	if _, err := pr.MintAdminCapability(); !errors.Is(err, rewards.ErrAdminCapMinted) {
		t.Errorf("second mint: got %v, want ErrAdminCapMinted", err)
	}

	// Too early while the window is open.
	if _, err := pr.WithdrawExpired(cap, epoch, epoch+1); !errors.Is(err, rewards.ErrRewardNotExpired) {
		t.Errorf("got %v, want ErrRewardNotExpired", err)
	}

	if _, err := pr.Claim(user, epoch, epoch+1); err != nil {
		t.Fatal(err)
	}

	remainder, err := pr.WithdrawExpired(cap, epoch, epoch+rewards.ClaimableDuration)
	if err != nil {
		t.Fatal(err)
	}
	if remainder != 0 {
		t.Errorf("remainder = %d, want 0 (fully claimed)", remainder)
	}

	// Second sweep returns nothing.
	again, err := pr.WithdrawExpired(cap, epoch, epoch+rewards.ClaimableDuration)
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 {
		t.Errorf("second sweep = %d, want 0", again)
	}
}

func TestProtocolReward_NoVePower(t *testing.T) {
	pr, _, _, epoch := protocolFixture(t)
	if _, err := pr.Claim(uuid.New(), epoch, epoch+1); !errors.Is(err, rewards.ErrNoVePower) {
		t.Errorf("got %v, want ErrNoVePower", err)
	}
}
