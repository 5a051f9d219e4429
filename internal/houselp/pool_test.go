package houselp_test

import (
	"errors"
	"testing"

	"PerpCore/internal/houselp"
	"PerpCore/internal/oracle"

	"github.com/google/uuid"
)

const (
	usdcPrice = 100_000_000   // 1.00 at 8 decimals
	tenPrice  = 1_000_000_000 // 10.00 at 8 decimals
)

func newTestPool(t *testing.T, withdrawLimit int64) (*houselp.Pool, *oracle.PriceOracle) {
	t.Helper()
	o := oracle.NewPriceOracle()
	if err := o.Update("USDC_USD", usdcPrice, usdcPrice, 1, 1); err != nil {
		t.Fatal(err)
	}
	p := houselp.NewPool(o, withdrawLimit)
	p.Register(&houselp.AssetPool{
		Asset:         "USDC",
		PriceKey:      "USDC_USD",
		Decimals:      6,
		Weight:        100,
		FeeBasisPoint: 0,
	})
	return p, o
}

// ============================================================================
// Test: deposit / withdraw
// ============================================================================

func TestPool_FirstDepositMintsOneToOne(t *testing.T) {
	p, o := newTestPool(t, 0)
	if err := o.Update("USDC_USD", tenPrice, tenPrice, 2, 2); err != nil {
		t.Fatal(err)
	}

	// 100 units of a 6-decimal asset at price 10: TVL value 1000 USD.
	res, err := p.Deposit(uuid.New(), "USDC", 100_000_000, 1000)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	// 1000 USD at 8 decimals rescaled to 6-decimal shares.
	if res.SharesMinted != 1_000_000_000 {
		t.Errorf("minted = %d, want 1_000_000_000", res.SharesMinted)
	}
	if res.FeeAmount != 0 {
		t.Errorf("fee = %d, want 0", res.FeeAmount)
	}

	tvl, err := p.VaultsTVL(true)
	if err != nil {
		t.Fatal(err)
	}
	if tvl != 100_000_000_000 {
		t.Errorf("tvl = %d, want 100_000_000_000", tvl)
	}
}

func TestPool_ZeroFeeRoundTrip(t *testing.T) {
	p, o := newTestPool(t, 0)
	if err := o.Update("USDC_USD", tenPrice, tenPrice, 2, 2); err != nil {
		t.Fatal(err)
	}
	user := uuid.New()

	dep, err := p.Deposit(user, "USDC", 100_000_000, 1000)
	if err != nil {
		t.Fatal(err)
	}

	wd, err := p.Withdraw(user, "USDC", dep.SharesMinted, 1000)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if wd.AssetAmount != 100_000_000 {
		t.Errorf("returned = %d, want original 100_000_000", wd.AssetAmount)
	}
	if p.ShareSupply != 0 {
		t.Errorf("share supply = %d, want 0", p.ShareSupply)
	}
}

func TestPool_SecondDepositProRata(t *testing.T) {
	p, _ := newTestPool(t, 0)
	alice, bob := uuid.New(), uuid.New()

	a, err := p.Deposit(alice, "USDC", 3_000_000, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Deposit(bob, "USDC", 1_000_000, 2)
	if err != nil {
		t.Fatal(err)
	}
	// Equal-value deposits mint in proportion: bob holds a quarter of what
	// alice and bob hold together.
	if b.SharesMinted*3 != a.SharesMinted {
		t.Errorf("shares alice=%d bob=%d, want 3:1", a.SharesMinted, b.SharesMinted)
	}
}

func TestPool_DepositTooSmall(t *testing.T) {
	p, _ := newTestPool(t, 0)
	if _, err := p.Deposit(uuid.New(), "USDC", 0, 1); !errors.Is(err, houselp.ErrDepositTooSmall) {
		t.Errorf("got %v, want ErrDepositTooSmall", err)
	}
}

func TestPool_WithdrawCooldown(t *testing.T) {
	p, _ := newTestPool(t, 3600)
	user := uuid.New()

	dep, err := p.Deposit(user, "USDC", 1_000_000, 1000)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Withdraw(user, "USDC", dep.SharesMinted, 1000+3599); !errors.Is(err, houselp.ErrWithdrawTimeLimit) {
		t.Errorf("got %v, want ErrWithdrawTimeLimit", err)
	}
	if _, err := p.Withdraw(user, "USDC", dep.SharesMinted, 1000+3600); err != nil {
		t.Errorf("post-cooldown withdraw failed: %v", err)
	}
}

func TestPool_WithdrawBurnExceedsSupply(t *testing.T) {
	p, _ := newTestPool(t, 0)
	user := uuid.New()
	if _, err := p.Deposit(user, "USDC", 1_000_000, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Withdraw(user, "USDC", p.ShareSupply+1, 2); !errors.Is(err, houselp.ErrInsufficientShare) {
		t.Errorf("got %v, want ErrInsufficientShare", err)
	}
}

func TestPool_UnknownAsset(t *testing.T) {
	p, _ := newTestPool(t, 0)
	if _, err := p.Deposit(uuid.New(), "DOGE", 100, 1); !errors.Is(err, houselp.ErrUnknownAsset) {
		t.Errorf("got %v, want ErrUnknownAsset", err)
	}
}

func TestPool_RegisterIdempotent(t *testing.T) {
	p, _ := newTestPool(t, 0)
	p.Register(&houselp.AssetPool{Asset: "USDC", PriceKey: "USDC_USD", Decimals: 6, Weight: 900})
	if p.TotalWeight != 100 {
		t.Errorf("re-registration must be a no-op, total weight = %d", p.TotalWeight)
	}
}

// ============================================================================
// Test: TVL
// ============================================================================

func TestPool_TVLAdditionDeduction(t *testing.T) {
	p, _ := newTestPool(t, 0)
	if _, err := p.Deposit(uuid.New(), "USDC", 1_000_000, 1); err != nil {
		t.Fatal(err)
	}
	base, err := p.VaultsTVL(true)
	if err != nil {
		t.Fatal(err)
	}

	p.TVLAddition = 500
	p.TVLDeduction = 200
	tvl, err := p.VaultsTVL(true)
	if err != nil {
		t.Fatal(err)
	}
	if tvl != base+300 {
		t.Errorf("tvl = %d, want %d", tvl, base+300)
	}

	// Deduction beyond everything floors at zero, never wraps.
	p.TVLDeduction = base + p.TVLAddition + 1
	tvl, err = p.VaultsTVL(true)
	if err != nil {
		t.Fatal(err)
	}
	if tvl != 0 {
		t.Errorf("tvl = %d, want 0", tvl)
	}
}

func TestPool_FeeBalanceExcludedFromTVL(t *testing.T) {
	p, o := newTestPool(t, 0)
	base := &houselp.AssetPool{
		Asset: "FEE", PriceKey: "FEE_USD", Decimals: 6,
		Weight: 100, FeeBasisPoint: 100, // 1% flat
	}
	p.Register(base)
	if err := o.Update("FEE_USD", usdcPrice, usdcPrice, 1, 1); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Deposit(uuid.New(), "FEE", 1_000_000, 1); err != nil {
		t.Fatal(err)
	}
	// Vault holds the full amount but only the fee-free part counts.
	if base.Balance != 1_000_000 || base.FeeBalance != 10_000 {
		t.Fatalf("balance/fee = %d/%d", base.Balance, base.FeeBalance)
	}
	tvl, err := p.VaultsTVL(true)
	if err != nil {
		t.Fatal(err)
	}
	if tvl != 99_000_000 {
		t.Errorf("tvl = %d, want 99_000_000 (fee excluded)", tvl)
	}
}

// ============================================================================
// Test: dynamic fee curve
// ============================================================================

func TestPool_DynamicFeeRebateAndTax(t *testing.T) {
	o := oracle.NewPriceOracle()
	if err := o.Update("USDC_USD", usdcPrice, usdcPrice, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := o.Update("USDT_USD", usdcPrice, usdcPrice, 1, 1); err != nil {
		t.Fatal(err)
	}
	p := houselp.NewPool(o, 0)
	heavy := &houselp.AssetPool{
		Asset: "USDC", PriceKey: "USDC_USD", Decimals: 6,
		Weight: 100, FeeBasisPoint: 30, TaxBasisPoint: 50, DynamicFeeEnabled: true,
	}
	light := &houselp.AssetPool{
		Asset: "USDT", PriceKey: "USDT_USD", Decimals: 6,
		Weight: 100, FeeBasisPoint: 30, TaxBasisPoint: 50, DynamicFeeEnabled: true,
	}
	p.Register(heavy)
	p.Register(light)

	cap, err := p.MintSettleCapability()
	if err != nil {
		t.Fatal(err)
	}

	// Skew the pool: all value sits in USDC, none in USDT.
	if err := p.PnLDepositToLP(cap, "USDC", 10_000_000); err != nil {
		t.Fatal(err)
	}

	// Growing the overweight vault pays base + tax.
	res, err := p.Deposit(uuid.New(), "USDC", 1_000_000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.FeeBps <= 30 {
		t.Errorf("overweight deposit fee = %d bps, want > base 30", res.FeeBps)
	}

	// Growing the underweight vault earns a rebate.
	res, err = p.Deposit(uuid.New(), "USDT", 1_000_000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.FeeBps >= 30 {
		t.Errorf("underweight deposit fee = %d bps, want < base 30", res.FeeBps)
	}
}

// ============================================================================
// Test: settlement path
// ============================================================================

func TestPool_PnLFlows(t *testing.T) {
	p, _ := newTestPool(t, 0)
	cap, err := p.MintSettleCapability()
	if err != nil {
		t.Fatal(err)
	}

	if err := p.PnLDepositToLP(cap, "USDC", 5_000_000); err != nil {
		t.Fatal(err)
	}
	if err := p.PnLWithdrawFromLP(cap, "USDC", 2_000_000); err != nil {
		t.Fatal(err)
	}

	ap, _ := p.GetAssetPool("USDC")
	if ap.Balance != 3_000_000 {
		t.Errorf("balance = %d, want 3_000_000", ap.Balance)
	}

	// Paying out more than the vault holds is a hard failure.
	if err := p.PnLWithdrawFromLP(cap, "USDC", 4_000_000); !errors.Is(err, houselp.ErrInsufficientPool) {
		t.Errorf("got %v, want ErrInsufficientPool", err)
	}
}

func TestPool_SettleCapabilityGating(t *testing.T) {
	p, _ := newTestPool(t, 0)

	// Nil and foreign capabilities are rejected.
	if err := p.PnLDepositToLP(nil, "USDC", 1); !errors.Is(err, houselp.ErrBadCapability) {
		t.Errorf("nil cap: got %v, want ErrBadCapability", err)
	}
	other, _ := newTestPool(t, 0)
	foreignCap, err := other.MintSettleCapability()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.PnLDepositToLP(foreignCap, "USDC", 1); !errors.Is(err, houselp.ErrBadCapability) {
		t.Errorf("foreign cap: got %v, want ErrBadCapability", err)
	}

	// The capability mints exactly once.
	if _, err := p.MintSettleCapability(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.MintSettleCapability(); !errors.Is(err, houselp.ErrCapabilityMinted) {
		t.Errorf("second mint: got %v, want ErrCapabilityMinted", err)
	}
}

func TestPool_DrainFees(t *testing.T) {
	p, _ := newTestPool(t, 0)
	cap, err := p.MintSettleCapability()
	if err != nil {
		t.Fatal(err)
	}
	ap, _ := p.GetAssetPool("USDC")
	ap.Balance = 1_000_000
	ap.FeeBalance = 40_000

	drained, err := p.DrainFees(cap, "USDC")
	if err != nil {
		t.Fatal(err)
	}
	if drained != 40_000 {
		t.Errorf("drained = %d, want 40_000", drained)
	}
	if ap.Balance != 960_000 || ap.FeeBalance != 0 {
		t.Errorf("balance/fee = %d/%d after drain", ap.Balance, ap.FeeBalance)
	}
}
