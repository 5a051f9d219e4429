package houselp

import (
	"errors"
	"fmt"

	fpmath "PerpCore/internal/math"
	"PerpCore/internal/oracle"

	"github.com/google/uuid"
)

var (
	ErrDepositTooSmall   = errors.New("deposit too small: zero shares minted")
	ErrWithdrawTimeLimit = errors.New("withdraw inside cooldown window")
	ErrUnknownAsset      = errors.New("asset not registered")
	ErrInsufficientPool  = errors.New("withdrawal exceeds pool balance")
	ErrInsufficientShare = errors.New("burn exceeds share supply")
	ErrNoPrice           = errors.New("no oracle price for asset")
	ErrCapabilityMinted  = errors.New("settle capability already minted")
	ErrBadCapability     = errors.New("capability does not belong to this pool")
)

const (
	// TVL and intermediate USD values carry the oracle's price precision.
	TVLDecimals uint8 = 8
	// MKLP shares carry the quote precision.
	ShareDecimals uint8 = 6

	basisPointsDivisor uint64 = 10_000
)

// AssetPool is the per-asset ledger of the house pool. FeeBalance is the
// slice of Balance held back as collected fees; it never counts toward TVL.
type AssetPool struct {
	Asset    string
	PriceKey string
	Decimals uint8

	Balance    uint64
	FeeBalance uint64

	Weight            uint64
	FeeBasisPoint     uint64
	TaxBasisPoint     uint64
	DynamicFeeEnabled bool
}

// Available returns the TVL-bearing balance.
func (ap *AssetPool) Available() uint64 {
	if ap.FeeBalance > ap.Balance {
		return 0
	}
	return ap.Balance - ap.FeeBalance
}

// Pool is the house liquidity pool: multi-asset vaults priced off the
// oracle, a single MKLP share supply, and the dynamic fee curve steering
// each vault toward its weight-proportional share of TVL.
// Not thread-safe — only accessed from the single-threaded deterministic core.
type Pool struct {
	assets     map[string]*AssetPool
	assetOrder []string // registration order, keeps iteration deterministic

	TotalWeight  uint64
	TVLAddition  uint64
	TVLDeduction uint64

	ShareSupply uint64

	WithdrawTimeLimit int64 // seconds
	lastDepositTime   map[uuid.UUID]int64

	oracle *oracle.PriceOracle

	settleCapMinted bool
}

// SettleCapability authorizes PnL settlement and fee draining against the
// vaults without minting or burning shares. It is minted at most once per
// pool; holding the handle is the authorization. The zero value is useless.
type SettleCapability struct {
	pool *Pool
}

func NewPool(o *oracle.PriceOracle, withdrawTimeLimit int64) *Pool {
	return &Pool{
		assets:            make(map[string]*AssetPool),
		WithdrawTimeLimit: withdrawTimeLimit,
		lastDepositTime:   make(map[uuid.UUID]int64),
		oracle:            o,
	}
}

// MintSettleCapability issues the pool's settlement handle. Only the first
// call succeeds; the holder passes it back to the privileged settlement
// entry points.
func (p *Pool) MintSettleCapability() (*SettleCapability, error) {
	if p.settleCapMinted {
		return nil, ErrCapabilityMinted
	}
	p.settleCapMinted = true
	return &SettleCapability{pool: p}, nil
}

// Register adds an asset vault. Registering an existing asset is a silent
// no-op.
func (p *Pool) Register(ap *AssetPool) {
	if _, ok := p.assets[ap.Asset]; ok {
		return
	}
	p.assets[ap.Asset] = ap
	p.assetOrder = append(p.assetOrder, ap.Asset)
	p.TotalWeight += ap.Weight
}

// GetAssetPool returns the vault for an asset.
func (p *Pool) GetAssetPool(asset string) (*AssetPool, bool) {
	ap, ok := p.assets[asset]
	return ap, ok
}

// VaultsTVL values every vault's available balance at the oracle price,
// rescaled to TVLDecimals, plus the admin addition and minus the deduction,
// floored at zero. maximize picks the max side of each price band.
func (p *Pool) VaultsTVL(maximize bool) (uint64, error) {
	var tvl uint64
	for _, asset := range p.assetOrder {
		ap := p.assets[asset]
		price, ok := p.oracle.Read(ap.PriceKey, maximize)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrNoPrice, asset)
		}
		tvl += fpmath.MultiplyWithDecimals(ap.Available(), ap.Decimals, price, TVLDecimals, TVLDecimals)
	}

	tvl += p.TVLAddition
	if p.TVLDeduction >= tvl {
		return 0, nil
	}
	return tvl - p.TVLDeduction, nil
}

// DepositResult reports the outcome of a provider deposit.
type DepositResult struct {
	SharesMinted uint64
	FeeAmount    uint64 // asset units, retained as FeeBalance
	FeeBps       uint64
	USDValue     uint64 // TVLDecimals, before fee
}

// Deposit books a provider's asset into its vault, charges the dynamic
// fee, and mints MKLP against the pre-deposit TVL. The deposit is valued
// at the min-side price and TVL at the max side so share minting never
// favors the depositor over existing holders.
func (p *Pool) Deposit(userID uuid.UUID, asset string, amount uint64, now int64) (*DepositResult, error) {
	ap, ok := p.assets[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}

	price, ok := p.oracle.Read(ap.PriceKey, false)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	usdValue := fpmath.MultiplyWithDecimals(amount, ap.Decimals, price, TVLDecimals, TVLDecimals)

	tvl, err := p.VaultsTVL(true)
	if err != nil {
		return nil, err
	}

	feeBps := p.feeBasisPoints(ap, usdValue, true, tvl)
	feeAmount := fpmath.MulDiv(amount, feeBps, basisPointsDivisor)
	usdAfterFee := fpmath.MulDiv(usdValue, basisPointsDivisor-feeBps, basisPointsDivisor)

	var minted uint64
	if p.ShareSupply == 0 || tvl == 0 {
		minted = fpmath.ChangeDecimals(usdAfterFee, TVLDecimals, ShareDecimals)
	} else {
		minted = fpmath.MulDiv(usdAfterFee, p.ShareSupply, tvl)
	}
	if minted == 0 {
		return nil, ErrDepositTooSmall
	}

	ap.Balance += amount
	ap.FeeBalance += feeAmount
	p.ShareSupply += minted
	p.lastDepositTime[userID] = now

	return &DepositResult{
		SharesMinted: minted,
		FeeAmount:    feeAmount,
		FeeBps:       feeBps,
		USDValue:     usdValue,
	}, nil
}

// WithdrawResult reports the outcome of a provider withdrawal.
type WithdrawResult struct {
	AssetAmount  uint64 // paid out, asset units
	FeeAmount    uint64 // asset units, retained as FeeBalance
	FeeBps       uint64
	SharesBurned uint64
}

// Withdraw burns shareAmount of MKLP for a pro-rata USD claim on TVL,
// charges the dynamic fee, and pays out in the requested asset. The claim
// is valued on the min-side TVL and converted at the max-side asset price.
// A claim the vault cannot cover is a hard failure, never a partial fill.
func (p *Pool) Withdraw(userID uuid.UUID, asset string, shareAmount uint64, now int64) (*WithdrawResult, error) {
	ap, ok := p.assets[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if shareAmount > p.ShareSupply || p.ShareSupply == 0 {
		return nil, ErrInsufficientShare
	}

	last, deposited := p.lastDepositTime[userID]
	if deposited && now-last < p.WithdrawTimeLimit {
		return nil, ErrWithdrawTimeLimit
	}

	tvl, err := p.VaultsTVL(false)
	if err != nil {
		return nil, err
	}
	usdClaim := fpmath.MulDiv(tvl, shareAmount, p.ShareSupply)

	feeBps := p.feeBasisPoints(ap, usdClaim, false, tvl)
	usdAfterFee := fpmath.MulDiv(usdClaim, basisPointsDivisor-feeBps, basisPointsDivisor)

	price, ok := p.oracle.Read(ap.PriceKey, true)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	assetGross, err := fpmath.DivideWithDecimals(usdClaim, TVLDecimals, price, TVLDecimals, ap.Decimals)
	if err != nil {
		return nil, err
	}
	assetOut, err := fpmath.DivideWithDecimals(usdAfterFee, TVLDecimals, price, TVLDecimals, ap.Decimals)
	if err != nil {
		return nil, err
	}

	if assetGross > ap.Available() {
		return nil, fmt.Errorf("%w: %s need=%d have=%d", ErrInsufficientPool, asset, assetGross, ap.Available())
	}

	feeAmount := assetGross - assetOut

	ap.Balance -= assetOut
	ap.FeeBalance += feeAmount
	p.ShareSupply -= shareAmount

	return &WithdrawResult{
		AssetAmount:  assetOut,
		FeeAmount:    feeAmount,
		FeeBps:       feeBps,
		SharesBurned: shareAmount,
	}, nil
}

// PnLDepositToLP moves trade settlement funds into a vault without minting
// shares. Trading settlement path only.
func (p *Pool) PnLDepositToLP(cap *SettleCapability, asset string, amount uint64) error {
	if cap == nil || cap.pool != p {
		return ErrBadCapability
	}
	ap, ok := p.assets[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	ap.Balance += amount
	return nil
}

// PnLWithdrawFromLP pays trader profit out of a vault without burning
// shares. A payout the vault cannot cover is a hard failure.
func (p *Pool) PnLWithdrawFromLP(cap *SettleCapability, asset string, amount uint64) error {
	if cap == nil || cap.pool != p {
		return ErrBadCapability
	}
	ap, ok := p.assets[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if amount > ap.Available() {
		return fmt.Errorf("%w: %s need=%d have=%d", ErrInsufficientPool, asset, amount, ap.Available())
	}
	ap.Balance -= amount
	return nil
}

// DrainFees moves a vault's collected fees out of the pool ledger and
// returns the amount, for distribution to stakers.
func (p *Pool) DrainFees(cap *SettleCapability, asset string) (uint64, error) {
	if cap == nil || cap.pool != p {
		return 0, ErrBadCapability
	}
	ap, ok := p.assets[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	fees := ap.FeeBalance
	if fees > ap.Balance {
		fees = ap.Balance
	}
	ap.Balance -= fees
	ap.FeeBalance = 0
	return fees, nil
}

// LastDepositTime returns a user's deposit cooldown anchor.
func (p *Pool) LastDepositTime(userID uuid.UUID) (int64, bool) {
	t, ok := p.lastDepositTime[userID]
	return t, ok
}

// === Snapshot support ===

// GetAllAssetPools returns every vault in registration order.
func (p *Pool) GetAllAssetPools() []*AssetPool {
	result := make([]*AssetPool, 0, len(p.assetOrder))
	for _, asset := range p.assetOrder {
		result = append(result, p.assets[asset])
	}
	return result
}

// GetAllDepositTimes returns every cooldown anchor.
func (p *Pool) GetAllDepositTimes() map[uuid.UUID]int64 {
	result := make(map[uuid.UUID]int64, len(p.lastDepositTime))
	for k, v := range p.lastDepositTime {
		result[k] = v
	}
	return result
}

// RestoreDepositTime reinstalls a cooldown anchor (snapshot restore).
func (p *Pool) RestoreDepositTime(userID uuid.UUID, t int64) {
	p.lastDepositTime[userID] = t
}
