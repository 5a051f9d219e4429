package core

import (
	"fmt"

	"PerpCore/internal/bank"
	"PerpCore/internal/event"
	fpmath "PerpCore/internal/math"
	"PerpCore/internal/staking"
	"PerpCore/internal/trading"

	"github.com/google/uuid"
)

// appendIf skips batches the generator elided (all legs were zero).
func appendIf(batches []*bank.Batch, b *bank.Batch) []*bank.Batch {
	if b != nil {
		return append(batches, b)
	}
	return batches
}

// ensurePoolCovers rejects a payout the house pool cannot fund. Checked
// before any state mutation so a rejected event leaves no trace.
func (c *DeterministicCore) ensurePoolCovers(amount uint64) error {
	ap, ok := c.housePool.GetAssetPool(QuoteAsset)
	if !ok {
		return fmt.Errorf("house pool has no %s vault", QuoteAsset)
	}
	if ap.Available() < amount {
		return fmt.Errorf("house pool cannot cover payout: need=%d have=%d", amount, ap.Available())
	}
	return nil
}

// settleAccruedFees books outstanding rollover and funding against a
// position, mirroring every vault-side move into the house pool.
func (c *DeterministicCore) settleAccruedFees(
	userID uuid.UUID, ref string,
	rollover, funding uint64, fundingProfit bool,
	ts int64,
) ([]*bank.Batch, error) {
	batches := make([]*bank.Batch, 0, 2)

	if rollover > 0 {
		b, err := c.journalGen.GenerateRolloverFee(userID, ref, int64(rollover), ts)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, b)
		if err := c.housePool.PnLDepositToLP(c.settleCap, QuoteAsset, rollover); err != nil {
			return nil, err
		}
	}

	if funding > 0 {
		b, err := c.journalGen.GenerateFundingSettle(userID, ref, int64(funding), fundingProfit, ts)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, b)
		if fundingProfit {
			if err := c.housePool.PnLWithdrawFromLP(c.settleCap, QuoteAsset, funding); err != nil {
				return nil, err
			}
		} else {
			if err := c.housePool.PnLDepositToLP(c.settleCap, QuoteAsset, funding); err != nil {
				return nil, err
			}
		}
	}

	return batches, nil
}

// collectTradeFee routes a trading fee to the protocol fee account and
// streams the staker share into the ve reward pool.
func (c *DeterministicCore) collectTradeFee(
	userID uuid.UUID, ref string, fee uint64, now, ts int64,
) ([]*bank.Batch, error) {
	if fee == 0 {
		return nil, nil
	}

	batches := make([]*bank.Batch, 0, 2)

	b, err := c.journalGen.GenerateTradeFee(userID, ref, int64(fee), ts)
	if err != nil {
		return nil, err
	}
	batches = appendIf(batches, b)

	share := fpmath.MulDiv(fee, c.cfg.StakerFeeShareBps, basisPointsDivisor)
	if share > 0 {
		fund, err := c.journalGen.GenerateRewardFund(VePool, ref, bank.AssetUSDC, int64(share), true, ts)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, fund)
		c.feeDist.DepositFee(share, now)
	}

	return batches, nil
}

func (c *DeterministicCore) handleTradeExecuted(evt *event.TradeExecuted) ([]*bank.Batch, error) {
	params, ok := c.fundingManager.GetParams(evt.Market)
	if !ok {
		return nil, fmt.Errorf("no params for market %s", evt.Market)
	}
	if evt.SizeDelta == 0 {
		return nil, fmt.Errorf("trade rejected: zero size")
	}

	now := evt.Timestamp.Unix()
	ts := evt.Timestamp.UnixMicro()
	ref := evt.IdempotencyKey()

	// Accrue the market up to the trade timestamp before anything settles.
	if err := c.fundingManager.Accrue(evt.Market, now); err != nil {
		return nil, err
	}
	state, _ := c.fundingManager.GetState(evt.Market)

	execPrice := trading.CalculatePriceImpact(
		evt.OraclePrice, evt.SizeDelta, evt.IsLong, evt.IsIncrease,
		state.LongOpenInterest, state.ShortOpenInterest, params.SkewFactor,
	)
	tradeFee := trading.CalculateMakerTakerFee(
		evt.SizeDelta, evt.IsLong, evt.IsIncrease,
		state.LongOpenInterest, state.ShortOpenInterest,
		params.MakerFeeRate, params.TakerFeeRate,
	)

	if evt.IsIncrease {
		return c.handleIncrease(evt, state, execPrice, tradeFee, now, ts, ref)
	}
	return c.handleDecrease(evt, state, execPrice, tradeFee, now, ts, ref)
}

func (c *DeterministicCore) handleIncrease(
	evt *event.TradeExecuted, state *trading.FundingState,
	execPrice, tradeFee uint64, now, ts int64, ref string,
) ([]*bank.Batch, error) {
	pos := c.positionManager.GetPosition(evt.UserID, evt.Market)
	if pos != nil && pos.IsLong != evt.IsLong {
		return nil, fmt.Errorf("trade rejected: position side mismatch in %s", evt.Market)
	}

	// Preview outstanding accruals so the whole event can be rejected
	// before any mutation.
	var rollover, funding uint64
	var fundingProfit bool
	if pos != nil {
		rollover, funding, fundingProfit = pos.AccruedFees(state)
	}

	owed := int64(evt.CollateralDelta) + int64(tradeFee) + int64(rollover)
	if !fundingProfit {
		owed += int64(funding)
	}
	if err := c.balanceTracker.ValidateSufficientWallet(evt.UserID, bank.AssetUSDC, owed); err != nil {
		return nil, fmt.Errorf("trade rejected: %w", err)
	}
	if fundingProfit && funding > 0 {
		if err := c.ensurePoolCovers(funding); err != nil {
			return nil, fmt.Errorf("trade rejected: %w", err)
		}
	}

	batches := make([]*bank.Batch, 0, 4)

	post, err := c.journalGen.GenerateCollateralPost(evt.UserID, ref, int64(evt.CollateralDelta), ts)
	if err != nil {
		return nil, err
	}
	batches = appendIf(batches, post)

	res := c.positionManager.Increase(
		evt.UserID, evt.Market, evt.IsLong,
		evt.SizeDelta, evt.CollateralDelta, execPrice, state,
	)
	if err := c.fundingManager.AddOpenInterest(evt.Market, evt.IsLong, evt.SizeDelta); err != nil {
		return nil, err
	}

	feeBatches, err := c.settleAccruedFees(evt.UserID, ref, res.Rollover, res.Funding, res.FundingIsProfit, ts)
	if err != nil {
		return nil, err
	}
	batches = append(batches, feeBatches...)

	tradeFeeBatches, err := c.collectTradeFee(evt.UserID, ref, tradeFee, now, ts)
	if err != nil {
		return nil, err
	}
	batches = append(batches, tradeFeeBatches...)

	return batches, nil
}

func (c *DeterministicCore) handleDecrease(
	evt *event.TradeExecuted, state *trading.FundingState,
	execPrice, tradeFee uint64, now, ts int64, ref string,
) ([]*bank.Batch, error) {
	pos := c.positionManager.GetPosition(evt.UserID, evt.Market)
	if pos == nil || pos.IsEmpty() {
		return nil, fmt.Errorf("no open position for user %s in %s", evt.UserID, evt.Market)
	}
	isLong := pos.IsLong
	closeSize := fpmath.Min(evt.SizeDelta, pos.Size)

	// Preview the full settlement before mutating anything.
	rollover, funding, fundingProfit := pos.AccruedFees(state)
	pnl, isProfit := trading.CalculatePnLWithoutFee(pos.AvgEntryPrice, execPrice, closeSize, isLong)

	partial, partialPos := fpmath.SignedAdd(pnl, isProfit, funding, fundingProfit)
	net, traderGains := fpmath.SignedSub(partial, partialPos, rollover, true)
	depositToLP := !traderGains

	releasePreview := pos.Collateral
	if closeSize < pos.Size {
		releasePreview = fpmath.MulDiv(pos.Collateral, closeSize, pos.Size)
	}

	if traderGains && net > 0 {
		if err := c.ensurePoolCovers(net); err != nil {
			return nil, fmt.Errorf("trade rejected: %w", err)
		}
	}

	projected := c.balanceTracker.GetUserWallet(evt.UserID, bank.AssetUSDC) + int64(releasePreview)
	if traderGains {
		projected += int64(net)
	} else {
		projected -= int64(net)
	}
	projected -= int64(tradeFee)
	if projected < 0 {
		return nil, fmt.Errorf("trade rejected: settlement would overdraw wallet by %d", -projected)
	}

	res := c.positionManager.Decrease(evt.UserID, evt.Market, closeSize, execPrice, state)
	if err := c.fundingManager.ReduceOpenInterest(evt.Market, isLong, closeSize); err != nil {
		return nil, err
	}

	if net > 0 {
		if depositToLP {
			if err := c.housePool.PnLDepositToLP(c.settleCap, QuoteAsset, net); err != nil {
				return nil, err
			}
		} else {
			if err := c.housePool.PnLWithdrawFromLP(c.settleCap, QuoteAsset, net); err != nil {
				return nil, err
			}
		}
	}

	batches := make([]*bank.Batch, 0, 3)

	settle, err := c.journalGen.GenerateTradeSettle(
		evt.UserID, ref, int64(res.CollateralReleased), int64(net), depositToLP, ts,
	)
	if err != nil {
		return nil, err
	}
	batches = appendIf(batches, settle)

	tradeFeeBatches, err := c.collectTradeFee(evt.UserID, ref, tradeFee, now, ts)
	if err != nil {
		return nil, err
	}
	batches = append(batches, tradeFeeBatches...)

	return batches, nil
}

func (c *DeterministicCore) handleFundsDeposit(evt *event.FundsDeposit) ([]*bank.Batch, error) {
	assetID, ok := bank.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	b, err := c.journalGen.GenerateDeposit(evt.UserID, evt.IdempotencyKey(), assetID, int64(evt.Amount), evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}
	return appendIf(nil, b), nil
}

func (c *DeterministicCore) handleFundsWithdraw(evt *event.FundsWithdraw) ([]*bank.Batch, error) {
	assetID, ok := bank.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	b, err := c.journalGen.GenerateWithdrawal(evt.UserID, evt.IdempotencyKey(), assetID, int64(evt.Amount), evt.Timestamp.UnixMicro())
	if err != nil {
		return nil, err
	}
	return appendIf(nil, b), nil
}

func (c *DeterministicCore) handleLiquidityDeposit(evt *event.LiquidityDeposit) ([]*bank.Batch, error) {
	assetID, ok := bank.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	// Reject before the pool mints anything.
	if err := c.balanceTracker.ValidateSufficientWallet(evt.UserID, assetID, int64(evt.Amount)); err != nil {
		return nil, fmt.Errorf("liquidity deposit rejected: %w", err)
	}

	res, err := c.housePool.Deposit(evt.UserID, evt.Asset, evt.Amount, evt.Timestamp.Unix())
	if err != nil {
		return nil, err
	}

	b, err := c.journalGen.GenerateLiquidityDeposit(
		evt.UserID, evt.IdempotencyKey(), assetID,
		int64(evt.Amount), int64(res.FeeAmount), int64(res.SharesMinted),
		evt.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}
	return appendIf(nil, b), nil
}

func (c *DeterministicCore) handleLiquidityWithdraw(evt *event.LiquidityWithdraw) ([]*bank.Batch, error) {
	assetID, ok := bank.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	if err := c.balanceTracker.ValidateSufficientWallet(evt.UserID, bank.AssetMKLP, int64(evt.ShareAmount)); err != nil {
		return nil, fmt.Errorf("liquidity withdraw rejected: %w", err)
	}

	res, err := c.housePool.Withdraw(evt.UserID, evt.Asset, evt.ShareAmount, evt.Timestamp.Unix())
	if err != nil {
		return nil, err
	}

	gross := res.AssetAmount + res.FeeAmount
	b, err := c.journalGen.GenerateLiquidityWithdraw(
		evt.UserID, evt.IdempotencyKey(), assetID,
		int64(res.SharesBurned), int64(gross), int64(res.FeeAmount),
		evt.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}
	return appendIf(nil, b), nil
}

// harvestOnStakeChange adjusts both reward distributors by the staked
// delta and pays out any pending harvest. Fee rewards are paid from the ve
// pool account; emission rewards are minted through the escrowed-mint
// account at harvest time.
func (c *DeterministicCore) harvestOnStakeChange(
	userID uuid.UUID, ref string, delta uint64, increase bool, now, ts int64,
) ([]*bank.Batch, error) {
	var feeHarvest, emitHarvest uint64
	var err error

	if increase {
		feeHarvest, err = c.feeDist.Stake(VePool, userID, delta, now)
	} else {
		feeHarvest, err = c.feeDist.Unstake(VePool, userID, delta, now)
	}
	if err != nil {
		return nil, err
	}

	if increase {
		emitHarvest, err = c.emissionDist.Stake(VePool, userID, delta, now)
	} else {
		emitHarvest, err = c.emissionDist.Unstake(VePool, userID, delta, now)
	}
	if err != nil {
		return nil, err
	}

	batches := make([]*bank.Batch, 0, 3)

	if feeHarvest > 0 {
		b, err := c.journalGen.GenerateRewardClaim(
			userID, ref,
			bank.NewSystemAccountKey(VePool, bank.SubTypeSystemRewardPool, bank.AssetUSDC),
			bank.AssetUSDC, int64(feeHarvest), ts,
		)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, b)
	}

	if emitHarvest > 0 {
		fund, err := c.journalGen.GenerateRewardFund(VePool, ref, bank.AssetEsMKL, int64(emitHarvest), false, ts)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, fund)

		claim, err := c.journalGen.GenerateRewardClaim(
			userID, ref,
			bank.NewSystemAccountKey(VePool, bank.SubTypeSystemRewardPool, bank.AssetEsMKL),
			bank.AssetEsMKL, int64(emitHarvest), ts,
		)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, claim)
	}

	return batches, nil
}

func stakeAssetID(asset string) (bank.AssetID, error) {
	assetID, ok := bank.GetAssetID(asset)
	if !ok {
		return 0, fmt.Errorf("unknown asset: %s", asset)
	}
	switch assetID {
	case bank.AssetMKL, bank.AssetEsMKL, bank.AssetPreMKL:
		return assetID, nil
	default:
		return 0, fmt.Errorf("asset %s cannot be locked", asset)
	}
}

func (c *DeterministicCore) handleStakeLock(evt *event.StakeLock) ([]*bank.Batch, error) {
	assetID, err := stakeAssetID(evt.Asset)
	if err != nil {
		return nil, err
	}

	now := evt.Timestamp.Unix()
	ts := evt.Timestamp.UnixMicro()
	ref := evt.IdempotencyKey()

	if err := c.balanceTracker.ValidateSufficientWallet(evt.UserID, assetID, int64(evt.Amount)); err != nil {
		return nil, fmt.Errorf("lock rejected: %w", err)
	}

	if _, err := c.stakingManager.Lock(evt.UserID, assetID, evt.Amount, evt.UnlockTime, now); err != nil {
		return nil, err
	}

	batches := make([]*bank.Batch, 0, 3)

	b, err := c.journalGen.GenerateStakeLock(evt.UserID, ref, assetID, int64(evt.Amount), ts)
	if err != nil {
		return nil, err
	}
	batches = appendIf(batches, b)

	harvest, err := c.harvestOnStakeChange(evt.UserID, ref, evt.Amount, true, now, ts)
	if err != nil {
		return nil, err
	}
	batches = append(batches, harvest...)

	return batches, nil
}

func (c *DeterministicCore) handleStakeIncrease(evt *event.StakeIncrease) ([]*bank.Batch, error) {
	assetID, err := stakeAssetID(evt.Asset)
	if err != nil {
		return nil, err
	}

	pos := c.stakingManager.GetPosition(evt.UserID)
	if pos == nil {
		return nil, staking.ErrNoPosition
	}
	wasPlaceholder := pos.IsPlaceholder
	placeholderBalance := pos.MKLBalance

	now := evt.Timestamp.Unix()
	ts := evt.Timestamp.UnixMicro()
	ref := evt.IdempotencyKey()

	if err := c.balanceTracker.ValidateSufficientWallet(evt.UserID, assetID, int64(evt.Amount)); err != nil {
		return nil, fmt.Errorf("lock increase rejected: %w", err)
	}

	newPos, err := c.stakingManager.IncreaseLock(evt.UserID, assetID, evt.Amount, evt.NewUnlockTime, now)
	if err != nil {
		return nil, err
	}

	batches := make([]*bank.Batch, 0, 4)

	// The extend touched a placeholder store after launch: rebook the
	// frozen balance as the real token.
	if wasPlaceholder && !newPos.IsPlaceholder && placeholderBalance > 0 {
		swap, err := c.journalGen.GenerateFrozenSwap(
			evt.UserID, ref, bank.AssetPreMKL, bank.AssetMKL, int64(placeholderBalance), ts,
		)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, swap)
	}

	if evt.Amount > 0 {
		b, err := c.journalGen.GenerateStakeLock(evt.UserID, ref, assetID, int64(evt.Amount), ts)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, b)
	}

	harvest, err := c.harvestOnStakeChange(evt.UserID, ref, evt.Amount, true, now, ts)
	if err != nil {
		return nil, err
	}
	batches = append(batches, harvest...)

	return batches, nil
}

func (c *DeterministicCore) handleStakeUnlock(evt *event.StakeUnlock) ([]*bank.Batch, error) {
	pos := c.stakingManager.GetPosition(evt.UserID)
	if pos == nil {
		return nil, staking.ErrNoPosition
	}
	wasPlaceholder := pos.IsPlaceholder

	now := evt.Timestamp.Unix()
	ts := evt.Timestamp.UnixMicro()
	ref := evt.IdempotencyKey()

	res, err := c.stakingManager.Unlock(evt.UserID, now)
	if err != nil {
		return nil, err
	}

	batches := make([]*bank.Batch, 0, 4)

	mklAsset := bank.AssetMKL
	if wasPlaceholder && !res.Swapped {
		// Not launched yet: the frozen store is still the placeholder.
		mklAsset = bank.AssetPreMKL
	}
	if res.Swapped && res.MKLAmount > 0 {
		swap, err := c.journalGen.GenerateFrozenSwap(
			evt.UserID, ref, bank.AssetPreMKL, bank.AssetMKL, int64(res.MKLAmount), ts,
		)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, swap)
	}

	if res.MKLAmount > 0 {
		b, err := c.journalGen.GenerateStakeUnlock(evt.UserID, ref, mklAsset, int64(res.MKLAmount), ts)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, b)
	}
	if res.EsMKLAmount > 0 {
		b, err := c.journalGen.GenerateStakeUnlock(evt.UserID, ref, bank.AssetEsMKL, int64(res.EsMKLAmount), ts)
		if err != nil {
			return nil, err
		}
		batches = appendIf(batches, b)
	}

	harvest, err := c.harvestOnStakeChange(evt.UserID, ref, res.MKLAmount+res.EsMKLAmount, false, now, ts)
	if err != nil {
		return nil, err
	}
	batches = append(batches, harvest...)

	return batches, nil
}

func (c *DeterministicCore) handlePriceUpdate(evt *event.PriceUpdate) ([]*bank.Batch, error) {
	err := c.priceOracle.Update(evt.PriceKey, evt.MinPrice, evt.MaxPrice, evt.PriceSequence, evt.PriceTimestamp)
	if err != nil {
		return nil, err
	}
	// State-only: no journals.
	return nil, nil
}

func (c *DeterministicCore) handleFundingTick(evt *event.FundingTick) ([]*bank.Batch, error) {
	if err := c.fundingManager.Accrue(evt.Market, evt.TickTimestamp); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *DeterministicCore) handleParamUpdate(evt *event.ParamUpdate) ([]*bank.Batch, error) {
	// Accrue under the outgoing parameters first so the update is never
	// retroactive.
	if _, ok := c.fundingManager.GetParams(evt.Market); ok {
		if err := c.fundingManager.Accrue(evt.Market, evt.Timestamp/1_000_000); err != nil {
			return nil, err
		}
	}

	err := c.fundingManager.SetParams(&trading.MarketParams{
		MarketID:             evt.Market,
		SkewFactor:           evt.SkewFactor,
		MaxFundingVelocity:   evt.MaxFundingVelocity,
		RolloverFeePerSecond: evt.RolloverFeePerSecond,
		MakerFeeRate:         evt.MakerFeeRate,
		TakerFeeRate:         evt.TakerFeeRate,
		EffectiveSeq:         evt.EffectiveSeq,
	})
	if err != nil {
		return nil, fmt.Errorf("param update rejected: %w", err)
	}
	return nil, nil
}

func (c *DeterministicCore) handleRewardRegister(evt *event.RewardRegister) ([]*bank.Batch, error) {
	epoch := staking.EpochStart(evt.EpochStartAt)

	if c.balanceTracker.GetFeeBalance(bank.AssetUSDC) < int64(evt.Amount) {
		return nil, fmt.Errorf("reward register rejected: fee account has %d, need %d",
			c.balanceTracker.GetFeeBalance(bank.AssetUSDC), evt.Amount)
	}

	c.protocolReward.Register(epoch, evt.Amount)

	b, err := c.journalGen.GenerateEpochRewardFund(
		uint64(epoch), evt.IdempotencyKey(), bank.AssetUSDC, int64(evt.Amount), evt.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}
	return appendIf(nil, b), nil
}

func (c *DeterministicCore) handleRewardClaim(evt *event.RewardClaim) ([]*bank.Batch, error) {
	epoch := staking.EpochStart(evt.EpochStartAt)

	amount, err := c.protocolReward.Claim(evt.UserID, epoch, evt.Timestamp.Unix())
	if err != nil {
		return nil, err
	}

	b, err := c.journalGen.GenerateRewardClaim(
		evt.UserID, evt.IdempotencyKey(),
		bank.NewEpochRewardKey(uint64(epoch), bank.AssetUSDC),
		bank.AssetUSDC, int64(amount), evt.Timestamp.UnixMicro(),
	)
	if err != nil {
		return nil, err
	}
	return appendIf(nil, b), nil
}
