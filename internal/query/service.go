package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"PerpCore/internal/projection"
)

// QueryService provides read-only access to projection tables.
// Queries are served via gRPC and HTTP/JSON (gRPC-Gateway), reading from
// PostgreSQL projection tables plus the in-memory recent-activity view.
// All responses include as_of_sequence for freshness semantics.
type QueryService struct {
	db       *sql.DB
	activity *projection.ActivityProjection
}

func NewQueryService(db *sql.DB, activity *projection.ActivityProjection) *QueryService {
	return &QueryService{db: db, activity: activity}
}

// GetBalance returns a user's balance across sub-accounts for one asset.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	wallet, err := qs.getProjectedBalance(ctx, fmt.Sprintf("user:%s:wallet:%s", userID, asset))
	if err != nil {
		return nil, err
	}

	frozen, err := qs.getProjectedBalance(ctx, fmt.Sprintf("user:%s:frozen:%s", userID, asset))
	if err != nil {
		return nil, err
	}

	collateral, err := qs.getProjectedBalance(ctx, fmt.Sprintf("user:%s:collateral:%s", userID, asset))
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		UserID:            userID,
		Asset:             asset,
		WalletBalance:     wallet,
		FrozenBalance:     frozen,
		CollateralBalance: collateral,
		TotalBalance:      wallet + frozen + collateral,
		AsOfSequence:      asOfSeq,
	}, nil
}

// GetMarketActivity returns cumulative counters for one market.
func (qs *QueryService) GetMarketActivity(
	ctx context.Context,
	marketID string,
) (*MarketActivityResponse, error) {
	resp := &MarketActivityResponse{MarketID: marketID}

	err := qs.db.QueryRowContext(ctx, `
		SELECT event_count, fees_collected, funding_settled, last_sequence
		FROM projections.market_activity
		WHERE market_id = $1
	`, marketID).Scan(&resp.EventCount, &resp.FeesCollected, &resp.FundingSettled, &resp.AsOfSequence)
	if err == sql.ErrNoRows {
		return resp, nil // Unknown market — zero counters
	}
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// GetRecentActivity returns the newest ledger movements touching a user,
// served from the in-memory projection ring.
func (qs *QueryService) GetRecentActivity(userID uuid.UUID, limit int) []projection.ActivityEntry {
	if qs.activity == nil {
		return nil
	}
	return qs.activity.QueryByUser(userID.String(), limit)
}

// GetJournalHistory returns journal entries for a user with pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the global zero-sum
// balance invariant from the durable log and projections.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Every journal moves value between two accounts, so balances must sum
	// to zero per asset across the whole ledger.
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
