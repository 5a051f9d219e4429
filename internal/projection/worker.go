package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"PerpCore/internal/bank"
)

// ProjectionOutput carries the journal-level view a projection needs.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence  int64
	EventType string
	MarketID  *string
	Journals  []JournalEntry
	Timestamp int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// ProjectionWorker updates read-model tables from processed events.
// The projection channel is non-blocking with drop: if this worker falls
// behind, projections can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	activity  *ActivityProjection
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		activity:  NewActivityProjection(4096),
	}
}

// Activity exposes the in-memory recent-activity view for the query API.
func (pw *ProjectionWorker) Activity() *ActivityProjection {
	return pw.activity
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			pw.activity.Record(output)

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.Journals {
		if err := pw.updateBalanceProjection(ctx, tx, output.Sequence, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if output.MarketID != nil {
		if err := pw.updateMarketActivity(ctx, tx, output); err != nil {
			return fmt.Errorf("market activity projection: %w", err)
		}
	}

	// Projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, seq int64, j JournalEntry) error {
	// Journal semantics: amount moves from the credit account to the debit
	// account, so debit gains and credit loses.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

// updateMarketActivity maintains per-market cumulative counters: event count,
// trade fees collected, funding and rollover settled.
func (pw *ProjectionWorker) updateMarketActivity(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	var fees, funding int64
	for _, j := range output.Journals {
		switch bank.JournalType(j.JournalType) {
		case bank.JournalTypeTradeFee:
			fees += j.Amount
		case bank.JournalTypeFundingSettle, bank.JournalTypeRolloverFee:
			funding += j.Amount
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.market_activity
			(market_id, event_count, fees_collected, funding_settled, last_sequence, updated_at)
		VALUES ($1, 1, $2, $3, $4, NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			event_count     = projections.market_activity.event_count + 1,
			fees_collected  = projections.market_activity.fees_collected + $2,
			funding_settled = projections.market_activity.funding_settled + $3,
			last_sequence   = $4,
			updated_at      = NOW()
	`, *output.MarketID, fees, funding, output.Sequence)
	return err
}

// RebuildProjections rebuilds all projection tables from the event log.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.market_activity`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debit side gains
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Credit side loses
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.market_activity
			(market_id, event_count, fees_collected, funding_settled, last_sequence, updated_at)
		SELECT
			e.market_id,
			COUNT(DISTINCT e.sequence),
			COALESCE(SUM(j.amount) FILTER (WHERE j.journal_type = $1), 0),
			COALESCE(SUM(j.amount) FILTER (WHERE j.journal_type IN ($2, $3)), 0),
			MAX(e.sequence),
			NOW()
		FROM event_log.events e
		LEFT JOIN event_log.journal j ON j.sequence = e.sequence
		WHERE e.market_id IS NOT NULL
		GROUP BY e.market_id
	`, int32(bank.JournalTypeTradeFee), int32(bank.JournalTypeFundingSettle), int32(bank.JournalTypeRolloverFee))
	if err != nil {
		return fmt.Errorf("rebuild market activity: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
