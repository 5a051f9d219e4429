package persistence

import (
	"PerpCore/internal/bank"
	"PerpCore/internal/event"
)

// RowsFromEnvelope converts a core output envelope and its journal batch
// into storage rows. The orchestrator bridges the core's output channel to
// the persistence worker through this function.
func RowsFromEnvelope(env *event.EventEnvelope, batch *bank.Batch) (EventRow, []JournalRow) {
	row := EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		MarketID:       env.MarketID,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
		SourceSequence: env.SourceSequence,
	}

	var journals []JournalRow
	if batch != nil {
		journals = make([]JournalRow, 0, len(batch.Journals))
		for _, j := range batch.Journals {
			journals = append(journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				EventRef:      j.EventRef,
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				AssetID:       uint16(j.AssetID),
				Amount:        j.Amount,
				JournalType:   int32(j.JournalType),
				Timestamp:     j.Timestamp,
			})
		}
	}

	return row, journals
}
