package projection

import (
	"strings"
	"sync"
)

// ActivityEntry is one journal-level ledger movement, flattened for display.
type ActivityEntry struct {
	Sequence      int64
	EventType     string
	MarketID      string // empty for global events
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
	Timestamp     int64
}

// ActivityProjection keeps a bounded in-memory ring of recent ledger
// movements for the query API. It is best-effort: entries dropped on the
// projection channel simply never appear here.
type ActivityProjection struct {
	mu      sync.RWMutex
	entries []ActivityEntry
	next    int
	full    bool
}

func NewActivityProjection(capacity int) *ActivityProjection {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ActivityProjection{
		entries: make([]ActivityEntry, capacity),
	}
}

// Record appends every journal of one processed event.
func (p *ActivityProjection) Record(output ProjectionOutput) {
	marketID := ""
	if output.MarketID != nil {
		marketID = *output.MarketID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, j := range output.Journals {
		p.entries[p.next] = ActivityEntry{
			Sequence:      output.Sequence,
			EventType:     output.EventType,
			MarketID:      marketID,
			DebitAccount:  j.DebitAccount,
			CreditAccount: j.CreditAccount,
			AssetID:       j.AssetID,
			Amount:        j.Amount,
			JournalType:   j.JournalType,
			Timestamp:     output.Timestamp,
		}
		p.next = (p.next + 1) % len(p.entries)
		if p.next == 0 {
			p.full = true
		}
	}
}

// QueryByUser returns the most recent entries touching a user's accounts,
// newest first. The userID is matched against the account path prefix
// "user:<uuid>:".
func (p *ActivityProjection) QueryByUser(userID string, limit int) []ActivityEntry {
	prefix := "user:" + userID + ":"
	return p.query(limit, func(e ActivityEntry) bool {
		return strings.HasPrefix(e.DebitAccount, prefix) || strings.HasPrefix(e.CreditAccount, prefix)
	})
}

// QueryByMarket returns the most recent entries for one market, newest first.
func (p *ActivityProjection) QueryByMarket(marketID string, limit int) []ActivityEntry {
	return p.query(limit, func(e ActivityEntry) bool {
		return e.MarketID == marketID
	})
}

func (p *ActivityProjection) query(limit int, match func(ActivityEntry) bool) []ActivityEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	size := p.next
	if p.full {
		size = len(p.entries)
	}

	result := make([]ActivityEntry, 0, limit)
	for i := 1; i <= size && len(result) < limit; i++ {
		idx := (p.next - i + len(p.entries)) % len(p.entries)
		if match(p.entries[idx]) {
			result = append(result, p.entries[idx])
		}
	}
	return result
}
