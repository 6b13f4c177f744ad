// Package ledger is the append-only record of every monetary movement. It is
// the source of truth for balances; the per-account balance map is a
// projection maintained under the same lock as every append.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
)

// Ledger holds committed entries and the balance projection derived from them.
type Ledger struct {
	mu        sync.RWMutex
	entries   []models.LedgerEntry
	byAccount map[models.AccountID][]int
	balances  map[models.AccountID]models.Amount
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		byAccount: make(map[models.AccountID][]int),
		balances:  make(map[models.AccountID]models.Amount),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ValidateBatch checks a batch before commit: it must be non-empty, carry no
// zero or unaddressed entries, and its non-boundary entries must net to zero.
func ValidateBatch(batch []models.LedgerEntry) error {
	if len(batch) == 0 {
		return apperrors.New(apperrors.KindInvalidAmount, nil, "empty ledger batch")
	}

	var net models.Amount
	for i, e := range batch {
		if e.AccountID == "" {
			return apperrors.New(apperrors.KindInvalidAmount, apperrors.Details{"index": i}, "entry has no account")
		}
		if e.Amount == 0 {
			return apperrors.New(apperrors.KindInvalidAmount, apperrors.Details{"index": i, "kind": e.Kind}, "entry amount is zero")
		}
		if !e.Kind.IsBoundary() {
			net += e.Amount
		}
	}

	if net != 0 {
		return apperrors.New(apperrors.KindImbalancedBatch,
			apperrors.Details{"net": int64(net), "entries": len(batch)},
			"non-boundary entries do not net to zero")
	}
	return nil
}

// Append atomically commits a batch or none of it. IDs, sequence numbers,
// the operation id and the timestamp are assigned here. A batch that would
// leave any account negative is refused.
func (l *Ledger) Append(operationID string, batch []models.LedgerEntry) ([]models.LedgerEntry, error) {
	if err := ValidateBatch(batch); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	deltas := make(map[models.AccountID]models.Amount, len(batch))
	for _, e := range batch {
		deltas[e.AccountID] += e.Amount
	}
	for id, d := range deltas {
		if after := l.balances[id] + d; after < 0 {
			return nil, apperrors.New(apperrors.KindInsufficientBalance,
				apperrors.Details{"account": id, "balance": l.balances[id].String(), "required": (-d).String()},
				"batch would overdraw account")
		}
	}

	ts := l.now()
	committed := make([]models.LedgerEntry, 0, len(batch))
	for _, e := range batch {
		e.ID = uuid.NewString()
		e.Sequence = uint64(len(l.entries)) + 1
		e.OperationID = operationID
		e.Timestamp = ts
		e.Metadata = copyMetadata(e.Metadata)

		l.byAccount[e.AccountID] = append(l.byAccount[e.AccountID], len(l.entries))
		l.entries = append(l.entries, e)
		committed = append(committed, e)
	}
	for id, d := range deltas {
		l.balances[id] += d
	}

	return committed, nil
}

// BalanceOf returns the sum of all entries against the account.
func (l *Ledger) BalanceOf(id models.AccountID) models.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[id]
}

// Len returns the number of committed entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// EntriesAfter returns up to limit entries with a sequence greater than seq,
// in commit order. A limit <= 0 returns everything after seq.
func (l *Ledger) EntriesAfter(seq uint64, limit int) []models.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq >= uint64(len(l.entries)) {
		return nil
	}
	tail := l.entries[seq:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}

	out := make([]models.LedgerEntry, len(tail))
	for i, e := range tail {
		e.Metadata = copyMetadata(e.Metadata)
		out[i] = e
	}
	return out
}

// EntriesFor returns every entry posted against the account, oldest first.
func (l *Ledger) EntriesFor(id models.AccountID) []models.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := l.byAccount[id]
	out := make([]models.LedgerEntry, 0, len(idx))
	for _, i := range idx {
		e := l.entries[i]
		e.Metadata = copyMetadata(e.Metadata)
		out = append(out, e)
	}
	return out
}

// Replay rebuilds balances from an ordered entry stream starting at empty state.
func Replay(entries []models.LedgerEntry) map[models.AccountID]models.Amount {
	balances := make(map[models.AccountID]models.Amount)
	for _, e := range entries {
		balances[e.AccountID] += e.Amount
	}
	return balances
}

// Net sums the amounts of the non-boundary entries.
func Net(entries []models.LedgerEntry) models.Amount {
	var net models.Amount
	for _, e := range entries {
		if !e.Kind.IsBoundary() {
			net += e.Amount
		}
	}
	return net
}

func copyMetadata(m models.Metadata) models.Metadata {
	if m == nil {
		return nil
	}
	out := make(models.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
