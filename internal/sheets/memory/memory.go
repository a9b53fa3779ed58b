package memory

import (
	"context"
	"fmt"
	"sync"

	"deptfunds/internal/core"
	ports "deptfunds/internal/sheets"
)

// Entry is one appended ledger row.
type Entry struct {
	Event string
	Row   core.LedgerRow
}

// Store is an in-process LedgerWriter used when no spreadsheet is configured
// and in tests.
type Store struct {
	mu    sync.Mutex
	items []Entry
}

var _ ports.LedgerWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendLedgerRow stores the row and returns a synthetic row reference.
func (s *Store) AppendLedgerRow(_ context.Context, event string, row core.LedgerRow) (string, error) {
	if row.TransactionID == "" {
		return "", fmt.Errorf("ledger row without transaction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, Entry{Event: event, Row: row})
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Entries returns a copy of everything appended so far.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.items...)
}
