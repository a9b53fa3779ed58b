package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"deptfunds/internal/core"
)

// AllocationSyncKey identifies the ledger entry of an allocation.
func AllocationSyncKey(id int64) string {
	return "alloc:" + strconv.FormatInt(id, 10)
}

// TransactionSyncKey identifies the ledger entry of a bill in one status; a
// decided bill gets a second entry next to its submission.
func TransactionSyncKey(id string, status core.Status) string {
	return "tx:" + id + ":" + string(status)
}

// PendingAllocation is an allocation whose ledger entry was never mirrored.
type PendingAllocation struct {
	DepartmentID string
	Allocation   core.Allocation
}

func (q *Queries) IsLedgerSynced(ctx context.Context, key string) (bool, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_sync WHERE sync_key = ?`, key).Scan(&n); err != nil {
		return false, fmt.Errorf("check ledger sync: %w", err)
	}
	return n > 0, nil
}

// MarkLedgerSynced records a mirrored entry. Marking twice keeps the first ref.
func (q *Queries) MarkLedgerSynced(ctx context.Context, key, ref string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO ledger_sync (sync_key, sheets_ref, synced_at) VALUES (?, ?, ?) ON CONFLICT(sync_key) DO NOTHING`,
		key, ref, millis(at))
	if err != nil {
		return fmt.Errorf("mark ledger synced: %w", err)
	}
	return nil
}

// PendingLedgerAllocations lists allocations without a mirrored entry, oldest first.
func (q *Queries) PendingLedgerAllocations(ctx context.Context, limit int) ([]PendingAllocation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+allocationColumns+`, department_id FROM fund_allocations a
		  WHERE NOT EXISTS (SELECT 1 FROM ledger_sync s WHERE s.sync_key = 'alloc:' || a.id)
		  ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending allocations: %w", err)
	}
	defer rows.Close()

	var out []PendingAllocation
	for rows.Next() {
		var p PendingAllocation
		if p.Allocation, err = scanAllocation(rows, &p.DepartmentID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PendingLedgerTransactions lists bills whose current status has no mirrored
// entry, oldest first.
func (q *Queries) PendingLedgerTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t
		  WHERE NOT EXISTS (SELECT 1 FROM ledger_sync s WHERE s.sync_key = 'tx:' || t.id || ':' || t.status)
		  ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
