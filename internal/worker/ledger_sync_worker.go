package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"deptfunds/internal/amqp"
	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
	"deptfunds/internal/sheets"
	"deptfunds/internal/storage"
)

// LedgerSyncWorker mirrors committed ledger entries from SQLite to the
// spreadsheet. Each entry is appended at most once; ledger_sync records
// what has been written.
type LedgerSyncWorker struct {
	storage   *storage.SQLiteRepository
	sheets    sheets.LedgerWriter
	batchSize int
	now       func() time.Time
}

func NewLedgerSyncWorker(storage *storage.SQLiteRepository, writer sheets.LedgerWriter, batchSize int) *LedgerSyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &LedgerSyncWorker{
		storage:   storage,
		sheets:    writer,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleLedgerEvent processes one event from AMQP. Rows that no longer exist
// are skipped; any other failure is returned so the event is redelivered.
func (w *LedgerSyncWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldEventKind, ev.Kind,
		applog.FieldDepartmentID, ev.DepartmentID,
		"ref", ev.Ref)

	var err error
	switch ev.Kind {
	case amqp.EventAllocation:
		err = w.handleAllocation(ctx, ev)
	case amqp.EventSubmission, amqp.EventDecision:
		var tx core.Transaction
		if tx, err = w.storage.GetTransaction(ctx, ev.Ref); err == nil {
			err = w.syncTransaction(ctx, tx)
		}
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Ledger event refers to a missing row, skipping",
			applog.FieldEventKind, ev.Kind,
			"ref", ev.Ref)
		return nil
	}
	return err
}

func (w *LedgerSyncWorker) handleAllocation(ctx context.Context, ev *amqp.LedgerEvent) error {
	id, err := strconv.ParseInt(ev.Ref, 10, 64)
	if err != nil {
		return core.NotFound("allocation ref %q is not an id", ev.Ref)
	}
	allocs, err := w.storage.ListAllocations(ctx, ev.DepartmentID)
	if err != nil {
		return fmt.Errorf("list allocations: %w", err)
	}
	for _, a := range allocs {
		if a.ID == id {
			return w.syncAllocation(ctx, ev.DepartmentID, a)
		}
	}
	return core.NotFound("allocation %d not found", id)
}

// ProcessPending mirrors up to one batch of allocations and one batch of bill
// states that were never synced. It backs up AMQP when events were lost.
func (w *LedgerSyncWorker) ProcessPending(ctx context.Context) (int, error) {
	allocs, err := w.storage.PendingLedgerAllocations(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending allocations: %w", err)
	}
	txs, err := w.storage.PendingLedgerTransactions(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(allocs) == 0 && len(txs) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending ledger entries",
		applog.FieldComponent, applog.ComponentWorker,
		"allocations", len(allocs),
		"transactions", len(txs))

	synced, failed := 0, 0
	for _, p := range allocs {
		if err := w.syncAllocation(ctx, p.DepartmentID, p.Allocation); err != nil {
			slog.ErrorContext(ctx, "Failed to sync allocation", "allocation_id", p.Allocation.ID, applog.FieldError, err)
			failed++
			continue
		}
		synced++
	}
	for _, tx := range txs {
		if err := w.syncTransaction(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", applog.FieldTransactionID, tx.TransactionID, applog.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Pending ledger sync completed",
		applog.FieldComponent, applog.ComponentWorker,
		"synced", synced,
		"errors", failed)
	return synced, nil
}

func (w *LedgerSyncWorker) syncAllocation(ctx context.Context, departmentID string, a core.Allocation) error {
	dept, err := w.department(ctx, departmentID)
	if err != nil {
		return err
	}
	return w.append(ctx, storage.AllocationSyncKey(a.ID), string(amqp.EventAllocation), core.AllocationRow(dept, a))
}

// syncTransaction mirrors the bill in its current status. A bill decided
// before its submission event was handled is mirrored once, as decided.
func (w *LedgerSyncWorker) syncTransaction(ctx context.Context, tx core.Transaction) error {
	event := amqp.EventDecision
	if tx.Status == core.StatusPending {
		event = amqp.EventSubmission
	}
	dept, err := w.department(ctx, tx.DepartmentID)
	if err != nil {
		return err
	}
	return w.append(ctx, storage.TransactionSyncKey(tx.ID, tx.Status), string(event), core.TransactionRow(tx, dept.Name))
}

func (w *LedgerSyncWorker) append(ctx context.Context, key, event string, row core.LedgerRow) error {
	done, err := w.storage.IsLedgerSynced(ctx, key)
	if err != nil {
		return err
	}
	if done {
		slog.DebugContext(ctx, "Ledger entry already mirrored", "sync_key", key)
		return nil
	}

	ref, err := w.sheets.AppendLedgerRow(ctx, event, row)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}
	if err := w.storage.MarkLedgerSynced(ctx, key, ref, w.now()); err != nil {
		// The row is in the sheet; a retry may append it again.
		return err
	}

	slog.InfoContext(ctx, "Mirrored ledger entry",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldSheetsRef, ref,
		applog.FieldTransactionID, row.TransactionID,
		applog.FieldAmountPaise, row.Amount.Paise,
		applog.FieldStatus, row.Status)
	return nil
}

// department returns the department for naming rows; a deleted department is
// named by its id. Any other lookup failure is returned so the entry is retried.
func (w *LedgerSyncWorker) department(ctx context.Context, id string) (core.Department, error) {
	d, err := w.storage.GetDepartment(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Department{ID: id, Name: id}, nil
	}
	if err != nil {
		return core.Department{}, fmt.Errorf("load department %s: %w", id, err)
	}
	return d, nil
}
