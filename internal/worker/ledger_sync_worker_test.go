package worker

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"deptfunds/internal/amqp"
	"deptfunds/internal/core"
	"deptfunds/internal/sheets/memory"
	"deptfunds/internal/storage"
)

type failingWriter struct{ calls int }

func (f *failingWriter) AppendLedgerRow(context.Context, string, core.LedgerRow) (string, error) {
	f.calls++
	return "", errors.New("quota exceeded")
}

type workerFixture struct {
	ctx   context.Context
	path  string
	repo  *storage.SQLiteRepository
	alloc core.Allocation
	tx    core.Transaction
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "funds.db")
	repo, err := storage.NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.CreateDepartment(ctx, core.Department{ID: "dept-0001", Name: "Physics", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create department: %v", err)
	}
	alloc, err := repo.AppendAllocation(ctx, "dept-0001", core.Allocation{
		Amount: core.Rupees(10000), Semester: "3", Year: "2024",
		StartDate: core.NewDate(2024, 7, 1), EndDate: core.NewDate(2024, 12, 1), CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("append allocation: %v", err)
	}
	tx := core.Transaction{
		ID: "t1", TransactionID: "TXN123456ABCDEF", DepartmentID: "dept-0001", Amount: core.Rupees(4000),
		BillNo: "BILL-123456-1", BillDate: time.Now(), Purpose: "Lab", Semester: "3", Year: "2024",
		Status: core.StatusPending, CreatedBy: "c1", CreatedAt: time.Now(),
	}
	if err := repo.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return &workerFixture{ctx: ctx, path: path, repo: repo, alloc: alloc, tx: tx}
}

func TestHandleLedgerEvent(t *testing.T) {
	f := newWorkerFixture(t)
	mem := memory.New()
	w := NewLedgerSyncWorker(f.repo, mem, 10)

	events := []*amqp.LedgerEvent{
		amqp.NewLedgerEvent(amqp.EventAllocation, "dept-0001", strconv.FormatInt(f.alloc.ID, 10)),
		amqp.NewLedgerEvent(amqp.EventSubmission, "dept-0001", f.tx.ID),
		// Redelivery of the same submission must not duplicate the row.
		amqp.NewLedgerEvent(amqp.EventSubmission, "dept-0001", f.tx.ID),
	}
	for _, ev := range events {
		if err := w.HandleLedgerEvent(f.ctx, ev); err != nil {
			t.Fatalf("handle %s: %v", ev.Kind, err)
		}
	}

	if _, err := f.repo.TransitionStatus(f.ctx, f.tx.ID, core.StatusPending, core.StatusVerified); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := w.HandleLedgerEvent(f.ctx, amqp.NewLedgerEvent(amqp.EventDecision, "dept-0001", f.tx.ID)); err != nil {
		t.Fatalf("handle decision: %v", err)
	}

	entries := mem.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Event != "allocation" || !entries[0].Row.Synthetic || entries[0].Row.DepartmentName != "Physics" {
		t.Fatalf("allocation entry = %+v", entries[0])
	}
	if entries[1].Event != "submission" || entries[1].Row.Status != core.StatusPending {
		t.Fatalf("submission entry = %+v", entries[1])
	}
	if entries[2].Event != "decision" || entries[2].Row.Status != core.StatusVerified {
		t.Fatalf("decision entry = %+v", entries[2])
	}

	if n, err := w.ProcessPending(f.ctx); err != nil || n != 0 {
		t.Fatalf("nothing should be pending, got %d, %v", n, err)
	}
}

func TestHandleLedgerEventSkipsMissingRows(t *testing.T) {
	f := newWorkerFixture(t)
	mem := memory.New()
	w := NewLedgerSyncWorker(f.repo, mem, 10)

	for _, ev := range []*amqp.LedgerEvent{
		amqp.NewLedgerEvent(amqp.EventSubmission, "dept-0001", "missing"),
		amqp.NewLedgerEvent(amqp.EventAllocation, "dept-0001", "999"),
		amqp.NewLedgerEvent(amqp.EventAllocation, "dept-0001", "not-a-number"),
	} {
		if err := w.HandleLedgerEvent(f.ctx, ev); err != nil {
			t.Fatalf("missing rows should be acknowledged, got %v", err)
		}
	}
	if len(mem.Entries()) != 0 {
		t.Fatalf("entries = %+v", mem.Entries())
	}
}

func TestHandleLedgerEventReturnsWriterErrors(t *testing.T) {
	f := newWorkerFixture(t)
	writer := &failingWriter{}
	w := NewLedgerSyncWorker(f.repo, writer, 10)

	err := w.HandleLedgerEvent(f.ctx, amqp.NewLedgerEvent(amqp.EventSubmission, "dept-0001", f.tx.ID))
	if err == nil {
		t.Fatal("expected error so the event is redelivered")
	}
	if ok, _ := f.repo.IsLedgerSynced(f.ctx, storage.TransactionSyncKey(f.tx.ID, core.StatusPending)); ok {
		t.Fatal("failed append must not be marked synced")
	}

	n, err := w.ProcessPending(f.ctx)
	if err != nil || n != 0 || writer.calls != 3 {
		t.Fatalf("ProcessPending = %d, %v after %d calls", n, err, writer.calls)
	}
}

func TestHandleLedgerEventRetriesDepartmentLookupFailures(t *testing.T) {
	f := newWorkerFixture(t)
	mem := memory.New()
	w := NewLedgerSyncWorker(f.repo, mem, 10)

	// Break department reads from a second connection; transaction reads still work.
	db, err := sql.Open("sqlite", f.path)
	if err != nil {
		t.Fatalf("open second connection: %v", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(f.ctx, `ALTER TABLE departments RENAME TO departments_moved`); err != nil {
		t.Fatalf("rename table: %v", err)
	}

	err = w.HandleLedgerEvent(f.ctx, amqp.NewLedgerEvent(amqp.EventSubmission, "dept-0001", f.tx.ID))
	if err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
	if ok, _ := f.repo.IsLedgerSynced(f.ctx, storage.TransactionSyncKey(f.tx.ID, core.StatusPending)); ok {
		t.Fatal("entry must not be marked synced")
	}
	if len(mem.Entries()) != 0 {
		t.Fatalf("entries = %+v", mem.Entries())
	}
}

func TestProcessPendingBackfills(t *testing.T) {
	f := newWorkerFixture(t)
	mem := memory.New()
	w := NewLedgerSyncWorker(f.repo, mem, 10)

	n, err := w.ProcessPending(f.ctx)
	if err != nil || n != 2 {
		t.Fatalf("ProcessPending = %d, %v; want 2", n, err)
	}
	n, err = w.ProcessPending(f.ctx)
	if err != nil || n != 0 {
		t.Fatalf("second pass = %d, %v; want 0", n, err)
	}

	if err := f.repo.DeleteDepartment(f.ctx, "dept-0001"); err != nil {
		t.Fatalf("delete department: %v", err)
	}
	if _, err := f.repo.TransitionStatus(f.ctx, f.tx.ID, core.StatusPending, core.StatusRejected); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if n, err := w.ProcessPending(f.ctx); err != nil || n != 1 {
		t.Fatalf("ProcessPending after decision = %d, %v", n, err)
	}
	last := mem.Entries()[2]
	if last.Row.DepartmentName != "dept-0001" || last.Row.Status != core.StatusRejected {
		t.Fatalf("orphan bill entry = %+v", last)
	}
}
