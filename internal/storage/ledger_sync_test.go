package storage

import (
	"context"
	"testing"
	"time"

	"deptfunds/internal/core"
)

func TestLedgerSyncTracking(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedDepartment(t, repo, "d1", "Physics")

	alloc, err := repo.AppendAllocation(ctx, "d1", core.Allocation{
		Amount: core.Rupees(1000), Semester: "3", Year: "2024",
		StartDate: core.NewDate(2024, 7, 1), EndDate: core.NewDate(2024, 12, 1), CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("append allocation: %v", err)
	}
	if err := repo.CreateTransaction(ctx, core.Transaction{
		ID: "t1", TransactionID: "TXN1", DepartmentID: "d1", Amount: core.Rupees(10),
		BillNo: "B1", BillDate: time.Now(), Purpose: "p", Status: core.StatusPending, CreatedBy: "c1", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	allocs, err := repo.PendingLedgerAllocations(ctx, 10)
	if err != nil || len(allocs) != 1 || allocs[0].DepartmentID != "d1" || allocs[0].Allocation.ID != alloc.ID {
		t.Fatalf("pending allocations = %+v, %v", allocs, err)
	}
	txs, err := repo.PendingLedgerTransactions(ctx, 10)
	if err != nil || len(txs) != 1 {
		t.Fatalf("pending transactions = %d, %v", len(txs), err)
	}

	now := time.Now()
	for _, key := range []string{AllocationSyncKey(alloc.ID), TransactionSyncKey("t1", core.StatusPending)} {
		if err := repo.MarkLedgerSynced(ctx, key, "Ledger!A2:K2", now); err != nil {
			t.Fatalf("mark %s: %v", key, err)
		}
		if err := repo.MarkLedgerSynced(ctx, key, "again", now); err != nil {
			t.Fatalf("mark twice %s: %v", key, err)
		}
		if ok, err := repo.IsLedgerSynced(ctx, key); err != nil || !ok {
			t.Fatalf("IsLedgerSynced(%s) = %v, %v", key, ok, err)
		}
	}

	if allocs, _ := repo.PendingLedgerAllocations(ctx, 10); len(allocs) != 0 {
		t.Fatalf("allocation still pending: %+v", allocs)
	}
	if txs, _ := repo.PendingLedgerTransactions(ctx, 10); len(txs) != 0 {
		t.Fatalf("transaction still pending: %+v", txs)
	}

	if _, err := repo.TransitionStatus(ctx, "t1", core.StatusPending, core.StatusVerified); err != nil {
		t.Fatalf("transition: %v", err)
	}
	txs, err = repo.PendingLedgerTransactions(ctx, 10)
	if err != nil || len(txs) != 1 || txs[0].Status != core.StatusVerified {
		t.Fatalf("decided bill should be pending again, got %+v, %v", txs, err)
	}
}
