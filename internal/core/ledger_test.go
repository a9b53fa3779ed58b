package core

import (
	"errors"
	"testing"
	"time"
)

func TestAllocationRowID(t *testing.T) {
	start := NewDate(2024, 7, 1)
	got := AllocationRowID("6d1f2a9c-0000-4000-8000-00000000beef", start)
	want := "ALLOC-beef-1719792000000"
	if got != want {
		t.Fatalf("AllocationRowID = %q, want %q", got, want)
	}
	if got := AllocationRowID("ab", start); got != "ALLOC-ab-1719792000000" {
		t.Fatalf("short id = %q", got)
	}
}

func TestMergeLedgerSortsNewestFirstAndKeepsSyntheticRowsOut(t *testing.T) {
	dept := Department{
		ID:   "dept-0001",
		Name: "Physics",
		Allocations: []Allocation{
			{Amount: Rupees(10000), Semester: "3", Year: "2024", StartDate: NewDate(2024, 7, 1), EndDate: NewDate(2024, 12, 1)},
			{Amount: Rupees(5000), Semester: "4", Year: "2025", StartDate: NewDate(2025, 1, 1), EndDate: NewDate(2025, 5, 1)},
		},
	}
	txs := []Transaction{
		{ID: "t1", Amount: Rupees(4000), Status: StatusVerified, BillDate: time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)},
		{ID: "t2", Amount: Rupees(100), Status: StatusRejected, BillDate: time.Date(2024, 8, 3, 10, 0, 0, 0, time.UTC)},
	}

	allocRows := AllocationRows(dept, ReportFilter{Semester: "3"})
	if len(allocRows) != 1 || allocRows[0].Status != StatusAllocated || !allocRows[0].Synthetic {
		t.Fatalf("unexpected allocation rows %+v", allocRows)
	}
	if allocRows[0].Purpose != "Fund allocated by Admin" {
		t.Fatalf("purpose = %q", allocRows[0].Purpose)
	}

	var txRows []LedgerRow
	for _, tx := range txs {
		txRows = append(txRows, TransactionRow(tx, dept.Name))
	}
	merged := MergeLedger(allocRows, txRows)
	if len(merged) != 3 {
		t.Fatalf("merged rows = %d", len(merged))
	}
	order := []string{"t2", "t1", allocRows[0].ID}
	for i, id := range order {
		if merged[i].ID != id {
			t.Fatalf("row %d = %s, want %s", i, merged[i].ID, id)
		}
	}

	if got := SumWhere(txs, IsVerified); got != Rupees(4000) {
		t.Fatalf("verified sum = %s", got)
	}
	if got := SumWhere(txs, AnyStatus); got != Rupees(4100) {
		t.Fatalf("all sum = %s", got)
	}
}

func TestParseReportFilter(t *testing.T) {
	f, err := ParseReportFilter("3", "2024", "", "2024-07")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	from, to, ok := f.BillDateRange(time.UTC)
	if !ok || !from.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("month range = %v..%v ok=%v", from, to, ok)
	}

	f, err = ParseReportFilter("", "", "2024-07-15", "2024-01")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	from, to, _ = f.BillDateRange(time.UTC)
	if to.Sub(from) != 24*time.Hour || from.Day() != 15 {
		t.Fatalf("date should win over month, got %v..%v", from, to)
	}

	if _, _, ok := (ReportFilter{}).BillDateRange(nil); ok {
		t.Fatal("empty filter should have no range")
	}

	for _, bad := range [][4]string{
		{"Odd", "", "", ""},
		{"", "", "15-07-2024", ""},
		{"", "", "", "2024/07"},
	} {
		_, err := ParseReportFilter(bad[0], bad[1], bad[2], bad[3])
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ParseReportFilter(%v) err = %v, want invalid input", bad, err)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	err := InvalidState("exceeds remaining budget. Remaining: %s", Rupees(6000).Rs())
	if !errors.Is(err, ErrInvalidState) || errors.Is(err, ErrForbidden) {
		t.Fatalf("kind mismatch for %v", err)
	}
	if got := Message(err, "fallback"); got != "exceeds remaining budget. Remaining: Rs. 6000" {
		t.Fatalf("Message = %q", got)
	}
	if got := Message(errors.New("boom"), "fallback"); got != "fallback" {
		t.Fatalf("Message on plain error = %q", got)
	}
	wrapped := StorageFailure(errors.New("disk full"), "write merged bill")
	if !errors.Is(wrapped, ErrStorageFailure) {
		t.Fatal("expected storage failure kind")
	}
}
