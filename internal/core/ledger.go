package core

import (
	"fmt"
	"sort"
	"time"
)

const allocationPurpose = "Fund allocated by Admin"

// LedgerRow is one line of the unified ledger view. Allocation rows are
// synthetic and read-only; they never feed fund aggregates.
type LedgerRow struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transactionId"`
	Date           time.Time `json:"billDate"`
	DepartmentID   string    `json:"departmentId"`
	DepartmentName string    `json:"department"`
	BillNo         string    `json:"billNo"`
	Purpose        string    `json:"purpose"`
	Semester       Semester  `json:"semester"`
	Year           string    `json:"year"`
	Status         Status    `json:"status"`
	Amount         Money     `json:"amount"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	Synthetic      bool      `json:"isVirtual"`
}

// AllocationRowID is the deterministic id of a synthetic allocation row:
// ALLOC-<last 4 chars of department id>-<epoch millis of start date>.
func AllocationRowID(departmentID string, start Date) string {
	suffix := departmentID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("ALLOC-%s-%d", suffix, start.UnixMilli())
}

// AllocationRows projects the department allocations matching the filter's
// semester/year into synthetic ledger rows.
func AllocationRows(d Department, f ReportFilter) []LedgerRow {
	rows := make([]LedgerRow, 0, len(d.Allocations))
	for _, a := range d.Allocations {
		if a.Matches(f.Semester, f.Year) {
			rows = append(rows, AllocationRow(d, a))
		}
	}
	return rows
}

// AllocationRow projects one allocation of d into a synthetic ledger row.
func AllocationRow(d Department, a Allocation) LedgerRow {
	id := AllocationRowID(d.ID, a.StartDate)
	return LedgerRow{
		ID:             id,
		TransactionID:  id,
		Date:           a.StartDate.Time,
		DepartmentID:   d.ID,
		DepartmentName: d.Name,
		BillNo:         "N/A",
		Purpose:        allocationPurpose,
		Semester:       a.Semester,
		Year:           a.Year,
		Status:         StatusAllocated,
		Amount:         a.Amount,
		Synthetic:      true,
	}
}

// TransactionRow projects a stored bill into a ledger row.
func TransactionRow(tx Transaction, departmentName string) LedgerRow {
	return LedgerRow{
		ID:             tx.ID,
		TransactionID:  tx.TransactionID,
		Date:           tx.BillDate,
		DepartmentID:   tx.DepartmentID,
		DepartmentName: departmentName,
		BillNo:         tx.BillNo,
		Purpose:        tx.Purpose,
		Semester:       tx.Semester,
		Year:           tx.Year,
		Status:         tx.Status,
		Amount:         tx.Amount,
		CreatedBy:      tx.CreatedBy,
	}
}

// MergeLedger concatenates row sets and sorts them by date, newest first.
func MergeLedger(sets ...[]LedgerRow) []LedgerRow {
	var n int
	for _, s := range sets {
		n += len(s)
	}
	out := make([]LedgerRow, 0, n)
	for _, s := range sets {
		out = append(out, s...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// SumWhere totals the amounts of real (non-synthetic) bills accepted by keep.
func SumWhere(txs []Transaction, keep func(Transaction) bool) Money {
	var total Money
	for _, tx := range txs {
		if keep(tx) {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

func IsVerified(tx Transaction) bool { return tx.Status == StatusVerified }

func AnyStatus(Transaction) bool { return true }
