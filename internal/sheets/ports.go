package sheets

import (
	"context"

	"deptfunds/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends one ledger entry to the spreadsheet mirror.
	// event names what happened (allocation, submission, decision).
	LedgerWriter interface {
		AppendLedgerRow(ctx context.Context, event string, row core.LedgerRow) (rowRef string, err error)
	}
)

// Header is the column layout shared by every LedgerWriter.
var Header = []string{"Timestamp", "Event", "Date", "Transaction ID", "Department", "Bill No", "Purpose", "Semester", "Year", "Status", "Amount"}

// Row renders a ledger entry in Header order. Amounts are plain decimals so
// the sheet can sum them.
func Row(event string, row core.LedgerRow, at string) []any {
	return []any{
		at,
		event,
		row.Date.Format("2006-01-02"),
		row.TransactionID,
		row.DepartmentName,
		row.BillNo,
		row.Purpose,
		string(row.Semester),
		row.Year,
		string(row.Status),
		row.Amount.String(),
	}
}
