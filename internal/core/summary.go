package core

// FundSummary is the allocated/utilized/balance triple of a report.
// Balance may be negative; it is never clamped.
type FundSummary struct {
	Allocated Money `json:"allocated"`
	Utilized  Money `json:"utilized"`
	Balance   Money `json:"balance"`
}

func NewFundSummary(allocated, utilized Money) FundSummary {
	return FundSummary{Allocated: allocated, Utilized: utilized, Balance: allocated.Sub(utilized)}
}

// DepartmentReport is the per-department aggregation plus its ledger view.
type DepartmentReport struct {
	DepartmentID string `json:"departmentId"`
	Department   string `json:"department"`
	FundSummary
	Transactions      []LedgerRow `json:"transactions"`
	CurrentAllocation *Allocation `json:"currentAllocation,omitempty"`
}

// AdminReport covers every department plus the grand totals.
type AdminReport struct {
	Departments []DepartmentReport `json:"departments"`
	Totals      FundSummary        `json:"totals"`
}
