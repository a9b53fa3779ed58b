package services

import (
	"context"
	"time"

	"deptfunds/internal/core"
	"deptfunds/internal/storage"
)

// ReportService aggregates allocations and bills into fund summaries and
// ledger views. Totals are recomputed from the bills on every call; the
// cached department counters are never read here.
type ReportService struct {
	storage *storage.SQLiteRepository
	clock   clock
}

func NewReportService(storage *storage.SQLiteRepository, loc *time.Location) *ReportService {
	return &ReportService{storage: storage, clock: newClock(loc)}
}

// Admin reports every department, or only f.DepartmentID when set, counting
// verified bills as utilized.
func (s *ReportService) Admin(ctx context.Context, f core.ReportFilter) (core.AdminReport, error) {
	var depts []core.Department
	if f.DepartmentID != "" {
		d, err := s.storage.GetDepartment(ctx, f.DepartmentID)
		if err != nil {
			return core.AdminReport{}, err
		}
		depts = []core.Department{d}
	} else {
		var err error
		if depts, err = s.storage.ListDepartments(ctx); err != nil {
			return core.AdminReport{}, err
		}
	}

	rep := core.AdminReport{Departments: make([]core.DepartmentReport, 0, len(depts))}
	var allocated, utilized core.Money
	for _, d := range depts {
		dr, err := s.build(ctx, d, f, "", core.IsVerified)
		if err != nil {
			return core.AdminReport{}, err
		}
		allocated = allocated.Add(dr.Allocated)
		utilized = utilized.Add(dr.Utilized)
		rep.Departments = append(rep.Departments, dr)
	}
	rep.Totals = core.NewFundSummary(allocated, utilized)
	return rep, nil
}

// Department reports one department, counting verified bills as utilized.
func (s *ReportService) Department(ctx context.Context, departmentID string, f core.ReportFilter) (core.DepartmentReport, error) {
	d, err := s.storage.GetDepartment(ctx, departmentID)
	if err != nil {
		return core.DepartmentReport{}, err
	}
	return s.build(ctx, d, f, "", core.IsVerified)
}

// HOD reports the caller's own department.
func (s *ReportService) HOD(ctx context.Context, actor core.User, f core.ReportFilter) (core.DepartmentReport, error) {
	if actor.Role != core.RoleHOD || actor.DepartmentID == "" {
		return core.DepartmentReport{}, core.Forbidden("only an HOD can view the department report")
	}
	return s.Department(ctx, actor.DepartmentID, f)
}

// Coordinator reports the caller's own uploads. Every status counts as
// utilized: the view answers what was submitted, not what was approved.
func (s *ReportService) Coordinator(ctx context.Context, actor core.User, f core.ReportFilter) (core.DepartmentReport, error) {
	if actor.Role != core.RoleCoordinator || actor.DepartmentID == "" {
		return core.DepartmentReport{}, core.Forbidden("only a coordinator can view the upload report")
	}
	d, err := s.storage.GetDepartment(ctx, actor.DepartmentID)
	if err != nil {
		return core.DepartmentReport{}, err
	}
	return s.build(ctx, d, f, actor.ID, core.AnyStatus)
}

func (s *ReportService) build(ctx context.Context, d core.Department, f core.ReportFilter, createdBy string, counts func(core.Transaction) bool) (core.DepartmentReport, error) {
	tq := storage.TransactionQueryFor(f, s.clock.loc)
	tq.DepartmentID = d.ID
	tq.CreatedBy = createdBy
	txs, err := s.storage.ListTransactions(ctx, tq)
	if err != nil {
		return core.DepartmentReport{}, err
	}

	txRows := make([]core.LedgerRow, 0, len(txs))
	for _, tx := range txs {
		txRows = append(txRows, core.TransactionRow(tx, d.Name))
	}

	rep := core.DepartmentReport{
		DepartmentID: d.ID,
		Department:   d.Name,
		FundSummary:  core.NewFundSummary(d.AllocatedFor(f.Semester, f.Year), core.SumWhere(txs, counts)),
		Transactions: core.MergeLedger(core.AllocationRows(d, f), txRows),
	}
	_, today := s.clock.today()
	if cur, ok := d.CurrentAllocation(f.Semester, today); ok {
		rep.CurrentAllocation = &cur
	}
	return rep, nil
}

// Transactions lists bills across departments for the admin, newest first.
// Bills of deleted departments keep their department id as the name.
func (s *ReportService) Transactions(ctx context.Context, f core.ReportFilter) ([]core.LedgerRow, error) {
	depts, err := s.storage.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(depts))
	for _, d := range depts {
		names[d.ID] = d.Name
	}

	txs, err := s.storage.ListTransactions(ctx, storage.TransactionQueryFor(f, s.clock.loc))
	if err != nil {
		return nil, err
	}
	rows := make([]core.LedgerRow, 0, len(txs))
	for _, tx := range txs {
		name, ok := names[tx.DepartmentID]
		if !ok {
			name = tx.DepartmentID
		}
		rows = append(rows, core.TransactionRow(tx, name))
	}
	return rows, nil
}

// MyTransactions lists the HOD's department bills or the Coordinator's own uploads.
func (s *ReportService) MyTransactions(ctx context.Context, actor core.User, f core.ReportFilter) ([]core.Transaction, error) {
	tq := storage.TransactionQueryFor(f, s.clock.loc)
	switch {
	case actor.Role == core.RoleHOD && actor.DepartmentID != "":
		tq.DepartmentID = actor.DepartmentID
	case actor.Role == core.RoleCoordinator && actor.DepartmentID != "":
		tq.DepartmentID = actor.DepartmentID
		tq.CreatedBy = actor.ID
	default:
		return nil, core.Forbidden("only department users have their own transactions")
	}
	return s.storage.ListTransactions(ctx, tq)
}
