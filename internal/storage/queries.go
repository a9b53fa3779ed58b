package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"deptfunds/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds every statement the application runs. It works the same on a
// plain connection and inside a transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// TransactionQuery selects bills. Zero fields do not filter.
type TransactionQuery struct {
	DepartmentID string
	CreatedBy    string
	Statuses     []core.Status
	Semester     core.Semester
	Year         string
	From, To     time.Time // half-open on bill_date
}

// TransactionQueryFor builds the bill query matching a report filter.
func TransactionQueryFor(f core.ReportFilter, loc *time.Location) TransactionQuery {
	q := TransactionQuery{
		DepartmentID: f.DepartmentID,
		Semester:     f.Semester,
		Year:         f.Year,
	}
	if from, to, ok := f.BillDateRange(loc); ok {
		q.From, q.To = from, to
	}
	return q
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch code := se.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case code&0xff == sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(se.Error(), "UNIQUE")
		}
	}
	return false
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ---- users ----

const userColumns = `id, name, email, password_hash, role, department_id, created_at`

func scanUser(row interface{ Scan(...any) error }) (core.User, error) {
	var (
		u       core.User
		role    string
		dept    sql.NullString
		created int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &dept, &created); err != nil {
		return core.User{}, err
	}
	u.Role = core.Role(role)
	u.DepartmentID = dept.String
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (q *Queries) CreateUser(ctx context.Context, u core.User) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, strings.TrimSpace(u.Name), strings.TrimSpace(u.Email), u.PasswordHash, string(u.Role), nullable(u.DepartmentID), millis(u.CreatedAt))
	if isUniqueViolation(err) {
		return core.Conflict("email %s is already registered", u.Email)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (q *Queries) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFound("user not found")
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFound("user not found")
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (q *Queries) UpdateUserProfile(ctx context.Context, id, name, email string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE users SET name = ?, email = ? WHERE id = ?`, strings.TrimSpace(name), strings.TrimSpace(email), id)
	if isUniqueViolation(err) {
		return core.Conflict("email %s is already registered", email)
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectOne(res, "user")
}

func (q *Queries) UpdateUserEmail(ctx context.Context, id, email string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, strings.TrimSpace(email), id)
	if isUniqueViolation(err) {
		return core.Conflict("email %s is already taken", email)
	}
	if err != nil {
		return fmt.Errorf("update user email: %w", err)
	}
	return expectOne(res, "user")
}

func (q *Queries) UpdateUserPassword(ctx context.Context, id, hash string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return expectOne(res, "user")
}

func (q *Queries) DeleteUser(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (q *Queries) CountUsersByRole(ctx context.Context, role core.Role) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, string(role)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// ---- departments ----

const departmentColumns = `id, name, description, allocated_paise, utilized_paise, hod_user_id, coordinator_user_id, created_at`

func scanDepartment(row interface{ Scan(...any) error }) (core.Department, error) {
	var (
		d                core.Department
		allocated, used  int64
		hod, coordinator sql.NullString
		created          int64
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &allocated, &used, &hod, &coordinator, &created); err != nil {
		return core.Department{}, err
	}
	d.AllocatedFund = core.Money{Paise: allocated}
	d.UtilizedFund = core.Money{Paise: used}
	d.HODUserID = hod.String
	d.CoordinatorUserID = coordinator.String
	d.CreatedAt = fromMillis(created)
	return d, nil
}

func (q *Queries) CreateDepartment(ctx context.Context, d core.Department) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO departments (`+departmentColumns+`) VALUES (?, ?, ?, 0, 0, ?, ?, ?)`,
		d.ID, strings.TrimSpace(d.Name), d.Description, nullable(d.HODUserID), nullable(d.CoordinatorUserID), millis(d.CreatedAt))
	if isUniqueViolation(err) {
		return core.Conflict("department name %q already exists", d.Name)
	}
	if err != nil {
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

// GetDepartment loads the department with its allocation history in creation order.
func (q *Queries) GetDepartment(ctx context.Context, id string) (core.Department, error) {
	d, err := scanDepartment(q.db.QueryRowContext(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Department{}, core.NotFound("department not found")
	}
	if err != nil {
		return core.Department{}, fmt.Errorf("get department: %w", err)
	}
	allocs, err := q.ListAllocations(ctx, id)
	if err != nil {
		return core.Department{}, err
	}
	d.Allocations = allocs
	return d, nil
}

func (q *Queries) ListDepartments(ctx context.Context) ([]core.Department, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+departmentColumns+` FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	var depts []core.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan department: %w", err)
		}
		depts = append(depts, d)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Allocations are loaded after the cursor is closed: the pool holds a single connection.
	for i := range depts {
		allocs, err := q.ListAllocations(ctx, depts[i].ID)
		if err != nil {
			return nil, err
		}
		depts[i].Allocations = allocs
	}
	return depts, nil
}

func (q *Queries) UpdateDepartmentDetails(ctx context.Context, id, name, description string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE departments SET name = ?, description = ? WHERE id = ?`, strings.TrimSpace(name), description, id)
	if isUniqueViolation(err) {
		return core.Conflict("department name %q already exists", name)
	}
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return expectOne(res, "department")
}

func (q *Queries) SetDepartmentHOD(ctx context.Context, id, userID string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE departments SET hod_user_id = ? WHERE id = ?`, nullable(userID), id)
	if err != nil {
		return fmt.Errorf("set department hod: %w", err)
	}
	return expectOne(res, "department")
}

// SetDepartmentCoordinator assigns or, with an empty userID, clears the Coordinator.
func (q *Queries) SetDepartmentCoordinator(ctx context.Context, id, userID string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE departments SET coordinator_user_id = ? WHERE id = ?`, nullable(userID), id)
	if err != nil {
		return fmt.Errorf("set department coordinator: %w", err)
	}
	return expectOne(res, "department")
}

func (q *Queries) DeleteDepartment(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM departments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return expectOne(res, "department")
}

// AddUtilized increments the cached utilized total of a department.
func (q *Queries) AddUtilized(ctx context.Context, id string, amount core.Money) error {
	res, err := q.db.ExecContext(ctx, `UPDATE departments SET utilized_paise = utilized_paise + ? WHERE id = ?`, amount.Paise, id)
	if err != nil {
		return fmt.Errorf("add utilized: %w", err)
	}
	return expectOne(res, "department")
}

// SetUtilized overwrites the cached utilized total; used by reconciliation.
func (q *Queries) SetUtilized(ctx context.Context, id string, amount core.Money) error {
	res, err := q.db.ExecContext(ctx, `UPDATE departments SET utilized_paise = ? WHERE id = ?`, amount.Paise, id)
	if err != nil {
		return fmt.Errorf("set utilized: %w", err)
	}
	return expectOne(res, "department")
}

// ---- allocations ----

const allocationColumns = `id, amount_paise, semester, year, start_date, end_date, created_at`

// scanAllocation reads allocationColumns followed by any extra destinations.
func scanAllocation(row interface{ Scan(...any) error }, extra ...any) (core.Allocation, error) {
	var (
		a            core.Allocation
		amount       int64
		sem          string
		start, end   string
		createdMilli int64
	)
	dest := append([]any{&a.ID, &amount, &sem, &a.Year, &start, &end, &createdMilli}, extra...)
	if err := row.Scan(dest...); err != nil {
		return core.Allocation{}, fmt.Errorf("scan allocation: %w", err)
	}
	a.Amount = core.Money{Paise: amount}
	a.Semester = core.Semester(sem)
	var err error
	if a.StartDate, err = core.ParseDate(start); err != nil {
		return core.Allocation{}, fmt.Errorf("allocation %d start date: %w", a.ID, err)
	}
	if a.EndDate, err = core.ParseDate(end); err != nil {
		return core.Allocation{}, fmt.Errorf("allocation %d end date: %w", a.ID, err)
	}
	a.CreatedAt = fromMillis(createdMilli)
	return a, nil
}

func (q *Queries) ListAllocations(ctx context.Context, departmentID string) ([]core.Allocation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+allocationColumns+` FROM fund_allocations WHERE department_id = ? ORDER BY id`, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	allocs := []core.Allocation{}
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// AppendAllocation records a new allocation and bumps the department's
// allocated total. Call inside a transaction.
func (q *Queries) AppendAllocation(ctx context.Context, departmentID string, a core.Allocation) (core.Allocation, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO fund_allocations (department_id, amount_paise, semester, year, start_date, end_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		departmentID, a.Amount.Paise, string(a.Semester), strings.TrimSpace(a.Year), a.StartDate.String(), a.EndDate.String(), millis(a.CreatedAt))
	if err != nil {
		return core.Allocation{}, fmt.Errorf("insert allocation: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return core.Allocation{}, fmt.Errorf("allocation id: %w", err)
	}
	upd, err := q.db.ExecContext(ctx, `UPDATE departments SET allocated_paise = allocated_paise + ? WHERE id = ?`, a.Amount.Paise, departmentID)
	if err != nil {
		return core.Allocation{}, fmt.Errorf("add allocated: %w", err)
	}
	if err := expectOne(upd, "department"); err != nil {
		return core.Allocation{}, err
	}
	return a, nil
}

// ---- transactions ----

const transactionColumns = `id, transaction_id, department_id, amount_paise, bill_no, bill_date, purpose, semester, year, documents, status, created_by, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		tx                core.Transaction
		amount            int64
		billDate, created int64
		sem, status, docs string
	)
	if err := row.Scan(&tx.ID, &tx.TransactionID, &tx.DepartmentID, &amount, &tx.BillNo, &billDate, &tx.Purpose,
		&sem, &tx.Year, &docs, &status, &tx.CreatedBy, &created); err != nil {
		return core.Transaction{}, err
	}
	tx.Amount = core.Money{Paise: amount}
	tx.BillDate = fromMillis(billDate)
	tx.Semester = core.Semester(sem)
	tx.Status = core.Status(status)
	tx.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(docs), &tx.Documents); err != nil {
		return core.Transaction{}, fmt.Errorf("decode documents: %w", err)
	}
	return tx, nil
}

func (q *Queries) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	docs, err := json.Marshal(tx.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	if tx.Documents == nil {
		docs = []byte("[]")
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.TransactionID, tx.DepartmentID, tx.Amount.Paise, tx.BillNo, millis(tx.BillDate), tx.Purpose,
		string(tx.Semester), tx.Year, string(docs), string(tx.Status), tx.CreatedBy, millis(tx.CreatedAt))
	if isUniqueViolation(err) {
		return core.Conflict("transaction id %s already exists", tx.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetTransaction resolves either the row id or the human-readable transaction id.
func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	tx, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? OR transaction_id = ? LIMIT 1`, id, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction not found")
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (tq TransactionQuery) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if tq.DepartmentID != "" {
		conds = append(conds, "department_id = ?")
		args = append(args, tq.DepartmentID)
	}
	if tq.CreatedBy != "" {
		conds = append(conds, "created_by = ?")
		args = append(args, tq.CreatedBy)
	}
	if len(tq.Statuses) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(tq.Statuses)), ", ")
		conds = append(conds, "status IN ("+marks+")")
		for _, s := range tq.Statuses {
			args = append(args, string(s))
		}
	}
	if tq.Semester != "" {
		conds = append(conds, "semester = ?")
		args = append(args, string(tq.Semester))
	}
	if tq.Year != "" {
		conds = append(conds, "year = ?")
		args = append(args, tq.Year)
	}
	if !tq.From.IsZero() {
		conds = append(conds, "bill_date >= ?")
		args = append(args, millis(tq.From))
	}
	if !tq.To.IsZero() {
		conds = append(conds, "bill_date < ?")
		args = append(args, millis(tq.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListTransactions returns matching bills, newest first.
func (q *Queries) ListTransactions(ctx context.Context, tq TransactionQuery) ([]core.Transaction, error) {
	where, args := tq.where()
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions`+where+` ORDER BY bill_date DESC, created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// SumTransactions totals the amounts of matching bills.
func (q *Queries) SumTransactions(ctx context.Context, tq TransactionQuery) (core.Money, error) {
	where, args := tq.where()
	var total int64
	if err := q.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount_paise), 0) FROM transactions`+where, args...).Scan(&total); err != nil {
		return core.Money{}, fmt.Errorf("sum transactions: %w", err)
	}
	return core.Money{Paise: total}, nil
}

// TransitionStatus moves a bill from one status to another only if it is
// still in the expected status. It reports whether the row changed.
func (q *Queries) TransitionStatus(ctx context.Context, id string, from, to core.Status) (bool, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFound("%s not found", what)
	}
	return nil
}
