package services

import (
	"errors"
	"io"
	"os"
	"regexp"
	"testing"

	"deptfunds/internal/amqp"
	"deptfunds/internal/blobstore"
	"deptfunds/internal/core"
	"deptfunds/internal/pdfmerge"
	"deptfunds/internal/storage"
)

func TestSubmitVerifyScenario(t *testing.T) {
	f := newFixture(t)
	f.allocate(f.dept.ID, 10000, -5, 5)

	tx := f.mustSubmit(4000)
	if tx.Status != core.StatusPending {
		t.Fatalf("status = %s, want pending", tx.Status)
	}

	f.mustVerify(tx.ID, core.StatusVerified)
	d := f.department(f.dept.ID)
	if d.UtilizedFund != core.Rupees(4000) {
		t.Fatalf("utilized = %s, want 4000", d.UtilizedFund)
	}
	rep, err := f.reports.Department(f.ctx, f.dept.ID, core.ReportFilter{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Balance != core.Rupees(6000) {
		t.Fatalf("balance = %s, want 6000", rep.Balance)
	}

	_, err = f.submit.Submit(f.ctx, f.coord, bill(7000))
	assertKind(t, err, core.ErrInvalidState, "exceeds remaining budget")
	if msg := core.Message(err, ""); !regexp.MustCompile(`Remaining: Rs\. 6000$`).MatchString(msg) {
		t.Fatalf("message = %q", msg)
	}
}

func TestSubmitAcceptsExactBoundary(t *testing.T) {
	f := newFixture(t)
	f.allocate(f.dept.ID, 10000, -5, 5)
	f.mustSubmit(4000)

	tx := f.mustSubmit(6000)
	if tx.Status != core.StatusPending {
		t.Fatalf("status = %s", tx.Status)
	}
	_, err := f.submit.Submit(f.ctx, f.coord, BillSubmission{
		Purpose: "one paisa over", Amount: core.Money{Paise: 1}, Semester: "3",
		Files: []pdfmerge.File{{Name: "a.pdf", Data: []byte("%PDF")}},
	})
	assertKind(t, err, core.ErrInvalidState, "Remaining: Rs. 0")

	txs, err := f.repo.ListTransactions(f.ctx, storage.TransactionQuery{DepartmentID: f.dept.ID})
	if err != nil || len(txs) != 2 {
		t.Fatalf("transactions = %d, %v", len(txs), err)
	}
}

func TestSubmitChecksRunInOrder(t *testing.T) {
	noFiles := bill(100)
	noFiles.Files = nil

	tests := []struct {
		name    string
		setup   func(f *fixture)
		actor   func(f *fixture) core.User
		req     BillSubmission
		kind    error
		message string
	}{
		{
			name:    "hod cannot submit",
			actor:   func(f *fixture) core.User { return f.hod },
			req:     bill(100),
			kind:    core.ErrForbidden,
			message: "only a coordinator",
		},
		{
			name: "coordinator without department",
			actor: func(f *fixture) core.User {
				u := f.coord
				u.DepartmentID = ""
				return u
			},
			req:  bill(100),
			kind: core.ErrForbidden,
		},
		{
			name:    "no allocations beats missing files",
			actor:   func(f *fixture) core.User { return f.coord },
			req:     noFiles,
			kind:    core.ErrInvalidState,
			message: "no allocations",
		},
		{
			name:    "future window",
			setup:   func(f *fixture) { f.allocate(f.dept.ID, 10000, 1, 10) },
			actor:   func(f *fixture) core.User { return f.coord },
			req:     bill(100),
			kind:    core.ErrInvalidState,
			message: "no active allocation window",
		},
		{
			name:  "other semester",
			setup: func(f *fixture) { f.allocate(f.dept.ID, 10000, -5, 5) },
			actor: func(f *fixture) core.User { return f.coord },
			req: func() BillSubmission {
				b := bill(100)
				b.Semester = "4"
				return b
			}(),
			kind:    core.ErrInvalidState,
			message: "no active allocation window",
		},
		{
			name:    "over budget beats missing files",
			setup:   func(f *fixture) { f.allocate(f.dept.ID, 50, -5, 5) },
			actor:   func(f *fixture) core.User { return f.coord },
			req:     noFiles,
			kind:    core.ErrInvalidState,
			message: "exceeds remaining budget",
		},
		{
			name:    "missing files",
			setup:   func(f *fixture) { f.allocate(f.dept.ID, 10000, -5, 5) },
			actor:   func(f *fixture) core.User { return f.coord },
			req:     noFiles,
			kind:    core.ErrInvalidState,
			message: "document must be attached",
		},
		{
			name:  "odd/even semester rejected",
			actor: func(f *fixture) core.User { return f.coord },
			req: func() BillSubmission {
				b := bill(100)
				b.Semester = "Odd"
				return b
			}(),
			kind: core.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			_, err := f.submit.Submit(f.ctx, tt.actor(f), tt.req)
			assertKind(t, err, tt.kind, tt.message)
			if f.merger.calls != 0 {
				t.Fatalf("merger ran %d times for a rejected submission", f.merger.calls)
			}
		})
	}
}

func TestRejectedBillFreesBudget(t *testing.T) {
	f := newFixture(t)
	f.allocate(f.dept.ID, 5000, -5, 5)

	first := f.mustSubmit(5000)
	if _, err := f.submit.Submit(f.ctx, f.coord, bill(5000)); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("pending bill should hold the budget, got %v", err)
	}
	f.mustVerify(first.ID, core.StatusRejected)
	f.mustSubmit(5000)
}

func TestSubmitStampsAllocationAndStoresDocument(t *testing.T) {
	f := newFixture(t)
	f.allocate(f.dept.ID, 10000, -5, 5)

	tx := f.mustSubmit(1200)
	if tx.Semester != "3" || tx.Year != "2024" {
		t.Fatalf("stamped %s/%s, want 3/2024", tx.Semester, tx.Year)
	}
	if !tx.BillDate.Equal(f.now) || tx.CreatedBy != f.coord.ID || tx.DepartmentID != f.dept.ID {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if !regexp.MustCompile(`^TXN\d{6}[A-Z0-9]{6}$`).MatchString(tx.TransactionID) {
		t.Fatalf("transaction id %q", tx.TransactionID)
	}
	if !regexp.MustCompile(`^BILL-\d{6}-\d{1,3}$`).MatchString(tx.BillNo) {
		t.Fatalf("bill no %q", tx.BillNo)
	}
	if len(tx.Documents) != 1 || tx.Documents[0] != blobstore.BillKey(f.dept.ID, tx.BillNo) {
		t.Fatalf("documents = %v", tx.Documents)
	}

	rc, got, err := f.submit.OpenDocument(f.ctx, f.coord, tx.TransactionID)
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "%PDF-merged:receipt.pdf" || got.ID != tx.ID {
		t.Fatalf("document = %q", body)
	}

	if kinds := f.events.kinds(); len(kinds) != 2 || kinds[1] != amqp.EventSubmission {
		t.Fatalf("events = %v", kinds)
	}
}

func TestSubmitStorageFailures(t *testing.T) {
	t.Run("merge failure", func(t *testing.T) {
		f := newFixture(t)
		f.allocate(f.dept.ID, 10000, -5, 5)
		f.merger.err = errors.New("corrupt pdf")

		_, err := f.submit.Submit(f.ctx, f.coord, bill(100))
		assertKind(t, err, core.ErrStorageFailure, "merge")
		txs, _ := f.repo.ListTransactions(f.ctx, storage.TransactionQuery{})
		if len(txs) != 0 {
			t.Fatalf("transactions = %d, want none", len(txs))
		}
	})

	t.Run("unsupported file", func(t *testing.T) {
		f := newFixture(t)
		f.allocate(f.dept.ID, 10000, -5, 5)
		f.merger.err = pdfmerge.ErrUnsupportedType

		_, err := f.submit.Submit(f.ctx, f.coord, bill(100))
		assertKind(t, err, core.ErrInvalidInput, "")
	})

	t.Run("publish failure does not fail the request", func(t *testing.T) {
		f := newFixture(t)
		f.allocate(f.dept.ID, 10000, -5, 5)
		f.events.err = errors.New("broker down")
		f.mustSubmit(100)
	})
}

func TestOpenDocumentAuthorization(t *testing.T) {
	f := newFixture(t)
	f.allocate(f.dept.ID, 10000, -5, 5)
	tx := f.mustSubmit(100)
	_, otherHOD, _ := f.addDepartment("Chemistry", "hod@chem.edu", "coord@chem.edu")

	for _, actor := range []core.User{f.admin, f.hod, f.coord} {
		rc, _, err := f.submit.OpenDocument(f.ctx, actor, tx.ID)
		if err != nil {
			t.Fatalf("%s should open the document: %v", actor.Role, err)
		}
		rc.Close()
	}

	_, _, err := f.submit.OpenDocument(f.ctx, otherHOD, tx.ID)
	assertKind(t, err, core.ErrForbidden, "")

	_, _, err = f.submit.OpenDocument(f.ctx, f.admin, "missing")
	assertKind(t, err, core.ErrNotFound, "")

	if err := os.Remove(f.blobPath(tx.Documents[0])); err != nil {
		t.Fatalf("remove blob: %v", err)
	}
	_, _, err = f.submit.OpenDocument(f.ctx, f.admin, tx.ID)
	assertKind(t, err, core.ErrNotFound, "missing")
}
