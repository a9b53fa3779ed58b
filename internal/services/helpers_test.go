package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"deptfunds/internal/amqp"
	"deptfunds/internal/blobstore"
	"deptfunds/internal/core"
	"deptfunds/internal/pdfmerge"
	"deptfunds/internal/storage"
)

type fakeMerger struct {
	err   error
	calls int
}

func (m *fakeMerger) Merge(_ context.Context, files []pdfmerge.File) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(files) == 0 {
		return nil, pdfmerge.ErrNoFiles
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return []byte("%PDF-merged:" + strings.Join(names, ",")), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []amqp.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventKind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	repo    *storage.SQLiteRepository
	blobs   *blobstore.FS
	uploads string
	merger  *fakeMerger
	events  *recordingPublisher
	depts   *DepartmentService
	alloc   *AllocationService
	submit  *SubmissionService
	verify  *VerificationService
	reports *ReportService

	now   time.Time
	dept  core.Department
	hod   core.User
	coord core.User
	admin core.User
}

// newFixture opens a fresh database with one department, its HOD and its
// Coordinator. The clock is frozen at 2024-07-10 10:00 UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "funds.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	uploads := filepath.Join(dir, "uploads")
	blobs, err := blobstore.NewFS(uploads)
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}

	f := &fixture{
		t:       t,
		ctx:     ctx,
		repo:    repo,
		blobs:   blobs,
		uploads: uploads,
		merger:  &fakeMerger{},
		events:  &recordingPublisher{},
		now:     time.Date(2024, 7, 10, 10, 0, 0, 0, time.UTC),
	}
	fixed := func() time.Time { return f.now }

	f.depts = NewDepartmentService(repo)
	f.alloc = NewAllocationService(repo, f.events)
	f.submit = NewSubmissionService(repo, blobs, f.merger, f.events, time.UTC)
	f.submit.clock.now = fixed
	f.verify = NewVerificationService(repo, f.events)
	f.reports = NewReportService(repo, time.UTC)
	f.reports.clock.now = fixed

	f.dept, f.hod, f.coord = f.addDepartment("Physics", "hod@physics.edu", "coord@physics.edu")
	f.admin, err = f.depts.CreateAdmin(ctx, "Admin", "admin@college.edu", "admin-pass")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return f
}

func (f *fixture) addDepartment(name, hodEmail, coordEmail string) (core.Department, core.User, core.User) {
	f.t.Helper()
	d, err := f.depts.Create(f.ctx, NewDepartment{
		Name:        name,
		HODName:     "HOD " + name,
		HODEmail:    hodEmail,
		HODPassword: "hod-pass",
	})
	if err != nil {
		f.t.Fatalf("create department: %v", err)
	}
	hod, err := f.repo.GetUser(f.ctx, d.HODUserID)
	if err != nil {
		f.t.Fatalf("load hod: %v", err)
	}
	coord, err := f.depts.SaveCoordinator(f.ctx, hod, CoordinatorDetails{
		Name:     "Coordinator " + name,
		Email:    coordEmail,
		Password: "coord-pass",
	})
	if err != nil {
		f.t.Fatalf("create coordinator: %v", err)
	}
	d, err = f.repo.GetDepartment(f.ctx, d.ID)
	if err != nil {
		f.t.Fatalf("reload department: %v", err)
	}
	return d, hod, coord
}

// allocate grants amount for semester 3 / 2024 over [today+fromDays, today+toDays].
func (f *fixture) allocate(deptID string, rupees int64, fromDays, toDays int) {
	f.t.Helper()
	today := core.DateOf(f.now, time.UTC)
	_, err := f.alloc.Allocate(f.ctx, AllocationRequest{
		DepartmentID: deptID,
		Amount:       core.Rupees(rupees),
		Semester:     "3",
		Year:         "2024",
		StartDate:    core.Date{Time: today.AddDate(0, 0, fromDays)},
		EndDate:      core.Date{Time: today.AddDate(0, 0, toDays)},
	})
	if err != nil {
		f.t.Fatalf("allocate: %v", err)
	}
}

func bill(rupees int64) BillSubmission {
	return BillSubmission{
		Purpose:  "Lab consumables",
		Amount:   core.Rupees(rupees),
		Semester: "3",
		Files:    []pdfmerge.File{{Name: "receipt.pdf", Data: []byte("%PDF-1.4")}},
	}
}

func (f *fixture) mustSubmit(rupees int64) core.Transaction {
	f.t.Helper()
	tx, err := f.submit.Submit(f.ctx, f.coord, bill(rupees))
	if err != nil {
		f.t.Fatalf("submit %d: %v", rupees, err)
	}
	return tx
}

func (f *fixture) mustVerify(id string, target core.Status) core.Transaction {
	f.t.Helper()
	tx, err := f.verify.Verify(f.ctx, f.hod, id, target)
	if err != nil {
		f.t.Fatalf("verify %s -> %s: %v", id, target, err)
	}
	return tx
}

func (f *fixture) department(id string) core.Department {
	f.t.Helper()
	d, err := f.repo.GetDepartment(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get department: %v", err)
	}
	return d
}

func assertKind(t *testing.T, err, kind error, wantMsg string) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("err = %v, want kind %v", err, kind)
	}
	if wantMsg != "" && !strings.Contains(core.Message(err, ""), wantMsg) {
		t.Fatalf("message %q does not contain %q", core.Message(err, ""), wantMsg)
	}
}

func (f *fixture) blobPath(ref string) string {
	return filepath.Join(f.uploads, filepath.FromSlash(ref))
}
