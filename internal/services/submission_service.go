package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"deptfunds/internal/amqp"
	"deptfunds/internal/blobstore"
	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
	"deptfunds/internal/pdfmerge"
	"deptfunds/internal/storage"
)

const (
	idAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxIDAttempts    = 3
	blobCleanupGrace = 5 * time.Second
)

// BillSubmission is a Coordinator's bill with its supporting files.
type BillSubmission struct {
	Purpose  string
	Amount   core.Money
	Semester core.Semester
	Files    []pdfmerge.File
}

// SubmissionService validates bills against the active allocation and stores them.
type SubmissionService struct {
	storage *storage.SQLiteRepository
	blobs   blobstore.Store
	merger  DocumentMerger
	events  EventPublisher
	clock   clock
}

func NewSubmissionService(storage *storage.SQLiteRepository, blobs blobstore.Store, merger DocumentMerger, events EventPublisher, loc *time.Location) *SubmissionService {
	return &SubmissionService{
		storage: storage,
		blobs:   blobs,
		merger:  merger,
		events:  events,
		clock:   newClock(loc),
	}
}

// Submit runs the submission checks in order, stopping at the first failure:
// caller role and department, existence of allocations, an active window for
// the semester, remaining budget, attached files. On success the merged
// document is written before the pending transaction is recorded.
func (s *SubmissionService) Submit(ctx context.Context, actor core.User, req BillSubmission) (core.Transaction, error) {
	if actor.Role != core.RoleCoordinator || actor.DepartmentID == "" {
		return core.Transaction{}, core.Forbidden("only a coordinator assigned to a department can submit bills")
	}
	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		return core.Transaction{}, core.InvalidInput("%v", core.ErrEmptyPurpose)
	}
	if err := req.Amount.Validate(); err != nil {
		return core.Transaction{}, core.InvalidInput("%v", err)
	}
	if err := req.Semester.Validate(); err != nil {
		return core.Transaction{}, core.InvalidInput("%v", err)
	}

	dept, err := s.storage.GetDepartment(ctx, actor.DepartmentID)
	if err != nil {
		return core.Transaction{}, err
	}
	now, today := s.clock.today()
	if _, err := checkBudget(ctx, s.storage.Queries, dept, req.Semester, req.Amount, today); err != nil {
		return core.Transaction{}, err
	}
	if len(req.Files) == 0 {
		return core.Transaction{}, core.InvalidState("at least one bill document must be attached")
	}

	merged, err := s.merger.Merge(ctx, req.Files)
	if errors.Is(err, pdfmerge.ErrUnsupportedType) {
		return core.Transaction{}, core.InvalidInput("%v", err)
	}
	if err != nil {
		return core.Transaction{}, core.StorageFailure(err, "could not merge bill documents")
	}

	var (
		billNo string
		ref    blobstore.Ref
	)
	for attempt := 0; ; attempt++ {
		billNo = newBillNo(now)
		ref, err = s.blobs.Put(ctx, blobstore.BillKey(dept.ID, billNo), merged)
		if err == nil {
			break
		}
		if !errors.Is(err, blobstore.ErrExists) || attempt+1 >= maxIDAttempts {
			return core.Transaction{}, core.StorageFailure(err, "could not store bill document")
		}
	}

	tx := core.Transaction{
		ID:           uuid.NewString(),
		DepartmentID: dept.ID,
		Amount:       req.Amount,
		BillNo:       billNo,
		BillDate:     now,
		Purpose:      purpose,
		Documents:    []string{string(ref)},
		Status:       core.StatusPending,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
	}

	err = s.storage.WithTx(ctx, func(q *storage.Queries) error {
		// Re-check under the write lock; another submission may have
		// consumed the headroom since the first check.
		current, err := q.GetDepartment(ctx, dept.ID)
		if err != nil {
			return err
		}
		alloc, err := checkBudget(ctx, q, current, req.Semester, req.Amount, today)
		if err != nil {
			return err
		}
		tx.Semester, tx.Year = alloc.Semester, alloc.Year

		for attempt := 0; ; attempt++ {
			tx.TransactionID = newTransactionID(now)
			err = q.CreateTransaction(ctx, tx)
			if !errors.Is(err, core.ErrConflict) || attempt+1 >= maxIDAttempts {
				return err
			}
		}
	})
	if err != nil {
		s.discardBlob(ctx, ref)
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Bill submitted",
		applog.NewFields().
			WithComponent(applog.ComponentSubmission).
			WithBill(tx.DepartmentID, tx.TransactionID, tx.BillNo, tx.Amount.Paise).
			WithActor(actor.ID, string(actor.Role), actor.DepartmentID).
			ToSlice()...)

	publish(ctx, s.events, amqp.EventSubmission, tx.DepartmentID, tx.ID)
	return tx, nil
}

// checkBudget applies the allocation checks: the department has allocations,
// one of them is active today for semester, and the pending plus verified
// spend against it leaves room for amount. Rejected bills do not count.
func checkBudget(ctx context.Context, q *storage.Queries, d core.Department, semester core.Semester, amount core.Money, today core.Date) (core.Allocation, error) {
	if len(d.Allocations) == 0 {
		return core.Allocation{}, core.InvalidState("no allocations found for department %s", d.Name)
	}
	alloc, ok := d.CurrentAllocation(semester, today)
	if !ok {
		return core.Allocation{}, core.InvalidState("no active allocation window for semester %s on %s", semester, today)
	}
	used, err := q.SumTransactions(ctx, storage.TransactionQuery{
		DepartmentID: d.ID,
		Semester:     alloc.Semester,
		Year:         alloc.Year,
		Statuses:     []core.Status{core.StatusPending, core.StatusVerified},
	})
	if err != nil {
		return core.Allocation{}, err
	}
	if used.Add(amount).Paise > alloc.Amount.Paise {
		remaining := alloc.Amount.Sub(used)
		if remaining.Paise < 0 {
			remaining = core.Money{}
		}
		return core.Allocation{}, core.InvalidState("bill exceeds remaining budget for semester %s. Remaining: %s", alloc.Semester, remaining.Rs())
	}
	return alloc, nil
}

// discardBlob removes a document whose transaction was never recorded.
func (s *SubmissionService) discardBlob(ctx context.Context, ref blobstore.Ref) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), blobCleanupGrace)
	defer cancel()
	if err := s.blobs.Delete(ctx, ref); err != nil {
		slog.WarnContext(ctx, "Orphaned bill document left in storage",
			applog.FieldBlobRef, ref,
			applog.FieldError, err)
	}
}

// OpenDocument returns the merged document of a bill. Admins may open any
// bill; other roles only bills of their own department.
func (s *SubmissionService) OpenDocument(ctx context.Context, actor core.User, id string) (io.ReadCloser, core.Transaction, error) {
	tx, err := s.storage.GetTransaction(ctx, id)
	if err != nil {
		return nil, core.Transaction{}, err
	}
	if actor.Role != core.RoleAdmin && (actor.DepartmentID == "" || actor.DepartmentID != tx.DepartmentID) {
		return nil, core.Transaction{}, core.Forbidden("bill belongs to another department")
	}
	if len(tx.Documents) == 0 {
		return nil, core.Transaction{}, core.NotFound("no document stored for transaction %s", tx.TransactionID)
	}
	rc, err := s.blobs.Open(ctx, blobstore.Ref(tx.Documents[0]))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, core.Transaction{}, core.NotFound("document for transaction %s is missing", tx.TransactionID)
	}
	if err != nil {
		return nil, core.Transaction{}, core.StorageFailure(err, "could not open bill document")
	}
	return rc, tx, nil
}

// newTransactionID builds TXN + last six digits of the epoch millis + six
// random characters.
func newTransactionID(now time.Time) string {
	var b strings.Builder
	b.WriteString("TXN")
	fmt.Fprintf(&b, "%06d", now.UnixMilli()%1_000_000)
	for i := 0; i < 6; i++ {
		b.WriteByte(idAlphabet[rand.IntN(len(idAlphabet))])
	}
	return b.String()
}

func newBillNo(now time.Time) string {
	return fmt.Sprintf("BILL-%06d-%d", now.UnixMilli()%1_000_000, rand.IntN(1000))
}
