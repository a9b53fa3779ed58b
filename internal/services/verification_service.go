package services

import (
	"context"
	"log/slog"

	"deptfunds/internal/amqp"
	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
	"deptfunds/internal/storage"
)

// VerificationService moves pending bills to a terminal status.
type VerificationService struct {
	storage *storage.SQLiteRepository
	events  EventPublisher
}

func NewVerificationService(storage *storage.SQLiteRepository, events EventPublisher) *VerificationService {
	return &VerificationService{storage: storage, events: events}
}

// Verify decides a pending bill. The caller must be the HOD of the bill's
// department and the bill must have been uploaded by that department's
// current Coordinator. Only pending bills can be decided; the status change
// and the utilized increment commit together.
func (s *VerificationService) Verify(ctx context.Context, actor core.User, id string, target core.Status) (core.Transaction, error) {
	if target != core.StatusVerified && target != core.StatusRejected {
		return core.Transaction{}, core.InvalidInput("%v", core.ErrInvalidDecision)
	}
	if actor.Role != core.RoleHOD {
		return core.Transaction{}, core.Forbidden("only an HOD can verify bills")
	}

	var tx core.Transaction
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		if tx, err = q.GetTransaction(ctx, id); err != nil {
			return err
		}
		dept, err := q.GetDepartment(ctx, tx.DepartmentID)
		if err != nil {
			return err
		}
		if actor.DepartmentID != dept.ID || dept.HODUserID != actor.ID {
			return core.Forbidden("you are not the HOD of this bill's department")
		}
		if !dept.HasCoordinator(tx.CreatedBy) {
			return core.Forbidden("bill was not uploaded by the department's current coordinator")
		}
		if !tx.Status.CanTransition(target) {
			return core.InvalidState("transaction %s is already %s", tx.TransactionID, tx.Status)
		}

		changed, err := q.TransitionStatus(ctx, tx.ID, core.StatusPending, target)
		if err != nil {
			return err
		}
		if !changed {
			return core.InvalidState("transaction %s was decided concurrently", tx.TransactionID)
		}
		if target == core.StatusVerified {
			if err := q.AddUtilized(ctx, dept.ID, tx.Amount); err != nil {
				return err
			}
		}
		tx.Status = target
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	fields := applog.NewFields().
		WithComponent(applog.ComponentVerify).
		WithBill(tx.DepartmentID, tx.TransactionID, tx.BillNo, tx.Amount.Paise).
		WithActor(actor.ID, string(actor.Role), actor.DepartmentID)
	fields[applog.FieldStatus] = tx.Status
	slog.InfoContext(ctx, "Bill decided", fields.ToSlice()...)

	publish(ctx, s.events, amqp.EventDecision, tx.DepartmentID, tx.ID)
	return tx, nil
}
