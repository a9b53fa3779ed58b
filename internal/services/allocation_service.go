package services

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"deptfunds/internal/amqp"
	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
	"deptfunds/internal/storage"
)

// AllocationRequest grants amount to a department for a semester window.
type AllocationRequest struct {
	DepartmentID string
	Amount       core.Money
	Semester     core.Semester
	Year         string
	StartDate    core.Date
	EndDate      core.Date
}

// AllocationService appends budget grants to departments.
type AllocationService struct {
	storage *storage.SQLiteRepository
	events  EventPublisher
	clock   clock
}

func NewAllocationService(storage *storage.SQLiteRepository, events EventPublisher) *AllocationService {
	return &AllocationService{storage: storage, events: events, clock: newClock(time.UTC)}
}

// Allocate records the grant and raises the department's allocated total.
// Overlapping grants for the same semester/year are additive.
func (s *AllocationService) Allocate(ctx context.Context, req AllocationRequest) (core.Department, error) {
	a := core.Allocation{
		Amount:    req.Amount,
		Semester:  req.Semester,
		Year:      strings.TrimSpace(req.Year),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		CreatedAt: s.clock.now(),
	}
	if err := a.Validate(); err != nil {
		return core.Department{}, core.InvalidInput("%v", err)
	}

	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetDepartment(ctx, req.DepartmentID); err != nil {
			return err
		}
		saved, err := q.AppendAllocation(ctx, req.DepartmentID, a)
		if err != nil {
			return err
		}
		a = saved
		return nil
	})
	if err != nil {
		return core.Department{}, err
	}

	slog.InfoContext(ctx, "Fund allocated",
		applog.FieldComponent, applog.ComponentAllocation,
		applog.FieldDepartmentID, req.DepartmentID,
		applog.FieldAmountPaise, a.Amount.Paise,
		applog.FieldSemester, a.Semester,
		applog.FieldYear, a.Year)

	publish(ctx, s.events, amqp.EventAllocation, req.DepartmentID, strconv.FormatInt(a.ID, 10))

	return s.storage.GetDepartment(ctx, req.DepartmentID)
}
