package services

import (
	"context"
	"log/slog"
	"time"

	"deptfunds/internal/amqp"
	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
	"deptfunds/internal/pdfmerge"
)

type (
	// DocumentMerger turns the files attached to a bill into one PDF.
	DocumentMerger interface {
		Merge(ctx context.Context, files []pdfmerge.File) ([]byte, error)
	}

	// EventPublisher announces committed ledger changes.
	EventPublisher interface {
		PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
	}
)

// clock yields the current instant and the location calendar days are read in.
type clock struct {
	now func() time.Time
	loc *time.Location
}

func newClock(loc *time.Location) clock {
	if loc == nil {
		loc = time.Local
	}
	return clock{now: time.Now, loc: loc}
}

func (c clock) today() (time.Time, core.Date) {
	now := c.now()
	return now, core.DateOf(now, c.loc)
}

// publish sends a ledger event after a commit. Failures are logged and
// swallowed: the database is the source of truth and the mirror can be rebuilt.
func publish(ctx context.Context, p EventPublisher, kind amqp.EventKind, departmentID, ref string) {
	if p == nil {
		return
	}
	if err := p.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(kind, departmentID, ref)); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger event",
			applog.FieldEventKind, kind,
			applog.FieldDepartmentID, departmentID,
			"ref", ref,
			applog.FieldError, err)
	}
}
