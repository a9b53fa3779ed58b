package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
	"deptfunds/internal/storage"
)

// ReconcilerConfig holds configuration for the reconciler
type ReconcilerConfig struct {
	// Interval is how often cached totals are checked (default: 10m)
	Interval time.Duration
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{Interval: 10 * time.Minute}
}

// Drift is one department whose cached utilized total disagreed with its bills.
type Drift struct {
	DepartmentID string
	Cached       core.Money
	Actual       core.Money
}

// Reconciler keeps each department's cached utilized total equal to the sum
// of its verified bills, which are the source of truth.
type Reconciler struct {
	storage *storage.SQLiteRepository
	config  ReconcilerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconciler(storage *storage.SQLiteRepository, config ReconcilerConfig) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = DefaultReconcilerConfig().Interval
	}
	return &Reconciler{storage: storage, config: config}
}

// Start begins the reconciliation loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Reconciler started", "interval", r.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.runOnce(ctx)
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	drifts, err := r.Reconcile(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Reconciliation failed",
			applog.FieldComponent, applog.ComponentReconcile,
			applog.FieldError, err)
		return
	}
	for _, d := range drifts {
		slog.WarnContext(ctx, "Repaired utilized fund drift",
			applog.FieldComponent, applog.ComponentReconcile,
			applog.FieldDepartmentID, d.DepartmentID,
			"cached_paise", d.Cached.Paise,
			"actual_paise", d.Actual.Paise)
	}
}

// Reconcile recomputes every department's utilized total from its verified
// bills and overwrites cached values that drifted. Each department is
// checked and repaired in its own transaction.
func (r *Reconciler) Reconcile(ctx context.Context) ([]Drift, error) {
	depts, err := r.storage.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	for _, listed := range depts {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		err := r.storage.WithTx(ctx, func(q *storage.Queries) error {
			d, err := q.GetDepartment(ctx, listed.ID)
			if err != nil {
				return err
			}
			actual, err := q.SumTransactions(ctx, storage.TransactionQuery{
				DepartmentID: d.ID,
				Statuses:     []core.Status{core.StatusVerified},
			})
			if err != nil {
				return err
			}
			if actual == d.UtilizedFund {
				return nil
			}
			if err := q.SetUtilized(ctx, d.ID, actual); err != nil {
				return err
			}
			drifts = append(drifts, Drift{DepartmentID: d.ID, Cached: d.UtilizedFund, Actual: actual})
			return nil
		})
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return drifts, fmt.Errorf("reconcile department %s: %w", listed.ID, err)
		}
	}
	return drifts, nil
}
