package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/trungvu/bridge-worker/internal/models"
)

// JobStore is the persistence surface behind the tracker.
type JobStore interface {
	CancelRunning(ctx context.Context, kind string) (int64, error)
	Create(ctx context.Context, kind string, total int) (*models.BackgroundJob, error)
	IncrementProgress(ctx context.Context, id string, processed, successful, failed int) error
	Finish(ctx context.Context, id string, status models.JobStatus, jobError *string, metadata models.JSONB) error
	GetByID(ctx context.Context, id string) (*models.BackgroundJob, error)
}

// Tracker is the job registry keyed by kind. It records aggregate batch
// progress so operators can poll a single row instead of observing the
// executor. Cancellation is registry-level only: a superseded job's
// already-dispatched work keeps running and still writes its results.
type Tracker struct {
	store JobStore
}

func NewTracker(store JobStore) *Tracker {
	return &Tracker{store: store}
}

// Start opens a new running job of the kind, displacing any job of the
// same kind still marked running (single-flight per kind).
func (t *Tracker) Start(ctx context.Context, kind string, total int) (*models.BackgroundJob, error) {
	displaced, err := t.store.CancelRunning(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel previous %s job: %w", kind, err)
	}
	if displaced > 0 {
		log.Printf("Cancelled %d stale running job(s) of kind %s", displaced, kind)
	}

	job, err := t.store.Create(ctx, kind, total)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s job: %w", kind, err)
	}
	return job, nil
}

// Progress records one increment. Safe to call from parallel batch
// workers; the store performs the increment atomically.
func (t *Tracker) Progress(ctx context.Context, jobID string, processed, successful, failed int) error {
	return t.store.IncrementProgress(ctx, jobID, processed, successful, failed)
}

// Complete finishes the job successfully with optional progress detail.
func (t *Tracker) Complete(ctx context.Context, jobID string, metadata models.JSONB) error {
	return t.store.Finish(ctx, jobID, models.JobCompleted, nil, metadata)
}

// Cancel finishes the job as cancelled, keeping the partial counters.
func (t *Tracker) Cancel(ctx context.Context, jobID string) error {
	return t.store.Finish(ctx, jobID, models.JobCancelled, nil, nil)
}

// Fail finishes the job with an error. Only bootstrap failures reach
// here; per-unit failures stay inside the progress counters.
func (t *Tracker) Fail(ctx context.Context, jobID string, jobErr error) error {
	msg := jobErr.Error()
	return t.store.Finish(ctx, jobID, models.JobFailed, &msg, nil)
}

// Get reads the current job row for observers.
func (t *Tracker) Get(ctx context.Context, jobID string) (*models.BackgroundJob, error) {
	return t.store.GetByID(ctx, jobID)
}
