package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/trungvu/bridge-worker/internal/models"
	"github.com/trungvu/bridge-worker/internal/platform"
	"github.com/trungvu/bridge-worker/internal/repository"
	"github.com/trungvu/bridge-worker/internal/rules"
	"golang.org/x/sync/errgroup"
)

const (
	// BatchSize bounds the concurrent fan-out per batch.
	BatchSize = 5
	// UnitStagger spreads the units of one batch so the batch start does
	// not hit the target API as a single burst.
	UnitStagger = 200 * time.Millisecond
	// BatchDelay separates consecutive batches; with strictly sequential
	// batches this is the effective throttle.
	BatchDelay = time.Second
	// DeltaThreshold is the absolute change below which a push is
	// suppressed and the sync treated as a successful no-op.
	DeltaThreshold = 1000.0
)

// ErrNotEligible is returned when an explicit sync request resolves to no
// mapping in a syncable status.
var ErrNotEligible = errors.New("no mapping eligible for sync")

// MappingStore is the mapping persistence surface the executor needs.
type MappingStore interface {
	ListByStatuses(ctx context.Context, kind models.MappingKind, statuses []models.MappingStatus, limit int) ([]models.Mapping, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Mapping, error)
	MarkSynced(ctx context.Context, id string, value float64) error
	MarkFailed(ctx context.Context, id string, syncError string) error
}

// LogStore appends audit entries for every transition attempt.
type LogStore interface {
	Append(ctx context.Context, mappingID, action, status, message string, metadata models.JSONB) error
}

// SnapshotStore reads cached source values. The executor never queries
// the source API per unit; freshness is the pull worker's contract.
type SnapshotStore interface {
	GetCustomer(ctx context.Context, id string) (*models.SourceCustomer, error)
	GetProduct(ctx context.Context, id string) (*models.SourceProduct, error)
}

// RuleEvaluator re-checks the gating decision with live data at
// execution time.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, kind models.MappingKind, fields rules.Fields) (rules.Result, error)
}

// ProgressTracker is the job registry the executor reports into.
type ProgressTracker interface {
	Start(ctx context.Context, kind string, total int) (*models.BackgroundJob, error)
	Progress(ctx context.Context, jobID string, processed, successful, failed int) error
	Complete(ctx context.Context, jobID string, metadata models.JSONB) error
	Cancel(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, jobErr error) error
}

type Executor struct {
	mappings  MappingStore
	logs      LogStore
	snapshots SnapshotStore
	rules     RuleEvaluator
	target    platform.TargetClient
	source    platform.SourceClient
	tracker   ProgressTracker

	batchSize   int
	unitStagger time.Duration
	batchDelay  time.Duration
}

func NewExecutor(
	mappings MappingStore,
	logs LogStore,
	snapshots SnapshotStore,
	ruleEvaluator RuleEvaluator,
	target platform.TargetClient,
	tracker ProgressTracker,
) *Executor {
	return &Executor{
		mappings:    mappings,
		logs:        logs,
		snapshots:   snapshots,
		rules:       ruleEvaluator,
		target:      target,
		tracker:     tracker,
		batchSize:   BatchSize,
		unitStagger: UnitStagger,
		batchDelay:  BatchDelay,
	}
}

// UseSourceFallback sets a live point-of-sale client consulted when a
// mapping has no snapshot row yet.
func (e *Executor) UseSourceFallback(source platform.SourceClient) {
	e.source = source
}

// SyncPending pushes every pending mapping of the kind.
func (e *Executor) SyncPending(ctx context.Context, kind models.MappingKind) (*models.BackgroundJob, error) {
	jobKind := models.JobKindSyncCustomers
	if kind == models.KindProduct {
		jobKind = models.JobKindSyncProducts
	}
	return e.runFiltered(ctx, jobKind, kind, []models.MappingStatus{models.MappingPending})
}

// RetryFailed re-runs every failed mapping of the kind, oldest first.
func (e *Executor) RetryFailed(ctx context.Context, kind models.MappingKind) (*models.BackgroundJob, error) {
	jobKind := models.JobKindRetryCustomers
	if kind == models.KindProduct {
		jobKind = models.JobKindRetryProducts
	}
	return e.runFiltered(ctx, jobKind, kind, []models.MappingStatus{models.MappingFailed})
}

// SyncMappings pushes an explicit id set (manual trigger). Mappings that
// are not currently pending or failed are skipped.
func (e *Executor) SyncMappings(ctx context.Context, kind models.MappingKind, ids []string) (*models.BackgroundJob, error) {
	jobKind := models.JobKindSyncCustomers
	if kind == models.KindProduct {
		jobKind = models.JobKindSyncProducts
	}

	mappings, err := e.mappings.GetByIDs(ctx, ids)
	if err != nil {
		return e.failBootstrap(ctx, jobKind, err)
	}

	eligible := make([]models.Mapping, 0, len(mappings))
	for _, m := range mappings {
		if m.Kind != kind {
			continue
		}
		if m.Status == models.MappingPending || m.Status == models.MappingFailed {
			eligible = append(eligible, m)
		} else {
			log.Printf("Mapping %s in status %s skipped from manual sync", m.ID, m.Status)
		}
	}
	if len(eligible) == 0 {
		return nil, ErrNotEligible
	}

	return e.run(ctx, jobKind, kind, eligible)
}

func (e *Executor) runFiltered(ctx context.Context, jobKind string, kind models.MappingKind, statuses []models.MappingStatus) (*models.BackgroundJob, error) {
	mappings, err := e.mappings.ListByStatuses(ctx, kind, statuses, 0)
	if err != nil {
		return e.failBootstrap(ctx, jobKind, err)
	}
	// Nothing eligible: no job row, the scheduled runs would churn empty
	// ones every poll cycle otherwise.
	if len(mappings) == 0 {
		return nil, nil
	}
	return e.run(ctx, jobKind, kind, mappings)
}

// failBootstrap surfaces a job that could not even read its input set.
// Per-unit failures never reach this path.
func (e *Executor) failBootstrap(ctx context.Context, jobKind string, cause error) (*models.BackgroundJob, error) {
	job, startErr := e.tracker.Start(ctx, jobKind, 0)
	if startErr != nil {
		return nil, fmt.Errorf("failed to read eligible mappings: %w", cause)
	}
	if failErr := e.tracker.Fail(ctx, job.ID, cause); failErr != nil {
		log.Printf("Warning: failed to mark job %s failed: %v", job.ID, failErr)
	}
	return job, fmt.Errorf("failed to read eligible mappings: %w", cause)
}

func (e *Executor) run(ctx context.Context, jobKind string, kind models.MappingKind, mappings []models.Mapping) (*models.BackgroundJob, error) {
	job, err := e.tracker.Start(ctx, jobKind, len(mappings))
	if err != nil {
		return nil, fmt.Errorf("failed to start %s job: %w", jobKind, err)
	}

	log.Printf("Starting %s: %d mapping(s)", jobKind, len(mappings))
	startedAt := time.Now()

	for start := 0; start < len(mappings); start += e.batchSize {
		if ctx.Err() != nil {
			log.Printf("Job %s cancelled before batch at offset %d", job.ID, start)
			break
		}

		end := start + e.batchSize
		if end > len(mappings) {
			end = len(mappings)
		}
		batch := mappings[start:end]

		// Bounded fan-out, joined before the next batch starts. Unit
		// failures are absorbed into mapping transitions, never returned.
		g, gctx := errgroup.WithContext(ctx)
		for i, mapping := range batch {
			i, mapping := i, mapping
			g.Go(func() error {
				if i > 0 {
					select {
					case <-gctx.Done():
						return nil
					case <-time.After(time.Duration(i) * e.unitStagger):
					}
				}
				e.processUnit(gctx, kind, mapping, job.ID)
				return nil
			})
		}
		_ = g.Wait()

		if end < len(mappings) && e.batchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.batchDelay):
			}
		}
	}

	elapsed := time.Since(startedAt)

	// A run broken off by shutdown keeps its partial counters but must not
	// read as completed. The finish write uses a detached context since
	// the run context is already cancelled.
	if ctx.Err() != nil {
		if err := e.tracker.Cancel(context.WithoutCancel(ctx), job.ID); err != nil {
			log.Printf("Warning: failed to cancel job %s: %v", job.ID, err)
		}
		log.Printf("Cancelled %s after %s", jobKind, elapsed.Round(time.Millisecond))
		return job, nil
	}

	metadata := models.JSONB{
		"elapsed_seconds": elapsed.Seconds(),
	}
	if elapsed > 0 {
		metadata["throughput_per_second"] = float64(len(mappings)) / elapsed.Seconds()
	}
	if err := e.tracker.Complete(ctx, job.ID, metadata); err != nil {
		log.Printf("Warning: failed to complete job %s: %v", job.ID, err)
	}

	log.Printf("Finished %s in %s", jobKind, elapsed.Round(time.Millisecond))
	return job, nil
}

// processUnit performs one mapping sync end to end. Every outcome lands
// in a mapping transition, a log entry, and a progress increment; errors
// never escape to abort the surrounding batch.
func (e *Executor) processUnit(ctx context.Context, kind models.MappingKind, mapping models.Mapping, jobID string) {
	if mapping.TargetID == nil {
		e.failUnit(ctx, mapping, jobID, "mapping has no target record", nil)
		return
	}

	fields, value, err := e.loadSource(ctx, kind, mapping)
	if err != nil {
		e.failUnit(ctx, mapping, jobID, fmt.Sprintf("failed to read source snapshot: %v", err), nil)
		return
	}

	// Re-check the gate with live data; a skip here aborts just this
	// unit without marking failure.
	evaluation, err := e.rules.Evaluate(ctx, kind, fields)
	if err != nil {
		e.failUnit(ctx, mapping, jobID, fmt.Sprintf("rule evaluation failed: %v", err), nil)
		return
	}
	if evaluation.SkipSync {
		if err := e.logs.Append(ctx, mapping.ID, models.LogActionSync, models.LogStatusSkipped, "skipped by sync rule", models.JSONB{
			"matched_rules": evaluation.MatchedRuleIDs,
		}); err != nil {
			log.Printf("Warning: failed to append skip log for mapping %s: %v", mapping.ID, err)
		}
		e.reportProgress(ctx, jobID, 1, 0)
		return
	}

	// Delta suppression: no meaningful change is a successful no-op sync.
	if mapping.LastSyncedAt != nil && mapping.LastSyncedValue != nil &&
		math.Abs(value-*mapping.LastSyncedValue) < DeltaThreshold {
		if err := e.mappings.MarkSynced(ctx, mapping.ID, value); err != nil {
			e.failUnit(ctx, mapping, jobID, fmt.Sprintf("failed to record suppressed sync: %v", err), nil)
			return
		}
		if err := e.logs.Append(ctx, mapping.ID, models.LogActionSync, models.LogStatusSuccess, "delta below threshold, push suppressed", models.JSONB{
			"previous_value": *mapping.LastSyncedValue,
			"new_value":      value,
			"suppressed":     true,
		}); err != nil {
			log.Printf("Warning: failed to append sync log for mapping %s: %v", mapping.ID, err)
		}
		e.reportProgress(ctx, jobID, 1, 0)
		return
	}

	if err := e.target.PushValue(ctx, kind, *mapping.TargetID, value); err != nil {
		metadata := models.JSONB{"new_value": value}
		if platform.IsRateLimited(err) {
			metadata["rate_limited"] = true
		}
		e.failUnit(ctx, mapping, jobID, err.Error(), metadata)
		return
	}

	if err := e.mappings.MarkSynced(ctx, mapping.ID, value); err != nil {
		e.failUnit(ctx, mapping, jobID, fmt.Sprintf("push succeeded but status update failed: %v", err), nil)
		return
	}

	metadata := models.JSONB{"new_value": value}
	if mapping.LastSyncedValue != nil {
		metadata["previous_value"] = *mapping.LastSyncedValue
	}
	if err := e.logs.Append(ctx, mapping.ID, models.LogActionSync, models.LogStatusSuccess, "value pushed to target", metadata); err != nil {
		log.Printf("Warning: failed to append sync log for mapping %s: %v", mapping.ID, err)
	}
	e.reportProgress(ctx, jobID, 1, 0)
}

func (e *Executor) failUnit(ctx context.Context, mapping models.Mapping, jobID, message string, metadata models.JSONB) {
	if err := e.mappings.MarkFailed(ctx, mapping.ID, message); err != nil {
		log.Printf("Warning: failed to mark mapping %s failed: %v", mapping.ID, err)
	}
	if err := e.logs.Append(ctx, mapping.ID, models.LogActionSync, models.LogStatusFailed, message, metadata); err != nil {
		log.Printf("Warning: failed to append failure log for mapping %s: %v", mapping.ID, err)
	}
	e.reportProgress(ctx, jobID, 0, 1)
}

func (e *Executor) reportProgress(ctx context.Context, jobID string, successful, failed int) {
	if err := e.tracker.Progress(ctx, jobID, 1, successful, failed); err != nil {
		log.Printf("Warning: failed to report progress for job %s: %v", jobID, err)
	}
}

func (e *Executor) loadSource(ctx context.Context, kind models.MappingKind, mapping models.Mapping) (rules.Fields, float64, error) {
	switch kind {
	case models.KindCustomer:
		customer, err := e.snapshots.GetCustomer(ctx, mapping.SourceID)
		if errors.Is(err, repository.ErrNotFound) && e.source != nil {
			value, fetchErr := e.fetchLive(ctx, kind, mapping.SourceID)
			if fetchErr != nil {
				return rules.Fields{}, 0, fetchErr
			}
			live := models.SourceCustomer{ID: mapping.SourceID, Name: mapping.SourceName, TotalSpent: value}
			return rules.CustomerFields(live, &mapping), value, nil
		}
		if err != nil {
			return rules.Fields{}, 0, err
		}
		return rules.CustomerFields(*customer, &mapping), customer.TotalSpent, nil
	case models.KindProduct:
		product, err := e.snapshots.GetProduct(ctx, mapping.SourceID)
		if errors.Is(err, repository.ErrNotFound) && e.source != nil {
			value, fetchErr := e.fetchLive(ctx, kind, mapping.SourceID)
			if fetchErr != nil {
				return rules.Fields{}, 0, fetchErr
			}
			live := models.SourceProduct{ID: mapping.SourceID, Name: mapping.SourceName, Quantity: value}
			return rules.ProductFields(live, nil, &mapping), value, nil
		}
		if err != nil {
			return rules.Fields{}, 0, err
		}
		return rules.ProductFields(*product, nil, &mapping), product.Quantity, nil
	default:
		return rules.Fields{}, 0, fmt.Errorf("unknown mapping kind %q", kind)
	}
}

func (e *Executor) fetchLive(ctx context.Context, kind models.MappingKind, sourceID string) (float64, error) {
	value, err := e.source.FetchValue(ctx, kind, sourceID)
	if err != nil {
		return 0, fmt.Errorf("snapshot missing and live fetch failed: %w", err)
	}
	log.Printf("Snapshot missing for %s %s, using live value", kind, sourceID)
	return value, nil
}
