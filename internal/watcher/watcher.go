package watcher

import (
	"context"
	"log"
	"time"

	"github.com/trungvu/bridge-worker/internal/config"
	"github.com/trungvu/bridge-worker/internal/match"
	"github.com/trungvu/bridge-worker/internal/models"
	"github.com/trungvu/bridge-worker/internal/syncer"
)

// PushdownThreshold is the target snapshot size above which the watcher
// switches from the in-memory candidate index to the query-pushdown one.
const PushdownThreshold = 5000

// SourceReader lists the point-of-sale snapshot.
type SourceReader interface {
	ListCustomers(ctx context.Context) ([]models.SourceCustomer, error)
	ListProducts(ctx context.Context) ([]models.SourceProduct, error)
}

// TargetReader lists and searches the storefront snapshot.
type TargetReader interface {
	match.TargetSearcher
	ListCustomers(ctx context.Context) ([]models.TargetCustomer, error)
	ListProducts(ctx context.Context) ([]models.TargetProduct, error)
	CountCustomers(ctx context.Context) (int64, error)
	CountProducts(ctx context.Context) (int64, error)
}

// JobTracker records match runs as background jobs, single-flight per
// kind.
type JobTracker interface {
	Start(ctx context.Context, kind string, total int) (*models.BackgroundJob, error)
	Progress(ctx context.Context, jobID string, processed, successful, failed int) error
	Complete(ctx context.Context, jobID string, metadata models.JSONB) error
	Fail(ctx context.Context, jobID string, jobErr error) error
}

type Watcher struct {
	cfg      *config.Config
	sources  SourceReader
	targets  TargetReader
	matcher  *match.Matcher
	executor *syncer.Executor
	tracker  JobTracker
}

func New(
	cfg *config.Config,
	sources SourceReader,
	targets TargetReader,
	matcher *match.Matcher,
	executor *syncer.Executor,
	tracker JobTracker,
) *Watcher {
	return &Watcher{
		cfg:      cfg,
		sources:  sources,
		targets:  targets,
		matcher:  matcher,
		executor: executor,
		tracker:  tracker,
	}
}

// Start begins the periodic reconciliation loop
func (w *Watcher) Start(ctx context.Context) error {
	log.Println("Starting watcher for match and sync cycles...")

	// Run a cycle immediately to pick up work left from previous runs
	w.runCycle(ctx)

	// Start polling loop
	ticker := time.NewTicker(time.Duration(w.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Watcher shutting down...")
			return ctx.Err()
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle performs one reconciliation pass: match new records, push
// pending mappings, retry failed ones. Each stage logs and moves on when
// it errors so one bad stage does not starve the others.
func (w *Watcher) runCycle(ctx context.Context) {
	if err := w.matchCustomers(ctx); err != nil {
		log.Printf("Error matching customers: %v", err)
	}
	if err := w.matchProducts(ctx); err != nil {
		log.Printf("Error matching products: %v", err)
	}

	for _, kind := range []models.MappingKind{models.KindCustomer, models.KindProduct} {
		if _, err := w.executor.SyncPending(ctx, kind); err != nil {
			log.Printf("Error syncing pending %s mappings: %v", kind, err)
		}
		if _, err := w.executor.RetryFailed(ctx, kind); err != nil {
			log.Printf("Error retrying failed %s mappings: %v", kind, err)
		}
	}
}

func (w *Watcher) matchCustomers(ctx context.Context) error {
	sources, err := w.sources.ListCustomers(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return nil
	}

	index, err := w.customerIndex(ctx)
	if err != nil {
		return err
	}

	job, err := w.tracker.Start(ctx, models.JobKindMatchCustomers, len(sources))
	if err != nil {
		return err
	}

	stats, _, err := w.matcher.MatchCustomers(ctx, sources, index)
	if err != nil {
		if failErr := w.tracker.Fail(ctx, job.ID, err); failErr != nil {
			log.Printf("Warning: failed to mark job %s failed: %v", job.ID, failErr)
		}
		return err
	}

	w.finishMatchJob(ctx, job.ID, len(sources), stats, models.JSONB{
		"unmatched": stats.Total,
		"created":   stats.Created,
		"ambiguous": stats.Ambiguous,
		"no_match":  stats.NoMatch,
		"skipped":   stats.Skipped,
	})
	if stats.Total > 0 {
		log.Printf("Customer matching: %d unmatched, %d created, %d ambiguous, %d no match, %d skipped",
			stats.Total, stats.Created, stats.Ambiguous, stats.NoMatch, stats.Skipped)
	}
	return nil
}

func (w *Watcher) matchProducts(ctx context.Context) error {
	sources, err := w.sources.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return nil
	}

	index, err := w.productIndex(ctx)
	if err != nil {
		return err
	}

	job, err := w.tracker.Start(ctx, models.JobKindMatchProducts, len(sources))
	if err != nil {
		return err
	}

	stats, _, err := w.matcher.MatchProducts(ctx, sources, index)
	if err != nil {
		if failErr := w.tracker.Fail(ctx, job.ID, err); failErr != nil {
			log.Printf("Warning: failed to mark job %s failed: %v", job.ID, failErr)
		}
		return err
	}

	w.finishMatchJob(ctx, job.ID, len(sources), stats, models.JSONB{
		"unmatched": stats.Total,
		"created":   stats.Created,
		"ambiguous": stats.Ambiguous,
		"excluded":  stats.Excluded,
		"no_match":  stats.NoMatch,
		"skipped":   stats.Skipped,
	})
	if stats.Total > 0 {
		log.Printf("Product matching: %d unmatched, %d created, %d ambiguous, %d excluded, %d no match, %d skipped",
			stats.Total, stats.Created, stats.Ambiguous, stats.Excluded, stats.NoMatch, stats.Skipped)
	}
	return nil
}

// finishMatchJob records the run's counters: every listed source record
// counts as processed, every created mapping as successful.
func (w *Watcher) finishMatchJob(ctx context.Context, jobID string, total int, stats match.Stats, metadata models.JSONB) {
	if err := w.tracker.Progress(ctx, jobID, total, stats.Created, 0); err != nil {
		log.Printf("Warning: failed to report progress for job %s: %v", jobID, err)
	}
	if err := w.tracker.Complete(ctx, jobID, metadata); err != nil {
		log.Printf("Warning: failed to complete job %s: %v", jobID, err)
	}
}

// customerIndex picks an index strategy by snapshot size: small snapshots
// get one pass and an in-memory map, large ones push the lookup into the
// database.
func (w *Watcher) customerIndex(ctx context.Context) (match.CandidateIndex, error) {
	count, err := w.targets.CountCustomers(ctx)
	if err != nil {
		return nil, err
	}
	if count > PushdownThreshold {
		return match.NewQueryIndex(models.KindCustomer, w.targets), nil
	}

	customers, err := w.targets.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]match.TargetEntry, 0, len(customers))
	for _, c := range customers {
		entries = append(entries, match.CustomerEntry(c))
	}
	return match.NewMemoryIndex(entries), nil
}

func (w *Watcher) productIndex(ctx context.Context) (match.CandidateIndex, error) {
	count, err := w.targets.CountProducts(ctx)
	if err != nil {
		return nil, err
	}
	if count > PushdownThreshold {
		return match.NewQueryIndex(models.KindProduct, w.targets), nil
	}

	products, err := w.targets.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]match.TargetEntry, 0, len(products))
	for _, p := range products {
		entries = append(entries, match.ProductEntry(p))
	}
	return match.NewMemoryIndex(entries), nil
}
