package watcher

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/trungvu/bridge-worker/internal/config"
	"github.com/trungvu/bridge-worker/internal/match"
	"github.com/trungvu/bridge-worker/internal/models"
	"github.com/trungvu/bridge-worker/internal/repository"
	"github.com/trungvu/bridge-worker/internal/rules"
	"github.com/trungvu/bridge-worker/internal/syncer"
)

type mockSources struct {
	customers []models.SourceCustomer
	products  []models.SourceProduct
}

func (m *mockSources) ListCustomers(ctx context.Context) ([]models.SourceCustomer, error) {
	return m.customers, nil
}

func (m *mockSources) ListProducts(ctx context.Context) ([]models.SourceProduct, error) {
	return m.products, nil
}

type mockTargets struct {
	customers []models.TargetCustomer
	products  []models.TargetProduct
}

func (m *mockTargets) ListCustomers(ctx context.Context) ([]models.TargetCustomer, error) {
	return m.customers, nil
}

func (m *mockTargets) ListProducts(ctx context.Context) ([]models.TargetProduct, error) {
	return m.products, nil
}

func (m *mockTargets) CountCustomers(ctx context.Context) (int64, error) {
	return int64(len(m.customers)), nil
}

func (m *mockTargets) CountProducts(ctx context.Context) (int64, error) {
	return int64(len(m.products)), nil
}

func (m *mockTargets) SearchCustomersByKeys(ctx context.Context, variants []string) ([]models.TargetCustomer, error) {
	return nil, nil
}

func (m *mockTargets) SearchProductsByKeys(ctx context.Context, variants []string) ([]models.TargetProduct, error) {
	return nil, nil
}

type mockMappingStore struct {
	mu       sync.Mutex
	mappings map[string]*models.Mapping
}

func newMockMappingStore() *mockMappingStore {
	return &mockMappingStore{mappings: make(map[string]*models.Mapping)}
}

func (s *mockMappingStore) Create(ctx context.Context, mapping models.Mapping) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.SourceID == mapping.SourceID {
			return false, nil
		}
	}
	s.mappings[mapping.ID] = &mapping
	return true, nil
}

func (s *mockMappingStore) MappedSourceIDs(ctx context.Context, kind models.MappingKind) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapped := make(map[string]bool)
	for _, m := range s.mappings {
		if m.Kind == kind {
			mapped[m.SourceID] = true
		}
	}
	return mapped, nil
}

func (s *mockMappingStore) ListByStatuses(ctx context.Context, kind models.MappingKind, statuses []models.MappingStatus, limit int) ([]models.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Mapping
	for _, m := range s.mappings {
		if m.Kind != kind {
			continue
		}
		for _, status := range statuses {
			if m.Status == status {
				out = append(out, *m)
				break
			}
		}
	}
	return out, nil
}

func (s *mockMappingStore) GetByIDs(ctx context.Context, ids []string) ([]models.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Mapping
	for _, id := range ids {
		if m, ok := s.mappings[id]; ok {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *mockMappingStore) MarkSynced(ctx context.Context, id string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.mappings[id]
	m.Status = models.MappingSynced
	m.LastSyncedValue = &value
	return nil
}

func (s *mockMappingStore) MarkFailed(ctx context.Context, id string, syncError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.mappings[id]
	m.Status = models.MappingFailed
	m.SyncError = &syncError
	return nil
}

func (s *mockMappingStore) countByStatus(status models.MappingStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.mappings {
		if m.Status == status {
			n++
		}
	}
	return n
}

type mockLogStore struct {
	mu      sync.Mutex
	entries int
}

func (s *mockLogStore) Append(ctx context.Context, mappingID, action, status, message string, metadata models.JSONB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries++
	return nil
}

type mockSnapshots struct {
	customers map[string]models.SourceCustomer
	products  map[string]models.SourceProduct
}

func (s *mockSnapshots) GetCustomer(ctx context.Context, id string) (*models.SourceCustomer, error) {
	if c, ok := s.customers[id]; ok {
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (s *mockSnapshots) GetProduct(ctx context.Context, id string) (*models.SourceProduct, error) {
	if p, ok := s.products[id]; ok {
		return &p, nil
	}
	return nil, repository.ErrNotFound
}

type mockEvaluator struct{}

func (m *mockEvaluator) Evaluate(ctx context.Context, kind models.MappingKind, fields rules.Fields) (rules.Result, error) {
	return rules.Result{}, nil
}

type mockTarget struct {
	mu     sync.Mutex
	pushes int
}

func (m *mockTarget) PushValue(ctx context.Context, kind models.MappingKind, targetID string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes++
	return nil
}

func (m *mockTarget) pushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushes
}

type mockTracker struct {
	mu    sync.Mutex
	seq   int
	jobs  map[string]*models.BackgroundJob
	order []string
}

func newMockTracker() *mockTracker {
	return &mockTracker{jobs: make(map[string]*models.BackgroundJob)}
}

func (t *mockTracker) Start(ctx context.Context, kind string, total int) (*models.BackgroundJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, job := range t.jobs {
		if job.Kind == kind && job.Status == models.JobRunning {
			job.Status = models.JobCancelled
		}
	}
	t.seq++
	job := &models.BackgroundJob{ID: fmt.Sprintf("job-%d", t.seq), Kind: kind, Status: models.JobRunning, Total: total}
	t.jobs[job.ID] = job
	t.order = append(t.order, job.ID)
	return job, nil
}

func (t *mockTracker) Progress(ctx context.Context, jobID string, processed, successful, failed int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.jobs[jobID]
	job.Processed += processed
	job.Successful += successful
	job.Failed += failed
	return nil
}

func (t *mockTracker) Complete(ctx context.Context, jobID string, metadata models.JSONB) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job := t.jobs[jobID]; job.Status == models.JobRunning {
		job.Status = models.JobCompleted
		job.Metadata = metadata
	}
	return nil
}

func (t *mockTracker) Cancel(ctx context.Context, jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job := t.jobs[jobID]; job.Status == models.JobRunning {
		job.Status = models.JobCancelled
	}
	return nil
}

func (t *mockTracker) Fail(ctx context.Context, jobID string, jobErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job := t.jobs[jobID]; job.Status == models.JobRunning {
		job.Status = models.JobFailed
		msg := jobErr.Error()
		job.Error = &msg
	}
	return nil
}

// byKind returns the most recently started job of the kind.
func (t *mockTracker) byKind(kind string) *models.BackgroundJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.order) - 1; i >= 0; i-- {
		if job := t.jobs[t.order[i]]; job.Kind == kind {
			copied := *job
			return &copied
		}
	}
	return nil
}

func TestRunCycle_TracksMatchRunsAsJobs(t *testing.T) {
	sourcePhone := "0912345678"
	targetPhone := "+84912345678"
	sources := &mockSources{customers: []models.SourceCustomer{
		{ID: "src-1", Name: "Nguyen Thu", Phone: &sourcePhone, TotalSpent: 2000000},
	}}
	targets := &mockTargets{customers: []models.TargetCustomer{
		{ID: "tgt-1", Name: "Thu Nguyen", Phone: &targetPhone},
	}}

	store := newMockMappingStore()
	logs := &mockLogStore{}
	evaluator := &mockEvaluator{}
	snapshots := &mockSnapshots{customers: map[string]models.SourceCustomer{
		"src-1": {ID: "src-1", TotalSpent: 2000000},
	}}
	target := &mockTarget{}
	tracker := newMockTracker()

	matcher := match.NewMatcher(store, logs, evaluator)
	executor := syncer.NewExecutor(store, logs, snapshots, evaluator, target, tracker)

	w := New(&config.Config{PollInterval: 60}, sources, targets, matcher, executor, tracker)
	w.runCycle(context.Background())

	matchJob := tracker.byKind(models.JobKindMatchCustomers)
	if matchJob == nil {
		t.Fatal("expected a tracked customer match job")
	}
	if matchJob.Status != models.JobCompleted {
		t.Errorf("expected match job completed, got %s", matchJob.Status)
	}
	if matchJob.Total != 1 || matchJob.Processed != 1 || matchJob.Successful != 1 {
		t.Errorf("expected 1/1/1 counters, got %d/%d/%d", matchJob.Total, matchJob.Processed, matchJob.Successful)
	}
	if matchJob.Metadata["created"] != 1 {
		t.Errorf("expected created=1 in metadata, got %v", matchJob.Metadata)
	}

	syncJob := tracker.byKind(models.JobKindSyncCustomers)
	if syncJob == nil {
		t.Fatal("expected the created mapping to be synced in the same cycle")
	}
	if syncJob.Status != models.JobCompleted {
		t.Errorf("expected sync job completed, got %s", syncJob.Status)
	}
	if target.pushCount() != 1 {
		t.Errorf("expected 1 push, got %d", target.pushCount())
	}
	if store.countByStatus(models.MappingSynced) != 1 {
		t.Errorf("expected the mapping synced, got %d", store.countByStatus(models.MappingSynced))
	}

	// Empty stages churn no job rows.
	for _, kind := range []string{
		models.JobKindMatchProducts,
		models.JobKindSyncProducts,
		models.JobKindRetryCustomers,
		models.JobKindRetryProducts,
	} {
		if job := tracker.byKind(kind); job != nil {
			t.Errorf("expected no %s job for an empty stage, got %+v", kind, job)
		}
	}
}

func TestRunCycle_SecondCycleIsIdempotent(t *testing.T) {
	sourcePhone := "0912345678"
	targetPhone := "+84912345678"
	sources := &mockSources{customers: []models.SourceCustomer{
		{ID: "src-1", Phone: &sourcePhone, TotalSpent: 2000000},
	}}
	targets := &mockTargets{customers: []models.TargetCustomer{
		{ID: "tgt-1", Phone: &targetPhone},
	}}

	store := newMockMappingStore()
	snapshots := &mockSnapshots{customers: map[string]models.SourceCustomer{
		"src-1": {ID: "src-1", TotalSpent: 2000000},
	}}
	target := &mockTarget{}
	tracker := newMockTracker()

	matcher := match.NewMatcher(store, &mockLogStore{}, &mockEvaluator{})
	executor := syncer.NewExecutor(store, &mockLogStore{}, snapshots, &mockEvaluator{}, target, tracker)

	w := New(&config.Config{PollInterval: 60}, sources, targets, matcher, executor, tracker)
	w.runCycle(context.Background())
	w.runCycle(context.Background())

	if got := len(store.mappings); got != 1 {
		t.Errorf("expected a single mapping across cycles, got %d", got)
	}

	second := tracker.byKind(models.JobKindMatchCustomers)
	if second == nil || second.Successful != 0 {
		t.Errorf("expected the surviving match job to have created nothing, got %+v", second)
	}
}
