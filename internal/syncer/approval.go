package syncer

import (
	"context"
	"fmt"
	"log"

	"github.com/trungvu/bridge-worker/internal/models"
)

// ApprovalStore is the mapping surface the approval workflow needs.
type ApprovalStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.Mapping, error)
	Approve(ctx context.Context, ids []string) (int64, error)
	Reject(ctx context.Context, ids []string) (int64, error)
}

// Approver resolves pending_approval mappings in bulk. Mappings not
// currently awaiting approval are silently left alone; the returned count
// says how many actually transitioned.
type Approver struct {
	mappings ApprovalStore
	logs     LogStore
}

func NewApprover(mappings ApprovalStore, logs LogStore) *Approver {
	return &Approver{mappings: mappings, logs: logs}
}

// Approve moves the given mappings to pending, making them eligible for
// the next sync batch.
func (a *Approver) Approve(ctx context.Context, ids []string) (int64, error) {
	awaiting, err := a.awaitingApproval(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to approve mappings: %w", err)
	}

	transitioned, err := a.mappings.Approve(ctx, awaiting)
	if err != nil {
		return 0, fmt.Errorf("failed to approve mappings: %w", err)
	}
	a.appendLogs(ctx, awaiting, models.LogActionApprove, models.MappingPending, "approved by operator")
	log.Printf("Approved %d of %d requested mapping(s)", transitioned, len(ids))
	return transitioned, nil
}

// Reject moves the given mappings to failed with the fixed rejection
// error.
func (a *Approver) Reject(ctx context.Context, ids []string) (int64, error) {
	awaiting, err := a.awaitingApproval(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to reject mappings: %w", err)
	}

	transitioned, err := a.mappings.Reject(ctx, awaiting)
	if err != nil {
		return 0, fmt.Errorf("failed to reject mappings: %w", err)
	}
	a.appendLogs(ctx, awaiting, models.LogActionReject, models.MappingFailed, "rejected by operator")
	log.Printf("Rejected %d of %d requested mapping(s)", transitioned, len(ids))
	return transitioned, nil
}

// awaitingApproval narrows the requested ids to mappings currently in
// pending_approval, so mappings that were already resolved never pick up
// an audit entry for a transition that did not happen in this call.
func (a *Approver) awaitingApproval(ctx context.Context, ids []string) ([]string, error) {
	mappings, err := a.mappings.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	awaiting := make([]string, 0, len(mappings))
	for _, m := range mappings {
		if m.Status == models.MappingPendingApproval {
			awaiting = append(awaiting, m.ID)
		}
	}
	return awaiting, nil
}

// appendLogs writes one audit entry per mapping that actually carries the
// post-transition status.
func (a *Approver) appendLogs(ctx context.Context, ids []string, action string, wantStatus models.MappingStatus, message string) {
	if len(ids) == 0 {
		return
	}
	mappings, err := a.mappings.GetByIDs(ctx, ids)
	if err != nil {
		log.Printf("Warning: failed to load mappings for %s audit: %v", action, err)
		return
	}
	for _, m := range mappings {
		if m.Status != wantStatus {
			continue
		}
		if err := a.logs.Append(ctx, m.ID, action, models.LogStatusSuccess, message, nil); err != nil {
			log.Printf("Warning: failed to append %s log for mapping %s: %v", action, m.ID, err)
		}
	}
}
