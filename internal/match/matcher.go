package match

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/trungvu/bridge-worker/internal/models"
	"github.com/trungvu/bridge-worker/internal/normalize"
	"github.com/trungvu/bridge-worker/internal/rules"
)

type Decision string

const (
	// DecisionMatched: exactly one candidate, a mapping is proposed.
	DecisionMatched Decision = "matched"
	// DecisionNoMatch: no candidate, nothing to do.
	DecisionNoMatch Decision = "no_match"
	// DecisionAmbiguous: two or more candidates. The matcher never guesses
	// among plausible identities; a wrong auto-link is worse than a missed
	// one. Left for manual resolution.
	DecisionAmbiguous Decision = "ambiguous"
	// DecisionExcluded: the unique candidate is also the unique candidate
	// of another source record, which would break the one-to-one invariant.
	DecisionExcluded Decision = "excluded"
	// DecisionSkipped: the source record has no usable identifier.
	DecisionSkipped Decision = "skipped"
)

// Result reports the classification of one source record. Ambiguous and
// excluded results carry the full candidate list for manual resolution.
type Result struct {
	SourceID   string
	SourceName string
	Decision   Decision
	Candidates []Candidate
}

type Stats struct {
	Total     int
	Matched   int
	Created   int
	NoMatch   int
	Ambiguous int
	Excluded  int
	Skipped   int
}

// MappingStore is the persistence surface the matcher needs.
type MappingStore interface {
	Create(ctx context.Context, mapping models.Mapping) (bool, error)
	MappedSourceIDs(ctx context.Context, kind models.MappingKind) (map[string]bool, error)
}

// LogStore appends audit entries for created mappings.
type LogStore interface {
	Append(ctx context.Context, mappingID, action, status, message string, metadata models.JSONB) error
}

// PreSyncEvaluator runs the rule engine's pre-check at mapping creation;
// a require-approval outcome demotes the new mapping to pending_approval.
type PreSyncEvaluator interface {
	Evaluate(ctx context.Context, kind models.MappingKind, fields rules.Fields) (rules.Result, error)
}

type Matcher struct {
	mappings  MappingStore
	logs      LogStore
	evaluator PreSyncEvaluator
}

func NewMatcher(mappings MappingStore, logs LogStore, evaluator PreSyncEvaluator) *Matcher {
	return &Matcher{mappings: mappings, logs: logs, evaluator: evaluator}
}

// Classify applies the at-most-one-candidate policy.
func Classify(candidates []Candidate) Decision {
	switch len(candidates) {
	case 0:
		return DecisionNoMatch
	case 1:
		return DecisionMatched
	default:
		return DecisionAmbiguous
	}
}

// MatchCustomers runs phone-based matching for every source customer that
// does not have a mapping yet.
func (m *Matcher) MatchCustomers(ctx context.Context, sources []models.SourceCustomer, index CandidateIndex) (Stats, []Result, error) {
	mapped, err := m.mappings.MappedSourceIDs(ctx, models.KindCustomer)
	if err != nil {
		return Stats{}, nil, fmt.Errorf("failed to load mapped source ids: %w", err)
	}

	var stats Stats
	var results []Result

	for _, customer := range sources {
		if mapped[customer.ID] {
			continue
		}
		stats.Total++

		var variants []string
		if customer.Phone != nil {
			variants = normalize.PhoneVariants(*customer.Phone)
		}
		if len(variants) == 0 {
			stats.Skipped++
			results = append(results, Result{SourceID: customer.ID, SourceName: customer.Name, Decision: DecisionSkipped})
			continue
		}

		candidates, err := index.Lookup(ctx, variants)
		if err != nil {
			return stats, results, fmt.Errorf("candidate lookup failed for customer %s: %w", customer.ID, err)
		}

		decision := Classify(candidates)
		result := Result{SourceID: customer.ID, SourceName: customer.Name, Decision: decision, Candidates: candidates}
		results = append(results, result)

		switch decision {
		case DecisionNoMatch:
			stats.NoMatch++
		case DecisionAmbiguous:
			stats.Ambiguous++
			log.Printf("Ambiguous match for customer %s: %d candidates", customer.ID, len(candidates))
		case DecisionMatched:
			stats.Matched++
			fields := rules.CustomerFields(customer, nil)
			created, err := m.createMapping(ctx, models.KindCustomer, customer.ID, customer.Name, candidates[0], fields)
			if err != nil {
				return stats, results, err
			}
			if created {
				stats.Created++
			}
		}
	}

	return stats, results, nil
}

// MatchProducts runs SKU-based matching. On top of the at-most-one policy
// it enforces bidirectional exclusivity: a target that is the unique
// candidate of two or more sources is excluded, since claiming it for one
// and leaving it pending for another would corrupt the one-to-one
// invariant.
func (m *Matcher) MatchProducts(ctx context.Context, sources []models.SourceProduct, index CandidateIndex) (Stats, []Result, error) {
	mapped, err := m.mappings.MappedSourceIDs(ctx, models.KindProduct)
	if err != nil {
		return Stats{}, nil, fmt.Errorf("failed to load mapped source ids: %w", err)
	}

	type pending struct {
		product   models.SourceProduct
		candidate Candidate
	}

	var stats Stats
	var results []Result
	var uniques []pending
	claims := make(map[string]int)

	for _, product := range sources {
		if mapped[product.ID] {
			continue
		}
		stats.Total++

		var variants []string
		if product.SKU != nil {
			variants = normalize.SKUVariants(*product.SKU)
		}
		if len(variants) == 0 {
			stats.Skipped++
			results = append(results, Result{SourceID: product.ID, SourceName: product.Name, Decision: DecisionSkipped})
			continue
		}

		candidates, err := index.Lookup(ctx, variants)
		if err != nil {
			return stats, results, fmt.Errorf("candidate lookup failed for product %s: %w", product.ID, err)
		}

		switch Classify(candidates) {
		case DecisionNoMatch:
			stats.NoMatch++
			results = append(results, Result{SourceID: product.ID, SourceName: product.Name, Decision: DecisionNoMatch})
		case DecisionAmbiguous:
			stats.Ambiguous++
			results = append(results, Result{SourceID: product.ID, SourceName: product.Name, Decision: DecisionAmbiguous, Candidates: candidates})
			log.Printf("Ambiguous match for product %s: %d candidates", product.ID, len(candidates))
		case DecisionMatched:
			uniques = append(uniques, pending{product: product, candidate: candidates[0]})
			claims[candidates[0].ID]++
		}
	}

	for _, u := range uniques {
		if claims[u.candidate.ID] > 1 {
			stats.Excluded++
			results = append(results, Result{SourceID: u.product.ID, SourceName: u.product.Name, Decision: DecisionExcluded, Candidates: []Candidate{u.candidate}})
			log.Printf("Target product %s claimed by %d source products, excluded", u.candidate.ID, claims[u.candidate.ID])
			continue
		}

		stats.Matched++
		results = append(results, Result{SourceID: u.product.ID, SourceName: u.product.Name, Decision: DecisionMatched, Candidates: []Candidate{u.candidate}})
		fields := rules.ProductFields(u.product, nil, nil)
		created, err := m.createMapping(ctx, models.KindProduct, u.product.ID, u.product.Name, u.candidate, fields)
		if err != nil {
			return stats, results, err
		}
		if created {
			stats.Created++
		}
	}

	return stats, results, nil
}

// CreateManual links a source record to a target record by operator action,
// bypassing candidate matching but keeping the uniqueness semantics.
func (m *Matcher) CreateManual(ctx context.Context, kind models.MappingKind, sourceID, sourceName, targetID, targetName string) (bool, error) {
	if sourceID == "" || targetID == "" {
		return false, fmt.Errorf("source and target ids are required")
	}
	return m.createMapping(ctx, kind, sourceID, sourceName, Candidate{ID: targetID, Name: targetName}, rules.Fields{})
}

func (m *Matcher) createMapping(ctx context.Context, kind models.MappingKind, sourceID, sourceName string, candidate Candidate, fields rules.Fields) (bool, error) {
	status := models.MappingPending
	message := "matched to " + candidate.ID

	if m.evaluator != nil {
		evaluation, err := m.evaluator.Evaluate(ctx, kind, fields)
		if err != nil {
			return false, fmt.Errorf("rule pre-check failed for source %s: %w", sourceID, err)
		}
		if evaluation.RequireApproval {
			status = models.MappingPendingApproval
			message = fmt.Sprintf("matched to %s, approval required: %s", candidate.ID, evaluation.ApprovalReason)
		}
	}

	targetID := candidate.ID
	mapping := models.Mapping{
		ID:         uuid.NewString(),
		Kind:       kind,
		SourceID:   sourceID,
		TargetID:   &targetID,
		SourceName: sourceName,
		TargetName: candidate.Name,
		Status:     status,
	}

	created, err := m.mappings.Create(ctx, mapping)
	if err != nil {
		return false, fmt.Errorf("failed to create mapping for source %s: %w", sourceID, err)
	}
	if !created {
		// A mapping for this source already exists; expected under
		// concurrent or repeated matcher runs.
		return false, nil
	}

	if err := m.logs.Append(ctx, mapping.ID, models.LogActionMatch, models.LogStatusSuccess, message, models.JSONB{
		"source_id": sourceID,
		"target_id": candidate.ID,
	}); err != nil {
		log.Printf("Warning: failed to append match log for mapping %s: %v", mapping.ID, err)
	}

	return true, nil
}
