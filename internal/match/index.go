package match

import (
	"context"
	"fmt"
	"sort"

	"github.com/trungvu/bridge-worker/internal/models"
	"github.com/trungvu/bridge-worker/internal/normalize"
)

// Candidate is one target record reachable from a variant lookup.
type Candidate struct {
	ID   string
	Name string
}

// CandidateIndex resolves a variant set to the deduplicated candidates
// exhibiting any of the variants. The in-memory and query-pushdown
// implementations must produce the same candidate set for the same
// snapshot; the conformance tests hold both to that.
type CandidateIndex interface {
	Lookup(ctx context.Context, variants []string) ([]Candidate, error)
}

// TargetEntry is an index-side record with its precomputed variant set.
type TargetEntry struct {
	ID       string
	Name     string
	Variants []string
}

// CustomerEntry computes the variant union for a target customer: primary
// phone, secondary address phone, and note-mined phones.
func CustomerEntry(c models.TargetCustomer) TargetEntry {
	set := make(map[string]struct{})
	if c.Phone != nil {
		for _, v := range normalize.PhoneVariants(*c.Phone) {
			set[v] = struct{}{}
		}
	}
	if c.AddressPhone != nil {
		for _, v := range normalize.PhoneVariants(*c.AddressPhone) {
			set[v] = struct{}{}
		}
	}
	if c.Note != nil {
		for _, v := range normalize.NotePhoneVariants(*c.Note) {
			set[v] = struct{}{}
		}
	}

	variants := make([]string, 0, len(set))
	for v := range set {
		variants = append(variants, v)
	}
	return TargetEntry{ID: c.ID, Name: c.Name, Variants: variants}
}

// ProductEntry computes the variant set for a target product.
func ProductEntry(p models.TargetProduct) TargetEntry {
	var variants []string
	if p.SKU != nil {
		variants = normalize.SKUVariants(*p.SKU)
	}
	return TargetEntry{ID: p.ID, Name: p.Name, Variants: variants}
}

// MemoryIndex holds the whole target snapshot in a variant -> entries map.
// Suited to small and medium batches where one pass over the snapshot is
// cheaper than per-source queries.
type MemoryIndex struct {
	byVariant map[string][]Candidate
}

// NewMemoryIndex builds the index from precomputed entries.
func NewMemoryIndex(entries []TargetEntry) *MemoryIndex {
	byVariant := make(map[string][]Candidate)
	for _, entry := range entries {
		for _, v := range entry.Variants {
			byVariant[v] = append(byVariant[v], Candidate{ID: entry.ID, Name: entry.Name})
		}
	}
	return &MemoryIndex{byVariant: byVariant}
}

// Lookup unions the candidates of every requested variant.
func (i *MemoryIndex) Lookup(ctx context.Context, variants []string) ([]Candidate, error) {
	seen := make(map[string]struct{})
	var out []Candidate
	for _, v := range variants {
		for _, c := range i.byVariant[v] {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, c)
		}
	}
	sortCandidates(out)
	return out, nil
}

// TargetSearcher is the pushed-down lookup surface, implemented by the
// target snapshot repository.
type TargetSearcher interface {
	SearchCustomersByKeys(ctx context.Context, variants []string) ([]models.TargetCustomer, error)
	SearchProductsByKeys(ctx context.Context, variants []string) ([]models.TargetProduct, error)
}

// QueryIndex pushes the candidate lookup into the database. Suited to
// large batches where materializing the whole target snapshot would not
// pay off. Rows coming back from the SQL prefilter are re-verified with
// the shared normalizer, so the match set equals the in-memory strategy's.
type QueryIndex struct {
	kind     models.MappingKind
	searcher TargetSearcher
}

func NewQueryIndex(kind models.MappingKind, searcher TargetSearcher) *QueryIndex {
	return &QueryIndex{kind: kind, searcher: searcher}
}

// Lookup fetches prefiltered rows and keeps those whose recomputed variant
// set intersects the requested one.
func (i *QueryIndex) Lookup(ctx context.Context, variants []string) ([]Candidate, error) {
	if len(variants) == 0 {
		return nil, nil
	}

	var entries []TargetEntry
	switch i.kind {
	case models.KindCustomer:
		rows, err := i.searcher.SearchCustomersByKeys(ctx, variants)
		if err != nil {
			return nil, fmt.Errorf("failed to search target customers: %w", err)
		}
		for _, row := range rows {
			entries = append(entries, CustomerEntry(row))
		}
	case models.KindProduct:
		rows, err := i.searcher.SearchProductsByKeys(ctx, variants)
		if err != nil {
			return nil, fmt.Errorf("failed to search target products: %w", err)
		}
		for _, row := range rows {
			entries = append(entries, ProductEntry(row))
		}
	default:
		return nil, fmt.Errorf("unknown mapping kind %q", i.kind)
	}

	requested := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		requested[v] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []Candidate
	for _, entry := range entries {
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		for _, v := range entry.Variants {
			if _, ok := requested[v]; ok {
				seen[entry.ID] = struct{}{}
				out = append(out, Candidate{ID: entry.ID, Name: entry.Name})
				break
			}
		}
	}
	sortCandidates(out)
	return out, nil
}

func sortCandidates(cs []Candidate) {
	sort.Slice(cs, func(a, b int) bool { return cs[a].ID < cs[b].ID })
}
