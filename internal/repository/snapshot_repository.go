package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/trungvu/bridge-worker/internal/models"
	"github.com/trungvu/bridge-worker/internal/normalize"
	"gorm.io/gorm"
)

// SourceSnapshotRepository reads the point-of-sale snapshot tables. The
// pull worker owns the rows; this engine never writes them.
type SourceSnapshotRepository struct {
	db *gorm.DB
}

func NewSourceSnapshotRepository(db *gorm.DB) *SourceSnapshotRepository {
	return &SourceSnapshotRepository{db: db}
}

// ListCustomers retrieves the full customer snapshot
func (r *SourceSnapshotRepository) ListCustomers(ctx context.Context) ([]models.SourceCustomer, error) {
	var customers []models.SourceCustomer
	result := r.db.WithContext(ctx).Order("id ASC").Find(&customers)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query source customers: %w", result.Error)
	}
	return customers, nil
}

// ListProducts retrieves the full product snapshot
func (r *SourceSnapshotRepository) ListProducts(ctx context.Context) ([]models.SourceProduct, error) {
	var products []models.SourceProduct
	result := r.db.WithContext(ctx).Order("id ASC").Find(&products)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query source products: %w", result.Error)
	}
	return products, nil
}

// GetCustomer retrieves one source customer by id
func (r *SourceSnapshotRepository) GetCustomer(ctx context.Context, id string) (*models.SourceCustomer, error) {
	var customer models.SourceCustomer
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&customer)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source customer: %w", result.Error)
	}
	return &customer, nil
}

// GetProduct retrieves one source product by id
func (r *SourceSnapshotRepository) GetProduct(ctx context.Context, id string) (*models.SourceProduct, error) {
	var product models.SourceProduct
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&product)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source product: %w", result.Error)
	}
	return &product, nil
}

// TargetSnapshotRepository reads the storefront snapshot tables and backs
// the query-pushdown candidate index strategy.
type TargetSnapshotRepository struct {
	db *gorm.DB
}

func NewTargetSnapshotRepository(db *gorm.DB) *TargetSnapshotRepository {
	return &TargetSnapshotRepository{db: db}
}

// ListCustomers retrieves the full target customer snapshot
func (r *TargetSnapshotRepository) ListCustomers(ctx context.Context) ([]models.TargetCustomer, error) {
	var customers []models.TargetCustomer
	result := r.db.WithContext(ctx).Order("id ASC").Find(&customers)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query target customers: %w", result.Error)
	}
	return customers, nil
}

// ListProducts retrieves the full target product snapshot
func (r *TargetSnapshotRepository) ListProducts(ctx context.Context) ([]models.TargetProduct, error) {
	var products []models.TargetProduct
	result := r.db.WithContext(ctx).Order("id ASC").Find(&products)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query target products: %w", result.Error)
	}
	return products, nil
}

// CountCustomers returns the target customer snapshot size, used to pick
// an index strategy.
func (r *TargetSnapshotRepository) CountCustomers(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.TargetCustomer{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count target customers: %w", result.Error)
	}
	return count, nil
}

// CountProducts returns the target product snapshot size.
func (r *TargetSnapshotRepository) CountProducts(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.TargetProduct{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count target products: %w", result.Error)
	}
	return count, nil
}

// cleanedNoteExpr strips the same separators normalize.CleanPhone strips,
// so a LIKE against it sees the digit runs note mining would see.
const cleanedNoteExpr = "replace(replace(replace(replace(replace(note, ' ', ''), '-', ''), '(', ''), ')', ''), '.', '')"

// cleanedPhoneExpr applies normalize.CleanPhone to a phone column in SQL:
// separators stripped, leading plus removed. The variant list coming in is
// closed under the trunk/country prefix swap, so an IN over the cleaned
// column is equivalent to a variant-set intersection.
func cleanedPhoneExpr(column string) string {
	return "ltrim(replace(replace(replace(replace(replace(" + column + ", ' ', ''), '-', ''), '(', ''), ')', ''), '.', ''), '+')"
}

// SearchCustomersByKeys is the pushed-down candidate lookup: rows whose
// phone, address phone, or note could produce one of the given variants.
// The SQL predicate over-approximates note matches (a variant embedded in
// a longer digit run still matches the LIKE); callers re-verify hits with
// the shared normalizer so both index strategies yield the same match set.
func (r *TargetSnapshotRepository) SearchCustomersByKeys(ctx context.Context, variants []string) ([]models.TargetCustomer, error) {
	if len(variants) == 0 {
		return nil, nil
	}

	var conds []string
	var args []interface{}

	conds = append(conds,
		"(phone IS NOT NULL AND "+cleanedPhoneExpr("phone")+" IN ?)",
		"(address_phone IS NOT NULL AND "+cleanedPhoneExpr("address_phone")+" IN ?)")
	args = append(args, variants, variants)
	for _, v := range variants {
		conds = append(conds, "(note IS NOT NULL AND length(note) <= ? AND "+cleanedNoteExpr+" LIKE ?)")
		args = append(args, normalize.MaxNoteLength, "%"+v+"%")
	}

	var customers []models.TargetCustomer
	result := r.db.WithContext(ctx).
		Where(strings.Join(conds, " OR "), args...).
		Order("id ASC").
		Find(&customers)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to search target customers: %w", result.Error)
	}
	return customers, nil
}

// SearchProductsByKeys is the pushed-down SKU candidate lookup.
func (r *TargetSnapshotRepository) SearchProductsByKeys(ctx context.Context, variants []string) ([]models.TargetProduct, error) {
	if len(variants) == 0 {
		return nil, nil
	}

	var products []models.TargetProduct
	result := r.db.WithContext(ctx).
		Where("lower(trim(sku)) IN ?", variants).
		Order("id ASC").
		Find(&products)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to search target products: %w", result.Error)
	}
	return products, nil
}
