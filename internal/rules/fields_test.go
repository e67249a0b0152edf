package rules

import (
	"testing"
	"time"

	"github.com/trungvu/bridge-worker/internal/models"
)

func floatPtr(f float64) *float64 { return &f }

func TestCustomerFields(t *testing.T) {
	phone := "0912345678"
	email := "a@b.vn"
	lastSynced := time.Now().Add(-48 * time.Hour)
	mapping := &models.Mapping{Status: models.MappingSynced, LastSyncedAt: &lastSynced}

	f := CustomerFields(models.SourceCustomer{
		ID: "src-1", Phone: &phone, Email: &email, TotalSpent: 1500000, OrdersCount: 12,
	}, mapping)

	if f.TotalSpent != 1500000 || f.OrdersCount != 12 {
		t.Errorf("expected spend/orders carried, got %+v", f)
	}
	if !f.HasPhone || !f.HasEmail {
		t.Errorf("expected hasPhone and hasEmail true, got %+v", f)
	}
	if f.SyncStatus != string(models.MappingSynced) {
		t.Errorf("expected syncStatus synced, got %s", f.SyncStatus)
	}
	if f.LastSyncedDaysAgo == nil || *f.LastSyncedDaysAgo < 1.9 || *f.LastSyncedDaysAgo > 2.1 {
		t.Errorf("expected lastSyncedDaysAgo around 2, got %v", f.LastSyncedDaysAgo)
	}
}

func TestCustomerFields_EmptyIdentifiers(t *testing.T) {
	empty := ""
	f := CustomerFields(models.SourceCustomer{ID: "src-1", Phone: &empty}, nil)

	if f.HasPhone || f.HasEmail {
		t.Errorf("expected hasPhone and hasEmail false, got %+v", f)
	}
	if _, ok := f.Get(FieldLastSyncedDaysAgo); ok {
		t.Error("expected lastSyncedDaysAgo unresolved for never-synced mapping")
	}
}

func TestProductFields_PriceChangePercent(t *testing.T) {
	tests := []struct {
		name        string
		sourcePrice float64
		targetPrice *float64
		want        float64
	}{
		{"target higher", 90000, floatPtr(100000), -10},
		{"target lower", 120000, floatPtr(100000), 20},
		{"no target price", 120000, nil, 0},
		{"zero target price", 120000, floatPtr(0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ProductFields(models.SourceProduct{ID: "sp-1", Price: tt.sourcePrice, Quantity: 7}, tt.targetPrice, nil)
			if f.PriceChangePercent != tt.want {
				t.Errorf("expected change %.1f%%, got %.1f%%", tt.want, f.PriceChangePercent)
			}
			if f.Inventory != 7 {
				t.Errorf("expected inventory 7, got %v", f.Inventory)
			}
		})
	}
}

func TestFields_GetUnknownName(t *testing.T) {
	if _, ok := (Fields{}).Get("unknownField"); ok {
		t.Error("expected unknown field name to be unresolved")
	}
}
