package rules

import (
	"time"

	"github.com/trungvu/bridge-worker/internal/models"
)

// Field names the condition layer can reference.
const (
	FieldInventory          = "inventory"
	FieldPrice              = "price"
	FieldPriceChangePercent = "priceChangePercent"
	FieldTotalSpent         = "totalSpent"
	FieldOrdersCount        = "ordersCount"
	FieldHasPhone           = "hasPhone"
	FieldHasEmail           = "hasEmail"
	FieldLastSyncedDaysAgo  = "lastSyncedDaysAgo"
	FieldSyncStatus         = "syncStatus"
)

// Fields is the typed accessor a rule evaluates against. Which members are
// meaningful depends on the mapping kind; absent fields read as zero values
// and never-synced mappings carry a nil LastSyncedDaysAgo.
type Fields struct {
	Inventory          float64
	Price              float64
	PriceChangePercent float64
	TotalSpent         float64
	OrdersCount        int
	HasPhone           bool
	HasEmail           bool
	LastSyncedDaysAgo  *float64
	SyncStatus         string
}

// Get resolves a condition field name to its current value. The second
// return is false for unknown names and for lastSyncedDaysAgo on a mapping
// that has never synced.
func (f Fields) Get(name string) (interface{}, bool) {
	switch name {
	case FieldInventory:
		return f.Inventory, true
	case FieldPrice:
		return f.Price, true
	case FieldPriceChangePercent:
		return f.PriceChangePercent, true
	case FieldTotalSpent:
		return f.TotalSpent, true
	case FieldOrdersCount:
		return float64(f.OrdersCount), true
	case FieldHasPhone:
		return f.HasPhone, true
	case FieldHasEmail:
		return f.HasEmail, true
	case FieldLastSyncedDaysAgo:
		if f.LastSyncedDaysAgo == nil {
			return nil, false
		}
		return *f.LastSyncedDaysAgo, true
	case FieldSyncStatus:
		return f.SyncStatus, true
	default:
		return nil, false
	}
}

// CustomerFields builds the accessor for a customer mapping from its
// source snapshot row and, when present, the mapping itself.
func CustomerFields(customer models.SourceCustomer, mapping *models.Mapping) Fields {
	f := Fields{
		TotalSpent:  customer.TotalSpent,
		OrdersCount: customer.OrdersCount,
		HasPhone:    customer.Phone != nil && *customer.Phone != "",
		HasEmail:    customer.Email != nil && *customer.Email != "",
	}
	applyMapping(&f, mapping)
	return f
}

// ProductFields builds the accessor for a product mapping. targetPrice is
// the storefront's current price when known; the price-change percentage
// compares the source price against it.
func ProductFields(product models.SourceProduct, targetPrice *float64, mapping *models.Mapping) Fields {
	f := Fields{
		Inventory: product.Quantity,
		Price:     product.Price,
	}
	if targetPrice != nil && *targetPrice != 0 {
		f.PriceChangePercent = (product.Price - *targetPrice) / *targetPrice * 100
	}
	applyMapping(&f, mapping)
	return f
}

func applyMapping(f *Fields, mapping *models.Mapping) {
	if mapping == nil {
		return
	}
	f.SyncStatus = string(mapping.Status)
	if mapping.LastSyncedAt != nil {
		days := time.Since(*mapping.LastSyncedAt).Hours() / 24
		f.LastSyncedDaysAgo = &days
	}
}
