package models

import "time"

// Snapshot rows are written by the periodic pull worker and are read-only
// for this engine. Freshness of the numeric fields is the pull worker's
// responsibility.

type SourceCustomer struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	Phone        *string   `gorm:"column:phone;index"`
	Email        *string   `gorm:"column:email"`
	Note         *string   `gorm:"column:note"`
	TotalSpent   float64   `gorm:"column:total_spent"`
	OrdersCount  int       `gorm:"column:orders_count"`
	LastPulledAt time.Time `gorm:"column:last_pulled_at"`
}

// TableName specifies the table name for GORM
func (SourceCustomer) TableName() string {
	return "source_customer"
}

type SourceProduct struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	SKU          *string   `gorm:"column:sku;index"`
	Quantity     float64   `gorm:"column:quantity"`
	Price        float64   `gorm:"column:price"`
	LastPulledAt time.Time `gorm:"column:last_pulled_at"`
}

// TableName specifies the table name for GORM
func (SourceProduct) TableName() string {
	return "source_product"
}

type TargetCustomer struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	Phone        *string   `gorm:"column:phone;index"`
	AddressPhone *string   `gorm:"column:address_phone;index"`
	Email        *string   `gorm:"column:email"`
	Note         *string   `gorm:"column:note"`
	LastPulledAt time.Time `gorm:"column:last_pulled_at"`
}

// TableName specifies the table name for GORM
func (TargetCustomer) TableName() string {
	return "target_customer"
}

type TargetProduct struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	SKU          *string   `gorm:"column:sku;index"`
	Price        float64   `gorm:"column:price"`
	Note         *string   `gorm:"column:note"`
	LastPulledAt time.Time `gorm:"column:last_pulled_at"`
}

// TableName specifies the table name for GORM
func (TargetProduct) TableName() string {
	return "target_product"
}
