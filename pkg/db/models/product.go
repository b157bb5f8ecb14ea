package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row the saga reserves stock against.
// QuantityAvailable never goes negative: every decrement is a conditional
// update guarded by the requested quantity.
type Product struct {
	ID                int64           `gorm:"column:id;primaryKey;autoIncrement"`
	SKU               string          `gorm:"column:sku;not null;uniqueIndex"`
	Name              string          `gorm:"column:name;not null"`
	UnitPrice         decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	QuantityAvailable int             `gorm:"column:quantity_available;not null;default:0"`
	MinimumStock      int             `gorm:"column:minimum_stock;not null;default:0"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
