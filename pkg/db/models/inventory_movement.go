package models

import (
	"time"

	"github.com/mavasquez/ferrevia-backend/pkg/enums"
)

// InventoryMovement is one append-only ledger row: replaying a product's
// movements in creation order reproduces its current quantity_available.
// Rows are never updated or deleted.
type InventoryMovement struct {
	ID             int64              `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID      int64              `gorm:"column:product_id;not null;index"`
	Delta          int                `gorm:"column:delta;not null"`
	QuantityBefore int                `gorm:"column:quantity_before;not null"`
	QuantityAfter  int                `gorm:"column:quantity_after;not null"`
	Type           enums.MovementType `gorm:"column:type;type:text;not null"`
	OrderID        *int64             `gorm:"column:order_id;index"`
	Reason         string             `gorm:"column:reason;not null"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
}
