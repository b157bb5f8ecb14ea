package inventory

import (
	"context"
	"errors"

	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"gorm.io/gorm"
)

// Reservation is one product/quantity pair to reserve or release.
type Reservation struct {
	ProductID int64
	Qty       int
}

// Reserve decrements stock for every request inside the caller's
// transaction and appends a sale movement per product. The decrement is a
// single conditional update: two concurrent orders can never both pass the
// availability check, because only one update can win the guarded row.
// Any shortage aborts the whole batch with InsufficientStock.
func Reserve(ctx context.Context, tx *gorm.DB, orderID int64, requests []Reservation) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for reservation")
	}
	for _, req := range requests {
		if req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "reservation qty must be positive")
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE products
			SET quantity_available = quantity_available - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND quantity_available >= ?
		`, req.Qty, req.ProductID, req.Qty)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
		}
		if res.RowsAffected == 0 {
			available, err := loadAvailable(ctx, tx, req.ProductID)
			if err != nil {
				return err
			}
			return pkgerrors.InsufficientStock(req.ProductID, req.Qty, available)
		}

		after, err := loadAvailable(ctx, tx, req.ProductID)
		if err != nil {
			return err
		}

		movement := models.InventoryMovement{
			ProductID:      req.ProductID,
			Delta:          -req.Qty,
			QuantityBefore: after + req.Qty,
			QuantityAfter:  after,
			Type:           enums.MovementTypeSale,
			OrderID:        &orderID,
			Reason:         "order stock reservation",
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append sale movement")
		}
	}
	return nil
}

// Release credits stock back for the order's lines and appends matching
// return movements. It is idempotent per (order, product): quantities the
// ledger already shows as returned are not credited again, which makes the
// compensation recovery sweep safe to replay.
func Release(ctx context.Context, tx *gorm.DB, orderID int64, requests []Reservation) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for release")
	}
	applied := 0
	for _, req := range requests {
		if req.Qty <= 0 {
			continue
		}

		returned, err := returnedQty(ctx, tx, orderID, req.ProductID)
		if err != nil {
			return applied, err
		}
		remaining := req.Qty - returned
		if remaining <= 0 {
			continue
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE products
			SET quantity_available = quantity_available + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, remaining, req.ProductID)
		if res.Error != nil {
			return applied, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "credit stock")
		}

		after, err := loadAvailable(ctx, tx, req.ProductID)
		if err != nil {
			return applied, err
		}

		movement := models.InventoryMovement{
			ProductID:      req.ProductID,
			Delta:          remaining,
			QuantityBefore: after - remaining,
			QuantityAfter:  after,
			Type:           enums.MovementTypeReturn,
			OrderID:        &orderID,
			Reason:         "order compensation restock",
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			return applied, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append return movement")
		}
		applied++
	}
	return applied, nil
}

func loadAvailable(ctx context.Context, tx *gorm.DB, productID int64) (int, error) {
	var available int
	err := tx.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Select("quantity_available").
		Take(&available).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product stock")
	}
	return available, nil
}

func returnedQty(ctx context.Context, tx *gorm.DB, orderID, productID int64) (int, error) {
	var total *int
	err := tx.WithContext(ctx).Model(&models.InventoryMovement{}).
		Where("order_id = ? AND product_id = ? AND type = ?", orderID, productID, enums.MovementTypeReturn).
		Select("SUM(delta)").
		Scan(&total).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum return movements")
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
