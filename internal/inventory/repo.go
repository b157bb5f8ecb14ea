package inventory

import (
	"context"

	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository reads the movement ledger. Writes only happen through
// Reserve/Release and the ledger service so every change carries its
// before/after counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movement *models.InventoryMovement) error
	ListByOrder(ctx context.Context, orderID int64) ([]models.InventoryMovement, error)
	ListByProduct(ctx context.Context, productID int64) ([]models.InventoryMovement, error)
	SumDeltaByProduct(ctx context.Context, productID int64) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a movement repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID int64) ([]models.InventoryMovement, error) {
	var movements []models.InventoryMovement
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repository) ListByProduct(ctx context.Context, productID int64) ([]models.InventoryMovement, error) {
	var movements []models.InventoryMovement
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC, id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repository) SumDeltaByProduct(ctx context.Context, productID int64) (int, error) {
	var total *int
	err := r.db.WithContext(ctx).Model(&models.InventoryMovement{}).
		Where("product_id = ?", productID).
		Select("SUM(delta)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
