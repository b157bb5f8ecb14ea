package orders

import (
	"context"
	"errors"

	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists order headers and their immutable lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id int64) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerRUT string, limit, offset int) ([]models.Order, error)
	UpdateState(ctx context.Context, id int64, state enums.OrderState) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an order repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Order, error) {
	return r.find(ctx, id, false)
}

// FindByIDForUpdate locks the order row for the duration of the caller's
// transaction. Callers outside a transaction get a plain read.
func (r *repository) FindByIDForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.find(ctx, id, true)
}

func (r *repository) find(ctx context.Context, id int64, lock bool) (*models.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_lines.id ASC")
		}).
		Preload("Attempts", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_attempts.created_at ASC, payment_attempts.id ASC")
		})
	// sqlite has no row locks; its single writer gives the same guarantee
	// in tests.
	if lock && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "orders"}})
	}

	var order models.Order
	err := query.Where("orders.id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
	}
	return &order, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerRUT string, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Attempts", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_attempts.created_at ASC, payment_attempts.id ASC")
		}).
		Where("buyer_rut = ?", buyerRUT).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

func (r *repository) UpdateState(ctx context.Context, id int64, state enums.OrderState) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Update("state", state)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order state")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return nil
}
