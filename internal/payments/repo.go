package payments

import (
	"context"
	"errors"
	"time"

	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists payment attempts. Attempts are append-only history:
// state moves forward on an existing row, but retries always create a new
// row instead of rewriting an old one.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, attempt *models.PaymentAttempt) error
	FindByBuyOrder(ctx context.Context, buyOrder string) (*models.PaymentAttempt, error)
	FindByBuyOrderForUpdate(ctx context.Context, buyOrder string) (*models.PaymentAttempt, error)
	FindLatestByOrder(ctx context.Context, orderID int64) (*models.PaymentAttempt, error)
	CountByOrder(ctx context.Context, orderID int64) (int64, error)
	UpdateOutcome(ctx context.Context, attempt *models.PaymentAttempt) error
	ListInitiatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment attempt repository bound to the DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment attempt")
	}
	return nil
}

func (r *repository) FindByBuyOrder(ctx context.Context, buyOrder string) (*models.PaymentAttempt, error) {
	return r.findByBuyOrder(ctx, buyOrder, false)
}

// FindByBuyOrderForUpdate locks the attempt row so concurrent callbacks
// for the same buy order serialize on it.
func (r *repository) FindByBuyOrderForUpdate(ctx context.Context, buyOrder string) (*models.PaymentAttempt, error) {
	return r.findByBuyOrder(ctx, buyOrder, true)
}

func (r *repository) findByBuyOrder(ctx context.Context, buyOrder string, lock bool) (*models.PaymentAttempt, error) {
	query := r.db.WithContext(ctx)
	if lock && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var attempt models.PaymentAttempt
	err := query.Where("buy_order = ?", buyOrder).First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find payment attempt")
	}
	return &attempt, nil
}

func (r *repository) FindLatestByOrder(ctx context.Context, orderID int64) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment attempt for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find latest attempt")
	}
	return &attempt, nil
}

func (r *repository) CountByOrder(ctx context.Context, orderID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentAttempt{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count attempts")
	}
	return count, nil
}

// UpdateOutcome persists the provider outcome fields on an attempt. The
// WHERE clause re-checks that the row is still in initiated state, so two
// racing writers cannot both apply an outcome.
func (r *repository) UpdateOutcome(ctx context.Context, attempt *models.PaymentAttempt) error {
	res := r.db.WithContext(ctx).Model(&models.PaymentAttempt{}).
		Where("id = ? AND state = ?", attempt.ID, enums.PaymentStateInitiated).
		Updates(map[string]any{
			"state":              attempt.State,
			"authorization_code": attempt.AuthorizationCode,
			"payment_method":     attempt.PaymentMethod,
			"installments":       attempt.Installments,
			"raw_response":       attempt.RawResponse,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update attempt outcome")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "attempt already settled")
	}
	return nil
}

func (r *repository) ListInitiatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", enums.PaymentStateInitiated, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale attempts")
	}
	return rows, nil
}
