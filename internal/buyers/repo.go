package buyers

import (
	"context"
	"errors"
	"strings"

	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"gorm.io/gorm"
)

// Repository looks buyers up by their natural key.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByRUT(ctx context.Context, rut string) (*models.Buyer, error)
	Exists(ctx context.Context, rut string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a buyer repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByRUT(ctx context.Context, rut string) (*models.Buyer, error) {
	rut = NormalizeRUT(rut)
	var buyer models.Buyer
	err := r.db.WithContext(ctx).Where("rut = ?", rut).First(&buyer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}
		return nil, err
	}
	return &buyer, nil
}

func (r *repository) Exists(ctx context.Context, rut string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Buyer{}).
		Where("rut = ?", NormalizeRUT(rut)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// NormalizeRUT strips dots and uppercases the verifier digit so lookups by
// natural key are stable regardless of formatting.
func NormalizeRUT(rut string) string {
	rut = strings.ToUpper(strings.TrimSpace(rut))
	return strings.ReplaceAll(rut, ".", "")
}
