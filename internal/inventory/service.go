package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes manual ledger operations and the conservation check.
type Service interface {
	Restock(ctx context.Context, input RestockInput) (*models.InventoryMovement, error)
	MovementsByProduct(ctx context.Context, productID int64) ([]models.InventoryMovement, error)
	MovementsByOrder(ctx context.Context, orderID int64) ([]models.InventoryMovement, error)
	CheckConservation(ctx context.Context, productID int64) (*ConservationReport, error)
}

// RestockInput captures an operational stock correction. Delta may be
// negative only for adjustments.
type RestockInput struct {
	ProductID int64
	Delta     int
	Type      enums.MovementType
	Reason    string
}

// ConservationReport compares a product's counter against its ledger.
type ConservationReport struct {
	ProductID int64 `json:"product_id"`
	Available int   `json:"available"`
	Expected  int   `json:"expected"`
	Conserved bool  `json:"conserved"`
	// ChainBroken flags a movement whose quantity_before does not match the
	// previous movement's quantity_after.
	ChainBroken bool `json:"chain_broken"`
}

type service struct {
	tx   txRunner
	repo Repository
}

// NewService wires the ledger service.
func NewService(tx txRunner, repo Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("movement repository required")
	}
	return &service{tx: tx, repo: repo}, nil
}

func (s *service) Restock(ctx context.Context, input RestockInput) (*models.InventoryMovement, error) {
	if input.ProductID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	switch input.Type {
	case enums.MovementTypeRestock:
		if input.Delta < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock delta must be positive")
		}
	case enums.MovementTypeAdjustment:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movement type must be restock or adjustment")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var created *models.InventoryMovement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// Negative adjustments reuse the reservation guard so the counter
		// can never cross zero.
		if input.Delta < 0 {
			res := tx.WithContext(ctx).Exec(`
				UPDATE products
				SET quantity_available = quantity_available + ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND quantity_available >= ?
			`, input.Delta, input.ProductID, -input.Delta)
			if res.Error != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "apply adjustment")
			}
			if res.RowsAffected == 0 {
				available, err := loadAvailable(ctx, tx, input.ProductID)
				if err != nil {
					return err
				}
				return pkgerrors.InsufficientStock(input.ProductID, -input.Delta, available)
			}
		} else {
			res := tx.WithContext(ctx).Exec(`
				UPDATE products
				SET quantity_available = quantity_available + ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, input.Delta, input.ProductID)
			if res.Error != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "apply restock")
			}
			if res.RowsAffected == 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
		}

		after, err := loadAvailable(ctx, tx, input.ProductID)
		if err != nil {
			return err
		}

		movement := models.InventoryMovement{
			ProductID:      input.ProductID,
			Delta:          input.Delta,
			QuantityBefore: after - input.Delta,
			QuantityAfter:  after,
			Type:           input.Type,
			Reason:         reason,
		}
		if err := s.repo.WithTx(tx).Create(ctx, &movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append movement")
		}
		created = &movement
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) MovementsByProduct(ctx context.Context, productID int64) ([]models.InventoryMovement, error) {
	return s.repo.ListByProduct(ctx, productID)
}

func (s *service) MovementsByOrder(ctx context.Context, orderID int64) ([]models.InventoryMovement, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

func (s *service) CheckConservation(ctx context.Context, productID int64) (*ConservationReport, error) {
	report := &ConservationReport{ProductID: productID}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		available, err := loadAvailable(ctx, tx, productID)
		if err != nil {
			return err
		}
		report.Available = available

		movements, err := s.repo.WithTx(tx).ListByProduct(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movements")
		}
		if len(movements) == 0 {
			report.Expected = available
			report.Conserved = true
			return nil
		}

		expected := movements[0].QuantityBefore
		for i, m := range movements {
			if i > 0 && m.QuantityBefore != movements[i-1].QuantityAfter {
				report.ChainBroken = true
			}
			expected += m.Delta
		}
		report.Expected = expected
		report.Conserved = expected == available && !report.ChainBroken
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
