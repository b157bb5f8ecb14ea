package orders

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mavasquez/ferrevia-backend/internal/buyers"
	"github.com/mavasquez/ferrevia-backend/internal/inventory"
	"github.com/mavasquez/ferrevia-backend/internal/products"
	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
	"github.com/mavasquez/ferrevia-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditSink interface {
	Record(ctx context.Context, action, entityType, entityID string, metadata map[string]any)
}

// Service creates, reads and cancels orders. Creation and cancellation are
// single transactions: the order header, its lines and the stock movements
// commit together or not at all.
type Service struct {
	tx       txRunner
	orders   Repository
	buyers   buyers.Repository
	products products.Repository
	audit    auditSink
	metrics  *metrics.SagaMetrics
	log      *logger.Logger
}

// NewService wires the order service.
func NewService(
	tx txRunner,
	orderRepo Repository,
	buyerRepo buyers.Repository,
	productRepo products.Repository,
	audit auditSink,
	sagaMetrics *metrics.SagaMetrics,
	log *logger.Logger,
) *Service {
	return &Service{
		tx:       tx,
		orders:   orderRepo,
		buyers:   buyerRepo,
		products: productRepo,
		audit:    audit,
		metrics:  sagaMetrics,
		log:      log,
	}
}

// Create reserves stock and persists the order atomically. Prices come from
// the catalog at this instant; client-sent prices and totals are ignored.
// A shortage on any line rolls the whole order back.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (*View, error) {
	input.BuyerRUT = buyers.NormalizeRUT(input.BuyerRUT)
	ctx = s.log.WithBuyerRUT(ctx, input.BuyerRUT)

	method, err := enums.ParseDeliveryMethod(input.DeliveryMethod)
	if err != nil {
		return nil, err
	}
	if err := validateLines(input.Lines); err != nil {
		return nil, err
	}

	known, err := s.buyers.Exists(ctx, input.BuyerRUT)
	if err != nil {
		return nil, err
	}
	if !known && input.Guest == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown buyer requires guest contact details")
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		catalog, err := s.products.WithTx(tx).FindByIDs(ctx, productIDs(input.Lines))
		if err != nil {
			return err
		}

		order := &models.Order{
			BuyerRUT:       input.BuyerRUT,
			State:          enums.OrderStatePending,
			DeliveryMethod: method,
			DeliveryState:  enums.DeliveryStatePending,
			TotalAmount:    decimal.Zero,
		}
		if input.Guest != nil {
			order.GuestName = &input.Guest.Name
			order.GuestEmail = &input.Guest.Email
		}

		total := decimal.Zero
		reservations := make([]inventory.Reservation, 0, len(input.Lines))
		for _, line := range input.Lines {
			product, ok := catalog[line.ProductID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": line.ProductID})
			}
			subtotal := product.UnitPrice.Mul(decimal.NewFromInt(int64(line.Qty)))
			order.Lines = append(order.Lines, models.OrderLine{
				ProductID: product.ID,
				Qty:       line.Qty,
				UnitPrice: product.UnitPrice,
				Subtotal:  subtotal,
			})
			total = total.Add(subtotal)
			reservations = append(reservations, inventory.Reservation{
				ProductID: product.ID,
				Qty:       line.Qty,
			})
		}
		order.TotalAmount = total

		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		if err := inventory.Reserve(ctx, tx, order.ID, reservations); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientStock {
			s.metrics.IncOversellRejected()
			s.log.Warn(ctx, "order rejected, insufficient stock")
		}
		return nil, err
	}

	s.metrics.IncOrdersCreated()
	ctx = s.log.WithOrderID(ctx, created.ID)
	s.log.Info(ctx, "order created")
	s.audit.Record(ctx, "order.created", "order", formatID(created.ID), map[string]any{
		"buyer_rut": created.BuyerRUT,
		"total":     created.TotalAmount.StringFixed(2),
		"lines":     len(created.Lines),
	})

	view := NewView(created)
	return &view, nil
}

// Get returns one order with lines, payment history and delivery state.
func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := NewView(order)
	return &view, nil
}

// ListByBuyer returns a buyer's orders, newest first.
func (s *Service) ListByBuyer(ctx context.Context, buyerRUT string, limit, offset int) ([]View, error) {
	rows, err := s.orders.ListByBuyer(ctx, buyers.NormalizeRUT(buyerRUT), limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(rows))
	for i := range rows {
		views = append(views, NewView(&rows[i]))
	}
	return views, nil
}

// Cancel aborts a pending order: restocks every line, voids any open
// payment attempt and marks the order cancelled, all in one transaction.
// Orders whose payment was already authorized cannot be cancelled here.
func (s *Service) Cancel(ctx context.Context, id int64) (*View, error) {
	ctx = s.log.WithOrderID(ctx, id)

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.State != enums.OrderStatePending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled").
				WithDetails(map[string]any{"state": order.State})
		}
		if order.CurrentPaymentState() == enums.PaymentStateAuthorized {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already authorized")
		}

		if _, err := inventory.Release(ctx, tx, order.ID, releaseRequests(order.Lines)); err != nil {
			return err
		}
		res := tx.WithContext(ctx).Model(&models.PaymentAttempt{}).
			Where("order_id = ? AND state = ?", order.ID, enums.PaymentStateInitiated).
			Update("state", enums.PaymentStateVoided)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "void open attempts")
		}
		if err := repo.UpdateState(ctx, order.ID, enums.OrderStateCancelled); err != nil {
			return err
		}
		order.State = enums.OrderStateCancelled
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCompensations()
	s.log.Info(ctx, "order cancelled, stock restored")
	s.audit.Record(ctx, "order.cancelled", "order", formatID(id), map[string]any{
		"buyer_rut": cancelled.BuyerRUT,
	})

	view := NewView(cancelled)
	return &view, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one line")
	}
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line qty must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if seen[line.ProductID] {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate product in order").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		seen[line.ProductID] = true
	}
	return nil
}

func productIDs(lines []LineInput) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

func releaseRequests(lines []models.OrderLine) []inventory.Reservation {
	requests := make([]inventory.Reservation, 0, len(lines))
	for _, line := range lines {
		requests = append(requests, inventory.Reservation{ProductID: line.ProductID, Qty: line.Qty})
	}
	return requests
}
