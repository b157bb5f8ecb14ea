package fulfillment

import (
	"context"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/mavasquez/ferrevia-backend/internal/buyers"
	ordersvc "github.com/mavasquez/ferrevia-backend/internal/orders"
	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditSink interface {
	Record(ctx context.Context, action, entityType, entityID string, metadata map[string]any)
}

// AssignInput dispatches a courier to an order, optionally with a delivery
// window.
type AssignInput struct {
	CourierRUT  string     `json:"courier_rut" validate:"required"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
}

// ProofInput closes a delivery run. Outcome is delivered or failed; proof
// fields accompany delivered, a reason accompanies failed.
type ProofInput struct {
	Outcome       string   `json:"outcome" validate:"required,oneof=delivered failed"`
	ProofURL      *string  `json:"proof_url,omitempty" validate:"omitempty,url"`
	Lat           *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng           *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
	FailureReason *string  `json:"failure_reason,omitempty" validate:"omitempty,max=500"`
}

// Service drives the delivery sub-lifecycle of orders. Transitions only
// ever move forward; a failed run can be re-dispatched to a new courier
// but nothing else reopens.
type Service struct {
	tx     txRunner
	orders ordersvc.Repository
	audit  auditSink
	log    *logger.Logger
}

// NewService wires the fulfillment service.
func NewService(tx txRunner, orderRepo ordersvc.Repository, audit auditSink, log *logger.Logger) *Service {
	return &Service{tx: tx, orders: orderRepo, audit: audit, log: log}
}

// AssignCourier puts an order in the courier's hands. Allowed from any
// pre-transit state and from failed, which is how a failed run gets
// re-dispatched. Re-assignment clears the previous failure reason.
func (s *Service) AssignCourier(ctx context.Context, orderID int64, input AssignInput) (*ordersvc.View, error) {
	courier := buyers.NormalizeRUT(input.CourierRUT)
	if courier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "courier rut is required")
	}
	if input.WindowStart != nil && input.WindowEnd != nil && !input.WindowEnd.After(*input.WindowStart) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery window must end after it starts")
	}

	return s.transition(ctx, orderID, "fulfillment.assigned", func(order *models.Order) error {
		if err := checkDeliverable(order, enums.DeliveryStateAssigned); err != nil {
			return err
		}
		now := time.Now().UTC()
		order.DeliveryState = enums.DeliveryStateAssigned
		order.CourierRUT = &courier
		order.WindowStart = input.WindowStart
		order.WindowEnd = input.WindowEnd
		order.AssignedAt = &now
		order.FailureReason = nil
		return nil
	})
}

// MarkInTransit records that the courier left with the package. Only an
// assigned delivery can dispatch; repeating the call is a no-op that keeps
// the original dispatch timestamp.
func (s *Service) MarkInTransit(ctx context.Context, orderID int64) (*ordersvc.View, error) {
	return s.transition(ctx, orderID, "fulfillment.in_transit", func(order *models.Order) error {
		if order.DeliveryState == enums.DeliveryStateInTransit {
			return nil
		}
		if err := checkDeliverable(order, enums.DeliveryStateInTransit); err != nil {
			return err
		}
		if order.DeliveryState != enums.DeliveryStateAssigned {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "courier must be assigned before dispatch").
				WithDetails(map[string]any{"from": order.DeliveryState})
		}
		order.DeliveryState = enums.DeliveryStateInTransit
		if order.DispatchedAt == nil {
			now := time.Now().UTC()
			order.DispatchedAt = &now
		}
		return nil
	})
}

// RecordProof settles an in-transit run. A delivered outcome is terminal
// and completes the order; a failed outcome records the reason and leaves
// the order open for re-dispatch.
func (s *Service) RecordProof(ctx context.Context, orderID int64, input ProofInput) (*ordersvc.View, error) {
	target, err := enums.ParseDeliveryState(input.Outcome)
	if err != nil || (target != enums.DeliveryStateDelivered && target != enums.DeliveryStateFailed) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outcome must be delivered or failed")
	}
	if target == enums.DeliveryStateFailed && (input.FailureReason == nil || *input.FailureReason == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a failed delivery needs a reason")
	}

	return s.transition(ctx, orderID, "fulfillment."+input.Outcome, func(order *models.Order) error {
		if err := checkDeliverable(order, target); err != nil {
			return err
		}
		if order.DeliveryState != enums.DeliveryStateInTransit {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proof requires an in-transit delivery").
				WithDetails(map[string]any{"from": order.DeliveryState})
		}
		order.DeliveryState = target
		if target == enums.DeliveryStateDelivered {
			now := time.Now().UTC()
			order.DeliveredAt = &now
			order.ProofURL = input.ProofURL
			order.ProofLat = input.Lat
			order.ProofLng = input.Lng
			order.FailureReason = nil
			// A physically delivered order is complete regardless of how
			// bookkeeping lagged.
			if order.State == enums.OrderStatePending {
				order.State = enums.OrderStateCompleted
			}
		} else {
			order.FailureReason = input.FailureReason
		}
		return nil
	})
}

// SetDeliveryState is the manual override for back-office corrections. It
// still honors the forward-only state machine.
func (s *Service) SetDeliveryState(ctx context.Context, orderID int64, state string) (*ordersvc.View, error) {
	target, err := enums.ParseDeliveryState(state)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery state")
	}
	return s.transition(ctx, orderID, "fulfillment.override", func(order *models.Order) error {
		if err := checkDeliverable(order, target); err != nil {
			return err
		}
		order.DeliveryState = target
		return nil
	})
}

func (s *Service) transition(ctx context.Context, orderID int64, action string, mutate func(*models.Order) error) (*ordersvc.View, error) {
	ctx = s.log.WithOrderID(ctx, orderID)

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := mutate(order); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Omit("Lines", "Attempts").Save(order).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save delivery transition")
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithField(ctx, "delivery_state", updated.DeliveryState), "delivery state changed")
	s.audit.Record(ctx, action, "order", strconv.FormatInt(orderID, 10), map[string]any{
		"delivery_state": updated.DeliveryState,
	})

	view := ordersvc.NewView(updated)
	return &view, nil
}

// checkDeliverable gates delivery transitions: pickup orders have no
// courier lifecycle, aborted orders have nothing to deliver, and the state
// machine only moves forward.
func checkDeliverable(order *models.Order, target enums.DeliveryState) error {
	if order.DeliveryMethod != enums.DeliveryMethodDelivery {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "pickup orders are not dispatched")
	}
	if order.State == enums.OrderStateCancelled || order.State == enums.OrderStateFailed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order was aborted").
			WithDetails(map[string]any{"state": order.State})
	}
	if !order.DeliveryState.CanAdvanceTo(target) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid delivery transition").
			WithDetails(map[string]any{"from": order.DeliveryState, "to": target})
	}
	return nil
}
