package saga

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mavasquez/ferrevia-backend/internal/inventory"
	ordersvc "github.com/mavasquez/ferrevia-backend/internal/orders"
	"github.com/mavasquez/ferrevia-backend/internal/payments"
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

type dedupStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// NotifyInput is the provider's server-to-server callback. VentaID is the
// buy order issued at handoff time; Token is the provider's transaction
// token; Signature seals venta_id, token and status.
type NotifyInput struct {
	VentaID           string `json:"venta_id" validate:"required"`
	Token             string `json:"token" validate:"required"`
	Status            string `json:"status" validate:"required"`
	Signature         string `json:"signature" validate:"required"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	Installments      *int   `json:"installments,omitempty"`
}

// Outcome reports how a callback was applied. Duplicate means the attempt
// was already settled with the same result and nothing changed.
type Outcome struct {
	OrderID      int64              `json:"order_id"`
	PaymentState enums.PaymentState `json:"payment_state"`
	OrderState   enums.OrderState   `json:"order_state"`
	Duplicate    bool               `json:"duplicate"`
}

// Coordinator settles payment callbacks: it advances the attempt, then
// either finishes the order or compensates the stock reservation, all in
// one transaction. It is the only writer of payment outcomes.
type Coordinator struct {
	tx       txRunner
	attempts payments.Repository
	orders   ordersvc.Repository
	signer   *payments.Signer
	dedup    dedupStore
	dedupTTL time.Duration
	audit    auditSink
	metrics  *metrics.SagaMetrics
	log      *logger.Logger
}

// NewCoordinator wires the saga coordinator. dedup may be nil when the
// duplicate guard is not deployed; idempotency then rests entirely on the
// database state check.
func NewCoordinator(
	tx txRunner,
	attemptRepo payments.Repository,
	orderRepo ordersvc.Repository,
	signer *payments.Signer,
	dedup dedupStore,
	dedupTTL time.Duration,
	audit auditSink,
	sagaMetrics *metrics.SagaMetrics,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		tx:       tx,
		attempts: attemptRepo,
		orders:   orderRepo,
		signer:   signer,
		dedup:    dedup,
		dedupTTL: dedupTTL,
		audit:    audit,
		metrics:  sagaMetrics,
		log:      log,
	}
}

// ApplyProviderResult verifies and applies one notify callback.
//
// The signature is checked before anything else touches storage; a bad
// signature is rejected without revealing which part failed. Replays are
// absorbed twice over: a best-effort Redis guard short-circuits repeats of
// the exact same callback, and the attempt's own state is re-checked under
// a row lock, so even guard misses cannot settle an attempt twice.
func (c *Coordinator) ApplyProviderResult(ctx context.Context, input NotifyInput) (*Outcome, error) {
	ctx = c.log.WithAttemptToken(ctx, input.Token)

	if !c.signer.VerifyNotify(input.VentaID, input.Token, input.Status, input.Signature) {
		c.log.Warn(ctx, "payment notify rejected, bad signature")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "invalid signature")
	}
	status, err := enums.ParseProviderStatus(input.Status)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown provider status")
	}

	if fresh := c.claimCallback(ctx, input); !fresh {
		outcome, settled, err := c.replayOutcome(ctx, input.VentaID)
		if err != nil {
			return nil, err
		}
		if settled {
			return outcome, nil
		}
		// The guard was claimed but the attempt never settled, so the
		// earlier apply must have died between the claim and its commit.
		// Fall through and apply; the row lock below still absorbs any
		// concurrent replay.
	}

	var outcome *Outcome
	err = c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		attemptRepo := c.attempts.WithTx(tx)
		attempt, err := attemptRepo.FindByBuyOrderForUpdate(ctx, input.VentaID)
		if err != nil {
			return err
		}

		if attempt.State.IsTerminal() {
			if attempt.State == status.PaymentState() {
				order, err := c.orders.WithTx(tx).FindByID(ctx, attempt.OrderID)
				if err != nil {
					return err
				}
				outcome = &Outcome{
					OrderID:      order.ID,
					PaymentState: attempt.State,
					OrderState:   order.State,
					Duplicate:    true,
				}
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "attempt already settled with a different outcome").
				WithDetails(map[string]any{"state": attempt.State})
		}

		applyProviderFields(attempt, status, input)
		if err := attemptRepo.UpdateOutcome(ctx, attempt); err != nil {
			return err
		}

		orderState, err := c.settleOrder(ctx, tx, attempt.OrderID, status)
		if err != nil {
			return err
		}
		outcome = &Outcome{
			OrderID:      attempt.OrderID,
			PaymentState: attempt.State,
			OrderState:   orderState,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.Duplicate {
		c.metrics.IncDuplicateNotify()
		c.log.Info(ctx, "payment notify replayed, no changes")
		return outcome, nil
	}

	c.metrics.IncPaymentOutcome(string(outcome.PaymentState))
	if outcome.OrderState != enums.OrderStateCompleted {
		c.metrics.IncCompensations()
	}
	ctx = c.log.WithOrderID(ctx, outcome.OrderID)
	c.log.Info(c.log.WithField(ctx, "payment_state", outcome.PaymentState), "payment notify applied")
	c.audit.Record(ctx, "payment."+string(outcome.PaymentState), "order",
		strconv.FormatInt(outcome.OrderID, 10), map[string]any{
			"venta_id":    input.VentaID,
			"order_state": outcome.OrderState,
		})
	return outcome, nil
}

// settleOrder moves the order to its terminal state for the given provider
// outcome. Everything except authorization releases the reservation.
func (c *Coordinator) settleOrder(ctx context.Context, tx *gorm.DB, orderID int64, status enums.ProviderStatus) (enums.OrderState, error) {
	orderRepo := c.orders.WithTx(tx)
	order, err := orderRepo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.State != enums.OrderStatePending {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "order no longer pending").
			WithDetails(map[string]any{"state": order.State})
	}

	target := status.OrderOutcome()
	if target != enums.OrderStateCompleted {
		requests := make([]inventory.Reservation, 0, len(order.Lines))
		for _, line := range order.Lines {
			requests = append(requests, inventory.Reservation{ProductID: line.ProductID, Qty: line.Qty})
		}
		if _, err := inventory.Release(ctx, tx, order.ID, requests); err != nil {
			return "", err
		}
	}
	if err := orderRepo.UpdateState(ctx, order.ID, target); err != nil {
		return "", err
	}
	return target, nil
}

// claimCallback marks this exact callback as seen. Guard failures fall
// through to the database path rather than dropping the callback.
func (c *Coordinator) claimCallback(ctx context.Context, input NotifyInput) bool {
	if c.dedup == nil {
		return true
	}
	key := c.dedup.IdempotencyKey("payment-notify", input.VentaID+":"+input.Token+":"+input.Status)
	fresh, err := c.dedup.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), c.dedupTTL)
	if err != nil {
		c.log.Error(ctx, "notify dedup guard unavailable", err)
		return true
	}
	return fresh
}

// replayOutcome answers a guard-detected duplicate from current state. The
// guard alone is not proof the callback was applied: it is claimed before
// the transaction commits, so settled is false while the attempt is still
// open and the caller must run the apply path instead of answering.
func (c *Coordinator) replayOutcome(ctx context.Context, ventaID string) (*Outcome, bool, error) {
	attempt, err := c.attempts.FindByBuyOrder(ctx, ventaID)
	if err != nil {
		return nil, false, err
	}
	if !attempt.State.IsTerminal() {
		c.log.Warn(ctx, "notify guard hit but attempt is still open, reapplying")
		return nil, false, nil
	}
	order, err := c.orders.FindByID(ctx, attempt.OrderID)
	if err != nil {
		return nil, false, err
	}
	c.metrics.IncDuplicateNotify()
	c.log.Info(ctx, "payment notify deduplicated")
	return &Outcome{
		OrderID:      order.ID,
		PaymentState: attempt.State,
		OrderState:   order.State,
		Duplicate:    true,
	}, true, nil
}

func applyProviderFields(attempt *models.PaymentAttempt, status enums.ProviderStatus, input NotifyInput) {
	attempt.State = status.PaymentState()
	if input.AuthorizationCode != "" {
		attempt.AuthorizationCode = &input.AuthorizationCode
	}
	if input.PaymentMethod != "" {
		attempt.PaymentMethod = &input.PaymentMethod
	}
	attempt.Installments = input.Installments
	if raw, err := json.Marshal(input); err == nil {
		attempt.RawResponse = raw
	}
}

// ExpireStaleAttempts settles attempts stuck in initiated state past the
// TTL as provider timeouts: the attempt fails and the order compensates.
// An attempt whose order already left pending is voided rather than failed,
// since the order settled elsewhere and there is nothing to compensate.
// Partial failures do not stop the sweep.
func (c *Coordinator) ExpireStaleAttempts(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	stale, err := c.attempts.ListInitiatedBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	var expired int
	var errs error
	for i := range stale {
		attempt := &stale[i]
		var settled bool
		err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
			locked, err := c.attempts.WithTx(tx).FindByBuyOrderForUpdate(ctx, attempt.BuyOrder)
			if err != nil {
				return err
			}
			if locked.State != enums.PaymentStateInitiated {
				return nil
			}
			order, err := c.orders.WithTx(tx).FindByID(ctx, locked.OrderID)
			if err != nil {
				return err
			}
			if order.State != enums.OrderStatePending {
				// The order settled through another path while this attempt
				// stayed open. Void it so the sweep stops listing it; there
				// is nothing left to compensate.
				locked.State = enums.PaymentStateVoided
				return c.attempts.WithTx(tx).UpdateOutcome(ctx, locked)
			}
			locked.State = enums.PaymentStateFailed
			if err := c.attempts.WithTx(tx).UpdateOutcome(ctx, locked); err != nil {
				return err
			}
			if _, err := c.settleOrder(ctx, tx, locked.OrderID, enums.ProviderStatusTimeout); err != nil {
				return err
			}
			settled = true
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !settled {
			continue
		}
		expired++
		c.metrics.IncPaymentOutcome(string(enums.PaymentStateFailed))
		c.metrics.IncCompensations()
		c.audit.Record(ctx, "payment.expired", "order",
			strconv.FormatInt(attempt.OrderID, 10), map[string]any{"buy_order": attempt.BuyOrder})
	}
	if expired > 0 {
		c.log.Info(c.log.WithField(ctx, "expired", expired), "stale payment attempts expired")
	}
	return expired, errs
}

// RecoverCompensations re-runs the stock release for orders that ended in
// a compensating state. Release is idempotent per order line, so replaying
// it repairs any order whose restock was lost without double-crediting the
// ones already compensated.
func (c *Coordinator) RecoverCompensations(ctx context.Context, since time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	var repaired int
	var errs error

	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var candidates []models.Order
		err := tx.WithContext(ctx).
			Preload("Lines").
			Where("state IN ? AND updated_at >= ?",
				[]enums.OrderState{enums.OrderStateCancelled, enums.OrderStateFailed}, since).
			Order("updated_at ASC").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list compensated orders")
		}
		for i := range candidates {
			order := &candidates[i]
			requests := make([]inventory.Reservation, 0, len(order.Lines))
			for _, line := range order.Lines {
				requests = append(requests, inventory.Reservation{ProductID: line.ProductID, Qty: line.Qty})
			}
			applied, err := inventory.Release(ctx, tx, order.ID, requests)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if applied > 0 {
				repaired++
				c.audit.Record(ctx, "compensation.recovered", "order",
					strconv.FormatInt(order.ID, 10), map[string]any{"lines_restocked": applied})
			}
		}
		return nil
	})
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	if repaired > 0 {
		c.metrics.IncCompensations()
		c.log.Warn(c.log.WithField(ctx, "repaired", repaired), "lost compensations recovered")
	}
	return repaired, errs
}
