package payments

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/mavasquez/ferrevia-backend/internal/buyers"
	ordersvc "github.com/mavasquez/ferrevia-backend/internal/orders"
	"github.com/mavasquez/ferrevia-backend/pkg/config"
	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Handoff is the payload handed to the storefront so it can redirect the
// buyer to the provider. Everything the provider needs to start the flow
// travels here, sealed by the handoff signature.
type Handoff struct {
	MerchantID   string          `json:"merchant_id"`
	CommerceCode string          `json:"commerce_code"`
	BuyOrder     string          `json:"buy_order"`
	SessionID    string          `json:"session_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ReturnURL    string          `json:"return_url"`
	NotifyURL    string          `json:"notify_url"`
	Signature    string          `json:"signature"`
}

// ReturnView is what the browser-facing return endpoint shows after the
// buyer comes back from the provider. It reads state, never mutates it:
// only the signed server callback settles an attempt.
type ReturnView struct {
	OrderID     int64              `json:"order_id"`
	State       enums.PaymentState `json:"state"`
	RedirectURL string             `json:"redirect_url"`
}

// Service starts payment attempts and reads their state. Settlement of
// attempts lives in the saga coordinator, which owns the callback.
type Service struct {
	tx       txRunner
	attempts Repository
	orders   ordersvc.Repository
	signer   *Signer
	cfg      config.PaymentConfig
	log      *logger.Logger
}

// NewService wires the payment service.
func NewService(
	tx txRunner,
	attemptRepo Repository,
	orderRepo ordersvc.Repository,
	signer *Signer,
	cfg config.PaymentConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		tx:       tx,
		attempts: attemptRepo,
		orders:   orderRepo,
		signer:   signer,
		cfg:      cfg,
		log:      log,
	}
}

// Initiate opens a new payment attempt for a pending order and returns the
// signed provider handoff. A retry while an earlier attempt is still open
// supersedes it: the old row is voided so the new one is current. Orders
// out of pending state, or already authorized, cannot start attempts.
func (s *Service) Initiate(ctx context.Context, orderID int64) (*Handoff, error) {
	ctx = s.log.WithOrderID(ctx, orderID)

	var handoff *Handoff
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.State != enums.OrderStatePending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not payable").
				WithDetails(map[string]any{"state": order.State})
		}
		if order.CurrentPaymentState() == enums.PaymentStateAuthorized {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already authorized")
		}

		attemptRepo := s.attempts.WithTx(tx)
		res := tx.WithContext(ctx).Model(&models.PaymentAttempt{}).
			Where("order_id = ? AND state = ?", order.ID, enums.PaymentStateInitiated).
			Update("state", enums.PaymentStateVoided)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "void superseded attempt")
		}

		seq, err := attemptRepo.CountByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		attempt := &models.PaymentAttempt{
			OrderID:   order.ID,
			Provider:  s.cfg.Provider,
			State:     enums.PaymentStateInitiated,
			Amount:    order.TotalAmount,
			Currency:  s.cfg.Currency,
			BuyOrder:  BuyOrderFor(order.ID, seq+1),
			SessionID: SessionIDFor(order.BuyerRUT, order.ID),
		}
		if err := attemptRepo.Create(ctx, attempt); err != nil {
			return err
		}

		handoff = &Handoff{
			MerchantID:   s.cfg.MerchantID,
			CommerceCode: s.cfg.CommerceCode,
			BuyOrder:     attempt.BuyOrder,
			SessionID:    attempt.SessionID,
			Amount:       attempt.Amount,
			Currency:     attempt.Currency,
			ReturnURL:    s.cfg.ReturnURL,
			NotifyURL:    s.cfg.NotifyURL,
			Signature:    s.signer.Handoff(attempt.BuyOrder, attempt.SessionID, attempt.Amount, attempt.Currency),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithField(ctx, "buy_order", handoff.BuyOrder), "payment attempt initiated")
	return handoff, nil
}

// Return resolves the browser return from the provider to the attempt's
// current state and the storefront URL to send the buyer to.
func (s *Service) Return(ctx context.Context, buyOrder string) (*ReturnView, error) {
	attempt, err := s.attempts.FindByBuyOrder(ctx, buyOrder)
	if err != nil {
		return nil, err
	}
	return &ReturnView{
		OrderID:     attempt.OrderID,
		State:       attempt.State,
		RedirectURL: fmt.Sprintf("%s/orders/%d", s.cfg.StorefrontURL, attempt.OrderID),
	}, nil
}

// BuyOrderFor derives the provider-facing order token. It is deterministic
// per (order, attempt) so callbacks map back without extra lookups.
func BuyOrderFor(orderID, seq int64) string {
	return fmt.Sprintf("FV-%d-%d", orderID, seq)
}

// SessionIDFor binds the provider session to the buyer.
func SessionIDFor(buyerRUT string, orderID int64) string {
	return fmt.Sprintf("S-%s-%d", buyers.NormalizeRUT(buyerRUT), orderID)
}
