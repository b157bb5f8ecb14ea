package payments

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	ordersvc "github.com/mavasquez/ferrevia-backend/internal/orders"
	"github.com/mavasquez/ferrevia-backend/pkg/config"
	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func paymentConfig() config.PaymentConfig {
	return config.PaymentConfig{
		Provider:      "webpay",
		Currency:      "CLP",
		MerchantID:    "M-100",
		CommerceCode:  "597012345678",
		SharedSecret:  "secret",
		ReturnURL:     "https://api.test/payments/return",
		NotifyURL:     "https://api.test/payments/notify",
		StorefrontURL: "https://shop.test",
	}
}

func newFixture(t *testing.T) (*gorm.DB, *Service) {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Order{},
		&models.OrderLine{},
		&models.PaymentAttempt{},
	))

	log := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	service := NewService(
		gormTxRunner{db: db},
		NewRepository(db),
		ordersvc.NewRepository(db),
		NewSigner("secret"),
		paymentConfig(),
		log,
	)
	return db, service
}

func seedOrder(t *testing.T, db *gorm.DB, state enums.OrderState) *models.Order {
	t.Helper()
	order := &models.Order{
		BuyerRUT:       "11111111-1",
		State:          state,
		DeliveryMethod: enums.DeliveryMethodDelivery,
		DeliveryState:  enums.DeliveryStatePending,
		TotalAmount:    decimal.NewFromInt(61980),
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestInitiateBuildsSignedHandoff(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	order := seedOrder(t, db, enums.OrderStatePending)

	handoff, err := service.Initiate(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, BuyOrderFor(order.ID, 1), handoff.BuyOrder)
	assert.Equal(t, SessionIDFor("11111111-1", order.ID), handoff.SessionID)
	assert.True(t, handoff.Amount.Equal(order.TotalAmount))
	assert.Equal(t, "CLP", handoff.Currency)
	assert.Equal(t,
		NewSigner("secret").Handoff(handoff.BuyOrder, handoff.SessionID, handoff.Amount, handoff.Currency),
		handoff.Signature)

	var attempt models.PaymentAttempt
	require.NoError(t, db.Where("buy_order = ?", handoff.BuyOrder).First(&attempt).Error)
	assert.Equal(t, enums.PaymentStateInitiated, attempt.State)
	assert.True(t, attempt.Amount.Equal(order.TotalAmount),
		"attempt amount must snapshot the order total")
}

func TestInitiateRetryVoidsOpenAttempt(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	order := seedOrder(t, db, enums.OrderStatePending)

	first, err := service.Initiate(context.Background(), order.ID)
	require.NoError(t, err)
	second, err := service.Initiate(context.Background(), order.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.BuyOrder, second.BuyOrder)

	var prev models.PaymentAttempt
	require.NoError(t, db.Where("buy_order = ?", first.BuyOrder).First(&prev).Error)
	assert.Equal(t, enums.PaymentStateVoided, prev.State, "superseded attempt must be voided")

	var count int64
	require.NoError(t, db.Model(&models.PaymentAttempt{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count, "history keeps every attempt")
}

func TestInitiateRejectsNonPendingOrder(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	order := seedOrder(t, db, enums.OrderStateCancelled)

	_, err := service.Initiate(context.Background(), order.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestInitiateRejectsAuthorizedOrder(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	order := seedOrder(t, db, enums.OrderStatePending)
	require.NoError(t, db.Create(&models.PaymentAttempt{
		OrderID:  order.ID,
		Provider: "webpay",
		State:    enums.PaymentStateAuthorized,
		Amount:   order.TotalAmount,
		Currency: "CLP",
		BuyOrder: "FV-preexisting-1",
	}).Error)

	_, err := service.Initiate(context.Background(), order.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestReturnReadsWithoutMutating(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	order := seedOrder(t, db, enums.OrderStatePending)
	handoff, err := service.Initiate(context.Background(), order.ID)
	require.NoError(t, err)

	view, err := service.Return(context.Background(), handoff.BuyOrder)
	require.NoError(t, err)
	assert.Equal(t, order.ID, view.OrderID)
	assert.Equal(t, enums.PaymentStateInitiated, view.State)
	assert.Contains(t, view.RedirectURL, "https://shop.test/orders/")

	_, err = service.Return(context.Background(), "FV-unknown")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
