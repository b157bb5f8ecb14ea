package fulfillment

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	ordersvc "github.com/mavasquez/ferrevia-backend/internal/orders"
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

type noopAudit struct{}

func (noopAudit) Record(context.Context, string, string, string, map[string]any) {}

func newFixture(t *testing.T) (*gorm.DB, *Service) {
	t.Helper()
	dsn := "file:fulfillment_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderLine{}, &models.PaymentAttempt{}))

	log := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	return db, NewService(gormTxRunner{db: db}, ordersvc.NewRepository(db), noopAudit{}, log)
}

func seedOrder(t *testing.T, db *gorm.DB, method enums.DeliveryMethod, state enums.OrderState) int64 {
	t.Helper()
	order := models.Order{
		BuyerRUT:       "11111111-1",
		State:          state,
		DeliveryMethod: method,
		DeliveryState:  enums.DeliveryStatePending,
		TotalAmount:    decimal.NewFromInt(9990),
	}
	require.NoError(t, db.Create(&order).Error)
	return order.ID
}

func stateConflict(t *testing.T, err error) {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestAssignCourier(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCompleted)

	start := time.Now().UTC().Add(2 * time.Hour)
	end := start.Add(4 * time.Hour)
	view, err := service.AssignCourier(context.Background(), orderID, AssignInput{
		CourierRUT:  "99.999.999-K",
		WindowStart: &start,
		WindowEnd:   &end,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.DeliveryStateAssigned, view.Delivery.State)
	require.NotNil(t, view.Delivery.CourierRUT)
	assert.Equal(t, "99999999-K", *view.Delivery.CourierRUT)
	assert.NotNil(t, view.Delivery.AssignedAt)
}

func TestAssignCourierRejectsBackwardsWindow(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCompleted)

	start := time.Now().UTC()
	end := start.Add(-time.Hour)
	_, err := service.AssignCourier(context.Background(), orderID, AssignInput{
		CourierRUT:  "99999999-K",
		WindowStart: &start,
		WindowEnd:   &end,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestPickupOrdersAreNotDispatched(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodPickup, enums.OrderStateCompleted)

	_, err := service.AssignCourier(context.Background(), orderID, AssignInput{CourierRUT: "99999999-K"})
	stateConflict(t, err)
}

func TestAbortedOrdersAreNotDispatched(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCancelled)

	_, err := service.AssignCourier(context.Background(), orderID, AssignInput{CourierRUT: "99999999-K"})
	stateConflict(t, err)
}

func TestDeliveredRunIsTerminal(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCompleted)
	ctx := context.Background()

	_, err := service.AssignCourier(ctx, orderID, AssignInput{CourierRUT: "99999999-K"})
	require.NoError(t, err)
	_, err = service.MarkInTransit(ctx, orderID)
	require.NoError(t, err)

	proof := "https://cdn.test/proof/1.jpg"
	view, err := service.RecordProof(ctx, orderID, ProofInput{Outcome: "delivered", ProofURL: &proof})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStateDelivered, view.Delivery.State)
	assert.NotNil(t, view.Delivery.DeliveredAt)

	// Nothing moves a delivered order, not even the manual override.
	_, err = service.MarkInTransit(ctx, orderID)
	stateConflict(t, err)
	_, err = service.SetDeliveryState(ctx, orderID, "assigned")
	stateConflict(t, err)
}

func TestDispatchRequiresAssignedCourier(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCompleted)

	// Straight from pending, nobody has been assigned yet.
	_, err := service.MarkInTransit(context.Background(), orderID)
	stateConflict(t, err)

	var order models.Order
	require.NoError(t, db.First(&order, orderID).Error)
	assert.Equal(t, enums.DeliveryStatePending, order.DeliveryState)
	assert.Nil(t, order.DispatchedAt)
}

func TestRepeatedDispatchKeepsTimestamp(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCompleted)
	ctx := context.Background()

	_, err := service.AssignCourier(ctx, orderID, AssignInput{CourierRUT: "99999999-K"})
	require.NoError(t, err)
	first, err := service.MarkInTransit(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, first.Delivery.DispatchedAt)

	// Courier app retries the dispatch call.
	second, err := service.MarkInTransit(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStateInTransit, second.Delivery.State)
	require.NotNil(t, second.Delivery.DispatchedAt)
	assert.True(t, second.Delivery.DispatchedAt.Equal(*first.Delivery.DispatchedAt))
}

func TestProofRequiresInTransitDelivery(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCompleted)
	ctx := context.Background()

	// Never dispatched at all.
	_, err := service.RecordProof(ctx, orderID, ProofInput{Outcome: "delivered"})
	stateConflict(t, err)

	// Assigned but still not on the road.
	_, err = service.AssignCourier(ctx, orderID, AssignInput{CourierRUT: "99999999-K"})
	require.NoError(t, err)
	_, err = service.RecordProof(ctx, orderID, ProofInput{Outcome: "delivered"})
	stateConflict(t, err)

	var order models.Order
	require.NoError(t, db.First(&order, orderID).Error)
	assert.Equal(t, enums.DeliveryStateAssigned, order.DeliveryState)
	assert.Nil(t, order.DeliveredAt)
}

func TestFailedRunCanBeRedispatched(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCompleted)
	ctx := context.Background()

	_, err := service.AssignCourier(ctx, orderID, AssignInput{CourierRUT: "99999999-K"})
	require.NoError(t, err)
	_, err = service.MarkInTransit(ctx, orderID)
	require.NoError(t, err)

	reason := "nobody home"
	view, err := service.RecordProof(ctx, orderID, ProofInput{Outcome: "failed", FailureReason: &reason})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStateFailed, view.Delivery.State)
	require.NotNil(t, view.Delivery.FailureReason)

	// failed -> assigned is the one allowed reopening; it wipes the reason.
	view, err = service.AssignCourier(ctx, orderID, AssignInput{CourierRUT: "88888888-8"})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStateAssigned, view.Delivery.State)
	assert.Nil(t, view.Delivery.FailureReason)
	assert.Equal(t, "88888888-8", *view.Delivery.CourierRUT)
}

func TestFailedOutcomeNeedsReason(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCompleted)

	_, err := service.RecordProof(context.Background(), orderID, ProofInput{Outcome: "failed"})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestProofOnPendingOrderCompletesIt(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStatePending)
	ctx := context.Background()

	_, err := service.AssignCourier(ctx, orderID, AssignInput{CourierRUT: "99999999-K"})
	require.NoError(t, err)
	_, err = service.MarkInTransit(ctx, orderID)
	require.NoError(t, err)

	view, err := service.RecordProof(ctx, orderID, ProofInput{Outcome: "delivered"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStateCompleted, view.State)
}

func TestManualOverrideFollowsForwardPath(t *testing.T) {
	t.Parallel()

	db, service := newFixture(t)
	orderID := seedOrder(t, db, enums.DeliveryMethodDelivery, enums.OrderStateCompleted)
	ctx := context.Background()

	view, err := service.SetDeliveryState(ctx, orderID, "preparing")
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatePreparing, view.Delivery.State)

	_, err = service.SetDeliveryState(ctx, orderID, "pending")
	stateConflict(t, err)

	_, err = service.SetDeliveryState(ctx, orderID, "teleported")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
