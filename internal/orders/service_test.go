package orders

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mavasquez/ferrevia-backend/internal/buyers"
	"github.com/mavasquez/ferrevia-backend/internal/products"
	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	pkgerrors "github.com/mavasquez/ferrevia-backend/pkg/errors"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
	"github.com/mavasquez/ferrevia-backend/pkg/metrics"
	"github.com/rs/zerolog"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type recordedEvent struct {
	Action   string
	EntityID string
}

type fakeAudit struct {
	events []recordedEvent
}

func (f *fakeAudit) Record(_ context.Context, action, _, entityID string, _ map[string]any) {
	f.events = append(f.events, recordedEvent{Action: action, EntityID: entityID})
}

type fixture struct {
	db      *gorm.DB
	service *Service
	audit   *fakeAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Buyer{},
		&models.Product{},
		&models.Order{},
		&models.OrderLine{},
		&models.InventoryMovement{},
		&models.PaymentAttempt{},
	))

	sink := &fakeAudit{}
	log := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	service := NewService(
		gormTxRunner{db: db},
		NewRepository(db),
		buyers.NewRepository(db),
		products.NewRepository(db),
		sink,
		metrics.NewSagaMetrics(nil),
		log,
	)
	return &fixture{db: db, service: service, audit: sink}
}

func (f *fixture) seedBuyer(t *testing.T, rut string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Buyer{RUT: rut, Name: "Test Buyer", Email: "buyer@test.cl"}).Error)
}

func (f *fixture) seedProduct(t *testing.T, price int64, qty int) int64 {
	t.Helper()
	product := models.Product{
		SKU:               "SKU-" + uuid.NewString()[:8],
		Name:              "martillo",
		UnitPrice:         decimal.NewFromInt(price),
		QuantityAvailable: qty,
	}
	require.NoError(t, f.db.Create(&product).Error)
	return product.ID
}

func TestCreateSnapshotsCatalogPrices(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBuyer(t, "11111111-1")
	hammer := f.seedProduct(t, 5990, 10)
	drill := f.seedProduct(t, 49990, 3)

	clientTotal := decimal.NewFromInt(1)
	view, err := f.service.Create(context.Background(), CreateOrderInput{
		BuyerRUT:       "11.111.111-1",
		DeliveryMethod: "delivery",
		ClientTotal:    &clientTotal,
		Lines: []LineInput{
			{ProductID: hammer, Qty: 2, UnitPrice: decimal.NewFromInt(1)},
			{ProductID: drill, Qty: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatePending, view.State)
	assert.Equal(t, "11111111-1", view.BuyerRUT)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(2*5990+49990)),
		"client total must be replaced by the computed one, got %s", view.TotalAmount)
	require.Len(t, view.Lines, 2)
	assert.True(t, view.Lines[0].UnitPrice.Equal(decimal.NewFromInt(5990)))

	var product models.Product
	require.NoError(t, f.db.First(&product, hammer).Error)
	assert.Equal(t, 8, product.QuantityAvailable)

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, "order.created", f.audit.events[0].Action)
}

func TestCreateInsufficientStockRollsBackEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBuyer(t, "22222222-2")
	hammer := f.seedProduct(t, 5990, 10)
	drill := f.seedProduct(t, 49990, 1)

	_, err := f.service.Create(context.Background(), CreateOrderInput{
		BuyerRUT:       "22222222-2",
		DeliveryMethod: "pickup",
		Lines: []LineInput{
			{ProductID: hammer, Qty: 2},
			{ProductID: drill, Qty: 5},
		},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount, "no order row may survive a failed reservation")

	var product models.Product
	require.NoError(t, f.db.First(&product, hammer).Error)
	assert.Equal(t, 10, product.QuantityAvailable)
}

func TestCreateNeverOversells(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBuyer(t, "11111111-1")
	productID := f.seedProduct(t, 1000, 5)

	// Ten single-unit orders against a stock of five: the conditional
	// decrement admits exactly five and rejects the rest, no matter how
	// the requests interleave.
	var created, rejected int
	for i := 0; i < 10; i++ {
		_, err := f.service.Create(context.Background(), CreateOrderInput{
			BuyerRUT:       "11111111-1",
			DeliveryMethod: "pickup",
			Lines:          []LineInput{{ProductID: productID, Qty: 1}},
		})
		if err == nil {
			created++
			continue
		}
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		require.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
		rejected++
	}
	assert.Equal(t, 5, created)
	assert.Equal(t, 5, rejected)

	var product models.Product
	require.NoError(t, f.db.First(&product, productID).Error)
	assert.Zero(t, product.QuantityAvailable)

	// The ledger accounts for every admitted unit and nothing more.
	var delta int64
	require.NoError(t, f.db.Model(&models.InventoryMovement{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(delta), 0)").Scan(&delta).Error)
	assert.EqualValues(t, -5, delta)
}

func TestCreateUnknownBuyerNeedsGuestContact(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	hammer := f.seedProduct(t, 5990, 10)

	_, err := f.service.Create(context.Background(), CreateOrderInput{
		BuyerRUT:       "33333333-3",
		DeliveryMethod: "pickup",
		Lines:          []LineInput{{ProductID: hammer, Qty: 1}},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	view, err := f.service.Create(context.Background(), CreateOrderInput{
		BuyerRUT:       "33333333-3",
		Guest:          &GuestContact{Name: "Invitado", Email: "guest@test.cl"},
		DeliveryMethod: "pickup",
		Lines:          []LineInput{{ProductID: hammer, Qty: 1}},
	})
	require.NoError(t, err)
	require.NotNil(t, view.GuestName)
	assert.Equal(t, "Invitado", *view.GuestName)
}

func TestCreateRejectsDuplicateLines(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBuyer(t, "44444444-4")
	hammer := f.seedProduct(t, 5990, 10)

	_, err := f.service.Create(context.Background(), CreateOrderInput{
		BuyerRUT:       "44444444-4",
		DeliveryMethod: "pickup",
		Lines: []LineInput{
			{ProductID: hammer, Qty: 1},
			{ProductID: hammer, Qty: 2},
		},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestCancelRestocksAndVoidsOpenAttempt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBuyer(t, "55555555-5")
	hammer := f.seedProduct(t, 5990, 10)

	view, err := f.service.Create(context.Background(), CreateOrderInput{
		BuyerRUT:       "55555555-5",
		DeliveryMethod: "delivery",
		Lines:          []LineInput{{ProductID: hammer, Qty: 4}},
	})
	require.NoError(t, err)

	attempt := models.PaymentAttempt{
		OrderID:  view.ID,
		Provider: "webpay",
		State:    enums.PaymentStateInitiated,
		Amount:   view.TotalAmount,
		Currency: "CLP",
		BuyOrder: "FV-test-1",
	}
	require.NoError(t, f.db.Create(&attempt).Error)

	cancelled, err := f.service.Cancel(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStateCancelled, cancelled.State)

	var product models.Product
	require.NoError(t, f.db.First(&product, hammer).Error)
	assert.Equal(t, 10, product.QuantityAvailable)

	var reloaded models.PaymentAttempt
	require.NoError(t, f.db.First(&reloaded, attempt.ID).Error)
	assert.Equal(t, enums.PaymentStateVoided, reloaded.State)

	// Cancel is not idempotent: a second call hits a terminal order.
	_, err = f.service.Cancel(context.Background(), view.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestCancelRejectsAuthorizedPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBuyer(t, "66666666-6")
	hammer := f.seedProduct(t, 5990, 10)

	view, err := f.service.Create(context.Background(), CreateOrderInput{
		BuyerRUT:       "66666666-6",
		DeliveryMethod: "pickup",
		Lines:          []LineInput{{ProductID: hammer, Qty: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, f.db.Create(&models.PaymentAttempt{
		OrderID:  view.ID,
		Provider: "webpay",
		State:    enums.PaymentStateAuthorized,
		Amount:   view.TotalAmount,
		Currency: "CLP",
		BuyOrder: "FV-test-2",
	}).Error)

	_, err = f.service.Cancel(context.Background(), view.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestListByBuyerNewestFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedBuyer(t, "77777777-7")
	hammer := f.seedProduct(t, 5990, 100)

	for i := 0; i < 3; i++ {
		_, err := f.service.Create(context.Background(), CreateOrderInput{
			BuyerRUT:       "77777777-7",
			DeliveryMethod: "pickup",
			Lines:          []LineInput{{ProductID: hammer, Qty: 1}},
		})
		require.NoError(t, err)
	}

	views, err := f.service.ListByBuyer(context.Background(), "77.777.777-7", 2, 0)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Greater(t, views[0].ID, views[1].ID)
}
