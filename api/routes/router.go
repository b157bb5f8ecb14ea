package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mavasquez/ferrevia-backend/api/controllers"
	fulfillmentcontrollers "github.com/mavasquez/ferrevia-backend/api/controllers/fulfillment"
	ordercontrollers "github.com/mavasquez/ferrevia-backend/api/controllers/orders"
	paymentcontrollers "github.com/mavasquez/ferrevia-backend/api/controllers/payments"
	productcontrollers "github.com/mavasquez/ferrevia-backend/api/controllers/products"
	"github.com/mavasquez/ferrevia-backend/api/middleware"
	"github.com/mavasquez/ferrevia-backend/internal/fulfillment"
	"github.com/mavasquez/ferrevia-backend/internal/inventory"
	"github.com/mavasquez/ferrevia-backend/internal/orders"
	"github.com/mavasquez/ferrevia-backend/internal/payments"
	"github.com/mavasquez/ferrevia-backend/internal/products"
	"github.com/mavasquez/ferrevia-backend/internal/saga"
	"github.com/mavasquez/ferrevia-backend/pkg/db"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
	"github.com/mavasquez/ferrevia-backend/pkg/metrics"
	"github.com/mavasquez/ferrevia-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Logger      *logger.Logger
	DB          db.Pinger
	Redis       *redis.Client
	HTTPMetrics *metrics.HTTPMetrics
	Registry    prometheus.Gatherer

	Orders      *orders.Service
	Payments    *payments.Service
	Saga        *saga.Coordinator
	Fulfillment *fulfillment.Service
	Products    products.Repository
	Inventory   inventory.Service
}

// NewRouter assembles the HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
		middleware.Metrics(deps.HTTPMetrics),
	)

	readyHandler := controllers.HealthReady(deps.DB, nil, deps.Logger)
	if deps.Redis != nil {
		readyHandler = controllers.HealthReady(deps.DB, deps.Redis, deps.Logger)
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", readyHandler)
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(deps.Orders, deps.Logger))
			r.Get("/", ordercontrollers.List(deps.Orders, deps.Logger))
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(deps.Orders, deps.Logger))
				r.Post("/cancel", ordercontrollers.Cancel(deps.Orders, deps.Logger))
				r.Post("/fulfillment/assign", fulfillmentcontrollers.Assign(deps.Fulfillment, deps.Logger))
				r.Post("/fulfillment/transit", fulfillmentcontrollers.Transit(deps.Fulfillment, deps.Logger))
				r.Post("/fulfillment/proof", fulfillmentcontrollers.Proof(deps.Fulfillment, deps.Logger))
				r.Put("/fulfillment/state", fulfillmentcontrollers.State(deps.Fulfillment, deps.Logger))
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/initiate", paymentcontrollers.Initiate(deps.Payments, deps.Logger))
			r.Get("/return", paymentcontrollers.Return(deps.Payments, deps.Logger))
			r.Post("/notify", paymentcontrollers.Notify(deps.Saga, deps.Logger))
		})

		r.Route("/products/{productID}", func(r chi.Router) {
			r.Get("/", productcontrollers.Detail(deps.Products, deps.Logger))
			r.Post("/restock", productcontrollers.Restock(deps.Inventory, deps.Logger))
			r.Get("/movements", productcontrollers.Movements(deps.Inventory, deps.Logger))
			r.Get("/conservation", productcontrollers.Conservation(deps.Inventory, deps.Logger))
		})
	})

	return r
}
