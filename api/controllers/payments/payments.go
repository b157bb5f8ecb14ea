package payments

import (
	"net/http"

	"github.com/mavasquez/ferrevia-backend/api/responses"
	"github.com/mavasquez/ferrevia-backend/api/validators"
	internalpayments "github.com/mavasquez/ferrevia-backend/internal/payments"
	"github.com/mavasquez/ferrevia-backend/internal/saga"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
)

type initiateRequest struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

// Initiate opens a payment attempt and returns the signed provider
// handoff the storefront redirects the buyer with.
func Initiate(service *internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req initiateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		handoff, err := service.Initiate(r.Context(), req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, handoff)
	}
}

// Return is the browser-facing landing after the provider flow. It only
// reads state; settlement happens through Notify.
func Return(service *internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// venta_id carries the buy order; the token is the provider's session
		// handle and plays no part in the read.
		ventaID, err := validators.RequiredQuery(r, "venta_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := service.Return(r.Context(), ventaID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Notify is the provider's server-to-server callback. It is idempotent:
// replays of an applied callback return the settled state unchanged.
func Notify(coordinator *saga.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input saga.NotifyInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := coordinator.ApplyProviderResult(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
