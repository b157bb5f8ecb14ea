package products

import (
	"net/http"

	"github.com/mavasquez/ferrevia-backend/api/responses"
	"github.com/mavasquez/ferrevia-backend/api/validators"
	"github.com/mavasquez/ferrevia-backend/internal/inventory"
	internalproducts "github.com/mavasquez/ferrevia-backend/internal/products"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
	"github.com/mavasquez/ferrevia-backend/pkg/logger"
)

// Detail returns one catalog product.
func Detail(repo internalproducts.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := repo.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

type restockRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Type   string `json:"type" validate:"required,oneof=restock adjustment"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// Restock applies a manual stock correction through the ledger.
func Restock(service inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movement, err := service.Restock(r.Context(), inventory.RestockInput{
			ProductID: id,
			Delta:     req.Delta,
			Type:      enums.MovementType(req.Type),
			Reason:    req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

// Movements returns a product's ledger, oldest first.
func Movements(service inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movements, err := service.MovementsByProduct(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, movements)
	}
}

// Conservation replays a product's ledger against its live counter.
func Conservation(service inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := service.CheckConservation(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
