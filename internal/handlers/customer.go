package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/handlers/customerctx"
	"github.com/nkiryanov/numbermart/internal/handlers/render"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
)

func handleMe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, _ := customerctx.FromContext(r.Context())
		render.JSON(w, newCustomerResponse(customer))
	})
}

func handleBan(cs customerService, l logger.Logger) http.Handler {
	type request struct {
		Reason string `json:"reason" validate:"max=500"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := adminTarget(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		c, err := cs.Ban(r.Context(), id, data.Reason, actor.ID)
		renderCustomer(w, c, err, l)
	})
}

func handleUnban(cs customerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := adminTarget(w, r)
		if !ok {
			return
		}

		c, err := cs.Unban(r.Context(), id, actor.ID)
		renderCustomer(w, c, err, l)
	})
}

func handleSetCapabilities(cs customerService, l logger.Logger) http.Handler {
	type request struct {
		Capabilities []string `json:"capabilities" validate:"dive,capability"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := adminTarget(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		c, err := cs.SetCapabilities(r.Context(), id, data.Capabilities, actor.ID)
		renderCustomer(w, c, err, l)
	})
}

// Acting admin and the customer from the path
func adminTarget(w http.ResponseWriter, r *http.Request) (models.Customer, uuid.UUID, bool) {
	actor, ok := customerctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
		return actor, uuid.Nil, false
	}

	id, ok := pathUUID(r, "id")
	if !ok {
		render.ServiceError(w, "Customer not found", http.StatusNotFound)
		return actor, id, false
	}

	return actor, id, true
}

func renderCustomer(w http.ResponseWriter, c models.Customer, err error, l logger.Logger) {
	switch {
	case err == nil:
		render.JSON(w, newCustomerResponse(c))
	case errors.Is(err, apperrors.ErrCustomerNotFound):
		render.ServiceError(w, "Customer not found", http.StatusNotFound)
	default:
		l.Error("Failed to update customer", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
