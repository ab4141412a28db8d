package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/handlers/customerctx"
	"github.com/nkiryanov/numbermart/internal/handlers/render"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/service/reconcile"
)

func handleReconciliation(rs reconcileService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := queryUUID(r, "customer_id")
		if !ok {
			render.ServiceError(w, "Invalid customer id", http.StatusBadRequest)
			return
		}

		found, err := rs.CheckInconsistencies(r.Context(), customerID)
		switch {
		case err == nil:
			if found == nil {
				found = []reconcile.Inconsistency{}
			}
			render.JSON(w, found)
		case errors.Is(err, apperrors.ErrCustomerNotFound):
			render.ServiceError(w, "Customer not found", http.StatusNotFound)
		default:
			l.Error("Failed to check balances", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleFixBalance(rs reconcileService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		customerID, ok := pathUUID(r, "customer_id")
		if !ok {
			render.ServiceError(w, "Customer not found", http.StatusNotFound)
			return
		}

		res, err := rs.FixBalance(r.Context(), customerID, actor.ID)
		switch {
		case err == nil:
			render.JSON(w, res)
		case errors.Is(err, apperrors.ErrCustomerNotFound):
			render.ServiceError(w, "Customer not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			render.ServiceError(w, "Ledger says the customer owes money, fix it manually", http.StatusConflict)
		default:
			l.Error("Failed to fix balance", "customer_id", customerID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
