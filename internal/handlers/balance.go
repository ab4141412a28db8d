package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/handlers/customerctx"
	"github.com/nkiryanov/numbermart/internal/handlers/render"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/money"
	"github.com/nkiryanov/numbermart/internal/repository"
	"github.com/nkiryanov/numbermart/internal/service/balance"
)

func handleBalance() http.Handler {
	type response struct {
		Balance int64  `json:"balance"`
		Display string `json:"display"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The auth middleware reads the customer row on every request, so the balance is fresh
		customer, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Balance: customer.Balance, Display: money.Format(customer.Balance)})
	})
}

func handleLedger(bs balanceService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		limit, okLimit := queryInt(r, "limit")
		offset, okOffset := queryInt(r, "offset")
		if !okLimit || !okOffset {
			render.ServiceError(w, "Invalid pagination", http.StatusBadRequest)
			return
		}

		entries, err := bs.History(r.Context(), repository.ListLedgerOpts{
			CustomerID: &customer.ID,
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			l.Error("Failed to list ledger", "customer_id", customer.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, newLedgerResponse(entries))
	})
}

func handleAuditLedger(bs balanceService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := repository.ListLedgerOpts{}

		for _, k := range q["kind"] {
			opts.Kinds = append(opts.Kinds, models.LedgerKind(k))
		}
		for _, o := range q["origin"] {
			opts.Origins = append(opts.Origins, models.Origin(o))
		}

		var ok [6]bool
		opts.CustomerID, ok[0] = queryUUID(r, "customer_id")
		opts.OrderID, ok[1] = queryUUID(r, "order_id")
		opts.From, ok[2] = queryTime(r, "from")
		opts.To, ok[3] = queryTime(r, "to")
		opts.Limit, ok[4] = queryInt(r, "limit")
		opts.Offset, ok[5] = queryInt(r, "offset")
		for _, good := range ok {
			if !good {
				render.ServiceError(w, "Invalid query parameters", http.StatusBadRequest)
				return
			}
		}

		entries, err := bs.History(r.Context(), opts)
		if err != nil {
			l.Error("Failed to list audit ledger", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, newLedgerResponse(entries))
	})
}

func handleAdjustBalance(bs balanceService, l logger.Logger) http.Handler {
	type request struct {
		CustomerID  uuid.UUID       `json:"customer_id" validate:"required"`
		Amount      decimal.Decimal `json:"amount"`
		Kind        string          `json:"kind" validate:"required,ledgerkind,ne=hold"`
		Description string          `json:"description" validate:"required,max=500"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		amount, err := money.FromDecimal(data.Amount)
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		change, err := bs.AdjustBalance(r.Context(), balance.Adjustment{
			CustomerID:  data.CustomerID,
			Amount:      amount,
			Kind:        models.LedgerKind(data.Kind),
			Description: strings.TrimSpace(data.Description),
			Origin:      models.OriginAdmin,
			ActorID:     &actor.ID,
		})
		switch {
		case err == nil:
			render.JSON(w, newBalanceChangeResponse(change))
		case errors.Is(err, apperrors.ErrCustomerNotFound):
			render.ServiceError(w, "Customer not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrInvalidAmount):
			render.ServiceError(w, "Invalid amount for this kind", http.StatusBadRequest)
		default:
			l.Error("Failed to adjust balance", "customer_id", data.CustomerID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
