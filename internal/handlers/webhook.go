package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/handlers/render"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/money"
	"github.com/nkiryanov/numbermart/internal/service/payment"
)

func handlePaymentWebhook(ps paymentService, l logger.Logger) http.Handler {
	type request struct {
		CustomerID     uuid.UUID       `json:"customer_id" validate:"required"`
		Amount         decimal.Decimal `json:"amount"`
		IdempotencyKey string          `json:"idempotency_key" validate:"required,max=200"`
	}

	type response struct {
		Duplicate    bool   `json:"duplicate"`
		BalanceAfter *int64 `json:"balance_after,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		amount, err := money.FromDecimal(data.Amount)
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		res, err := ps.ConfirmPayment(r.Context(), payment.Confirmation{
			CustomerID:     data.CustomerID,
			Amount:         amount,
			IdempotencyKey: data.IdempotencyKey,
		})
		switch {
		case err == nil:
			body := response{Duplicate: res.Duplicate}
			if !res.Duplicate {
				body.BalanceAfter = &res.Change.BalanceAfter
			}
			render.JSON(w, body)
		case errors.Is(err, apperrors.ErrCustomerNotFound):
			render.ServiceError(w, "Customer not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrInvalidAmount):
			render.ServiceError(w, "Amount must be positive", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrInvalidIdempotencyKey):
			render.ServiceError(w, "Idempotency key is required", http.StatusBadRequest)
		default:
			l.Error("Failed to confirm payment", "idempotency_key", data.IdempotencyKey, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleSMSWebhook(orders orderService, l logger.Logger) http.Handler {
	type request struct {
		Provider   string `json:"provider" validate:"required"`
		ExternalID string `json:"external_id" validate:"required"`
		Code       string `json:"code" validate:"required,max=64"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		o, err := orders.RecordCodeByExternalID(r.Context(), data.Provider, data.ExternalID, data.Code)
		switch {
		case err == nil:
			render.JSON(w, newOrderResponse(o))
		case errors.Is(err, apperrors.ErrOrderNotFound):
			render.ServiceError(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrConcurrentModification):
			render.ServiceError(w, "Order is not waiting for a code", http.StatusConflict)
		default:
			l.Error("Failed to record code", "provider_id", data.Provider, "external_id", data.ExternalID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
