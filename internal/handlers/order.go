package handlers

import (
	"errors"
	"net/http"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/handlers/customerctx"
	"github.com/nkiryanov/numbermart/internal/handlers/render"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/money"
	"github.com/nkiryanov/numbermart/internal/service/order"
)

var orderStatuses = []models.OrderStatus{
	models.OrderStatusPending,
	models.OrderStatusActive,
	models.OrderStatusCompleted,
	models.OrderStatusCancelled,
	models.OrderStatusFailed,
	models.OrderStatusExpired,
}

func handlePurchase(orders orderService, l logger.Logger) http.Handler {
	type request struct {
		Provider string          `json:"provider" validate:"required,max=64"`
		Service  string          `json:"service" validate:"required,max=64"`
		Price    decimal.Decimal `json:"price"`
	}

	type blockedResponse struct {
		Error            string `json:"error"`
		Message          string `json:"message"`
		RemainingMinutes int    `json:"remaining_minutes"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		price, err := money.FromDecimal(data.Price)
		if err != nil || price <= 0 {
			render.ServiceError(w, "Price must be a positive amount", http.StatusBadRequest)
			return
		}

		created, err := orders.Purchase(r.Context(), customer.ID, order.PurchaseRequest{
			ProviderID:  data.Provider,
			ServiceCode: data.Service,
			Price:       price,
		})

		var blocked *order.BlockedError
		switch {
		case err == nil:
			render.JSONWithStatus(w, newOrderResponse(created), http.StatusCreated)
		case errors.As(err, &blocked):
			render.JSONWithStatus(w, blockedResponse{
				Error:            render.ServiceErrorType,
				Message:          blocked.Status.Message,
				RemainingMinutes: blocked.Status.RemainingMinutes,
			}, http.StatusLocked)
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrCustomerBanned):
			render.ServiceError(w, "Customer is banned", http.StatusForbidden)
		case errors.Is(err, apperrors.ErrTooManyActiveOrders):
			render.ServiceError(w, "Too many active orders for this provider", http.StatusTooManyRequests)
		case errors.Is(err, apperrors.ErrProviderNotFound):
			render.ServiceError(w, "Unknown provider", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUpstreamUnavailable):
			render.ServiceError(w, "Provider unavailable, nothing was charged", http.StatusBadGateway)
		default:
			l.Error("Failed to purchase number", "customer_id", customer.ID, "provider_id", data.Provider, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListOrders(orders orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		var statuses []models.OrderStatus
		for _, s := range r.URL.Query()["status"] {
			st := models.OrderStatus(s)
			if !slices.Contains(orderStatuses, st) {
				render.ServiceError(w, "Unknown order status", http.StatusBadRequest)
				return
			}
			statuses = append(statuses, st)
		}

		limit, ok := queryInt(r, "limit")
		if !ok {
			render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
			return
		}

		list, err := orders.List(r.Context(), customer.ID, statuses, limit)
		if err != nil {
			l.Error("Failed to list orders", "customer_id", customer.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]orderResponse, 0, len(list))
		for _, o := range list {
			res = append(res, newOrderResponse(o))
		}
		render.JSON(w, res)
	})
}

func handleGetOrder(orders orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, ok := pathUUID(r, "id")
		if !ok {
			render.ServiceError(w, "Order not found", http.StatusNotFound)
			return
		}

		o, err := orders.Get(r.Context(), customer, id)
		switch {
		case err == nil:
			render.JSON(w, newOrderResponse(o))
		case errors.Is(err, apperrors.ErrOrderNotFound):
			render.ServiceError(w, "Order not found", http.StatusNotFound)
		default:
			l.Error("Failed to get order", "order_id", id, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// Serves both the customer and the admin cancel endpoint; the order service tells them apart by the actor
func handleCancelOrder(orders orderService, l logger.Logger) http.Handler {
	type response struct {
		Order         orderResponse        `json:"order"`
		Refunded      bool                 `json:"refunded"`
		WillBeBlocked bool                 `json:"will_be_blocked"`
		Warning       string               `json:"warning,omitempty"`
		Refund        *ledgerEntryResponse `json:"refund,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, ok := pathUUID(r, "id")
		if !ok {
			render.ServiceError(w, "Order not found", http.StatusNotFound)
			return
		}

		res, err := orders.Cancel(r.Context(), actor, id)
		switch {
		case err == nil:
			body := response{
				Order:         newOrderResponse(res.Order),
				Refunded:      res.Refund != nil,
				WillBeBlocked: res.Advice.WillBeBlocked,
				Warning:       res.Advice.WarningMessage,
			}
			if res.Refund != nil {
				refund := newLedgerEntryResponse(*res.Refund)
				body.Refund = &refund
			}
			render.JSON(w, body)
		case errors.Is(err, apperrors.ErrOrderNotFound):
			render.ServiceError(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrOrderClosed), errors.Is(err, apperrors.ErrConcurrentModification):
			render.ServiceError(w, "Order is already finished", http.StatusConflict)
		default:
			l.Error("Failed to cancel order", "order_id", id, "actor_id", actor.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleSweep(ss sweepService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := ss.SweepOnce(r.Context())
		if err != nil {
			l.Error("Sweep failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		render.JSON(w, res)
	})
}
