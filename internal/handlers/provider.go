package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/handlers/customerctx"
	"github.com/nkiryanov/numbermart/internal/handlers/render"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
)

type policyResponse struct {
	ProviderID            string    `json:"provider"`
	Name                  string    `json:"name"`
	CancelLimit           int       `json:"cancel_limit"`
	CancelWindowMinutes   int       `json:"cancel_window_minutes"`
	BlockDurationMinutes  int       `json:"block_duration_minutes"`
	MaxSimultaneousOrders int       `json:"max_simultaneous_orders"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func newPolicyResponse(p models.ProviderPolicy) policyResponse {
	return policyResponse{
		ProviderID:            p.ProviderID,
		Name:                  p.Name,
		CancelLimit:           p.CancelLimit,
		CancelWindowMinutes:   p.CancelWindowMinutes,
		BlockDurationMinutes:  p.BlockDurationMinutes,
		MaxSimultaneousOrders: p.MaxSimultaneousOrders,
		UpdatedAt:             p.UpdatedAt,
	}
}

func handleListProviders(ls limitService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policies, err := ls.Policies(r.Context())
		if err != nil {
			l.Error("Failed to list providers", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]policyResponse, 0, len(policies))
		for _, p := range policies {
			res = append(res, newPolicyResponse(p))
		}
		render.JSON(w, res)
	})
}

func handleBlockStatus(ls limitService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		status, err := ls.CheckBlock(r.Context(), customer, r.PathValue("id"))
		if err != nil {
			l.Error("Failed to check block", "customer_id", customer.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		render.JSON(w, status)
	})
}

func handleCancelAdvice(ls limitService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer, ok := customerctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		advice, err := ls.ValidateCancellation(r.Context(), customer, r.PathValue("id"))
		switch {
		case err == nil:
			render.JSON(w, advice)
		case errors.Is(err, apperrors.ErrProviderNotFound):
			render.ServiceError(w, "Unknown provider", http.StatusNotFound)
		default:
			l.Error("Failed to compute cancellation advice", "customer_id", customer.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleSetPolicy(ls limitService, l logger.Logger) http.Handler {
	type request struct {
		Name                  string  `json:"name" validate:"max=100"`
		BaseURL               *string `json:"base_url" validate:"omitempty,url"`
		CancelLimit           int     `json:"cancel_limit" validate:"gt=0"`
		CancelWindowMinutes   int     `json:"cancel_window_minutes" validate:"gt=0"`
		BlockDurationMinutes  int     `json:"block_duration_minutes" validate:"min=0"`
		MaxSimultaneousOrders int     `json:"max_simultaneous_orders" validate:"gt=0"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		p, err := ls.SetPolicy(r.Context(), models.ProviderPolicy{
			ProviderID:            r.PathValue("id"),
			Name:                  data.Name,
			BaseURL:               data.BaseURL,
			CancelLimit:           data.CancelLimit,
			CancelWindowMinutes:   data.CancelWindowMinutes,
			BlockDurationMinutes:  data.BlockDurationMinutes,
			MaxSimultaneousOrders: data.MaxSimultaneousOrders,
		})
		switch {
		case err == nil:
			render.JSON(w, newPolicyResponse(p))
		case errors.Is(err, apperrors.ErrInvalidPolicy):
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
		default:
			l.Error("Failed to update provider policy", "provider_id", r.PathValue("id"), "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
