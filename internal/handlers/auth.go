package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/handlers/render"
	"github.com/nkiryanov/numbermart/internal/logger"
)

type credentials struct {
	Username string `json:"username" validate:"required,min=2,max=50"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func handleRegister(as authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[credentials](w, r)
		if err != nil {
			return
		}

		pair, err := as.Register(r.Context(), data.Username, data.Password)
		switch {
		case err == nil:
			as.SetTokenPairToResponse(w, pair)
			render.JSON(w, messageResponse{Message: "Customer registered successfully"})
		case errors.Is(err, apperrors.ErrCustomerAlreadyExists):
			render.ServiceError(w, "Customer already exists", http.StatusConflict)
		default:
			l.Error("Failed to register customer", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(as authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := as.Login(r.Context(), data.Username, data.Password)
		switch {
		case err == nil:
			as.SetTokenPairToResponse(w, pair)
			render.JSON(w, messageResponse{Message: "Customer logged in successfully"})
		case errors.Is(err, apperrors.ErrCustomerNotFound):
			render.ServiceError(w, "Customer not found", http.StatusUnauthorized)
		default:
			l.Error("Failed to login customer", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleTokenRefresh(as authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := as.GetRefreshString(r)
		if err != nil {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		pair, err := as.RefreshPair(r.Context(), refresh)
		switch {
		case err == nil:
			as.SetTokenPairToResponse(w, pair)
			render.JSON(w, messageResponse{Message: "Tokens refreshed successfully"})
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrRefreshTokenIsUsed):
			l.Warn("Refresh token reused", "error", err)
			render.ServiceError(w, "Refresh token already used", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound), errors.Is(err, apperrors.ErrCustomerNotFound):
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		default:
			l.Error("Failed to refresh tokens", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
