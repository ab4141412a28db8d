package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/handlers/middleware"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
	"github.com/nkiryanov/numbermart/internal/service/balance"
	"github.com/nkiryanov/numbermart/internal/service/order"
	"github.com/nkiryanov/numbermart/internal/service/payment"
	"github.com/nkiryanov/numbermart/internal/service/ratelimit"
	"github.com/nkiryanov/numbermart/internal/service/reconcile"
	"github.com/nkiryanov/numbermart/internal/service/sweeper"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// Everything the HTTP layer talks to
type Services struct {
	Auth      authService
	Customers customerService
	Balance   balanceService
	Orders    orderService
	Limits    limitService
	Reconcile reconcileService
	Sweeper   sweepService
	Payments  paymentService

	// Shared secret of the webhook endpoints; empty disables them
	WebhookSecret string
}

func NewRouter(s Services, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(s.Auth)
	customer := func(h http.Handler) http.Handler {
		return withAuth(h)
	}
	admin := func(c models.Capability, h http.Handler) http.Handler {
		return chain(h, withAuth, middleware.RequireCapability(c))
	}
	webhook := middleware.WebhookSecret(s.WebhookSecret)

	mux := http.NewServeMux()

	mux.Handle("POST /api/auth/register", handleRegister(s.Auth, logger))
	mux.Handle("POST /api/auth/login", handleLogin(s.Auth, logger))
	mux.Handle("POST /api/auth/refresh", handleTokenRefresh(s.Auth, logger))

	mux.Handle("GET /api/me", customer(handleMe()))
	mux.Handle("GET /api/balance", customer(handleBalance()))
	mux.Handle("GET /api/ledger", customer(handleLedger(s.Balance, logger)))
	mux.Handle("POST /api/orders", customer(handlePurchase(s.Orders, logger)))
	mux.Handle("GET /api/orders", customer(handleListOrders(s.Orders, logger)))
	mux.Handle("GET /api/orders/{id}", customer(handleGetOrder(s.Orders, logger)))
	mux.Handle("POST /api/orders/{id}/cancel", customer(handleCancelOrder(s.Orders, logger)))
	mux.Handle("GET /api/providers", customer(handleListProviders(s.Limits, logger)))
	mux.Handle("GET /api/providers/{id}/block", customer(handleBlockStatus(s.Limits, logger)))
	mux.Handle("GET /api/providers/{id}/cancel-advice", customer(handleCancelAdvice(s.Limits, logger)))

	mux.Handle("POST /api/admin/balance/adjust", admin(models.CapabilityBalanceWrite, handleAdjustBalance(s.Balance, logger)))
	mux.Handle("GET /api/admin/ledger", admin(models.CapabilityAuditRead, handleAuditLedger(s.Balance, logger)))
	mux.Handle("GET /api/admin/reconciliation", admin(models.CapabilityAuditRead, handleReconciliation(s.Reconcile, logger)))
	mux.Handle("POST /api/admin/reconciliation/{customer_id}/fix", admin(models.CapabilityBalanceWrite, handleFixBalance(s.Reconcile, logger)))
	mux.Handle("PUT /api/admin/providers/{id}", admin(models.CapabilityAdmin, handleSetPolicy(s.Limits, logger)))
	mux.Handle("POST /api/admin/sweep", admin(models.CapabilityOrdersManage, handleSweep(s.Sweeper, logger)))
	mux.Handle("POST /api/admin/orders/{id}/cancel", admin(models.CapabilityOrdersManage, handleCancelOrder(s.Orders, logger)))
	mux.Handle("POST /api/admin/customers/{id}/ban", admin(models.CapabilityAdmin, handleBan(s.Customers, logger)))
	mux.Handle("DELETE /api/admin/customers/{id}/ban", admin(models.CapabilityAdmin, handleUnban(s.Customers, logger)))
	mux.Handle("PUT /api/admin/customers/{id}/capabilities", admin(models.CapabilityAdmin, handleSetCapabilities(s.Customers, logger)))

	mux.Handle("POST /api/webhooks/payment", webhook(handlePaymentWebhook(s.Payments, logger)))
	mux.Handle("POST /api/webhooks/sms", webhook(handleSMSWebhook(s.Orders, logger)))

	return chain(mux,
		middleware.LoggerMiddleware(logger),
	)
}

type authService interface {
	// Register customer with username and password
	// Has to return apperrors.ErrCustomerAlreadyExists if username is taken
	Register(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Login customer with username and password
	// Has to return apperrors.ErrCustomerNotFound if credentials don't match
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Set auth tokens (access, refresh) to response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Get refresh token from request
	GetRefreshString(r *http.Request) (string, error)

	// Return the customer the request is authenticated as
	Auth(ctx context.Context, r *http.Request) (models.Customer, error)
}

type customerService interface {
	Ban(ctx context.Context, id uuid.UUID, reason string, actorID uuid.UUID) (models.Customer, error)
	Unban(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (models.Customer, error)
	SetCapabilities(ctx context.Context, id uuid.UUID, names []string, actorID uuid.UUID) (models.Customer, error)
}

type balanceService interface {
	AdjustBalance(ctx context.Context, adj balance.Adjustment) (models.BalanceChange, error)
	History(ctx context.Context, opts repository.ListLedgerOpts) ([]models.LedgerEntry, error)
}

type orderService interface {
	Purchase(ctx context.Context, customerID uuid.UUID, req order.PurchaseRequest) (models.Order, error)
	Get(ctx context.Context, viewer models.Customer, orderID uuid.UUID) (models.Order, error)
	List(ctx context.Context, customerID uuid.UUID, statuses []models.OrderStatus, limit int) ([]models.Order, error)
	Cancel(ctx context.Context, actor models.Customer, orderID uuid.UUID) (order.CancelResult, error)
	RecordCodeByExternalID(ctx context.Context, providerID string, externalID string, code string) (models.Order, error)
}

type limitService interface {
	CheckBlock(ctx context.Context, customer models.Customer, providerID string) (ratelimit.BlockStatus, error)
	ValidateCancellation(ctx context.Context, customer models.Customer, providerID string) (ratelimit.CancellationAdvice, error)
	Policies(ctx context.Context) ([]models.ProviderPolicy, error)
	SetPolicy(ctx context.Context, p models.ProviderPolicy) (models.ProviderPolicy, error)
}

type reconcileService interface {
	CheckInconsistencies(ctx context.Context, customerID *uuid.UUID) ([]reconcile.Inconsistency, error)
	FixBalance(ctx context.Context, customerID uuid.UUID, actorID uuid.UUID) (reconcile.FixResult, error)
}

type sweepService interface {
	SweepOnce(ctx context.Context) (sweeper.SweepResult, error)
}

type paymentService interface {
	ConfirmPayment(ctx context.Context, c payment.Confirmation) (payment.Result, error)
}
