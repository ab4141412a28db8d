package apperrors

import (
	"errors"
)

var (
	ErrCustomerAlreadyExists = errors.New("customer already exists")
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrCustomerBanned        = errors.New("customer is banned")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount is invalid")
	ErrAlreadyRefunded   = errors.New("order already refunded")

	ErrOrderNotFound          = errors.New("order not found")
	ErrConcurrentModification = errors.New("order was modified concurrently")
	ErrOrderClosed            = errors.New("order is already finished")
	ErrTooManyActiveOrders    = errors.New("too many active orders for provider")
	ErrPurchaseBlocked        = errors.New("purchases are blocked after too many cancellations")

	ErrProviderNotFound    = errors.New("provider not found")
	ErrInvalidPolicy       = errors.New("provider policy is invalid")
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")

	ErrInvalidIdempotencyKey = errors.New("idempotency key is invalid")

	ErrForbidden = errors.New("not enough permissions")
)
