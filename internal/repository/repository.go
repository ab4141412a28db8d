package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/models"
)

// Storage gives access to every repository over one connection or transaction
type Storage interface {
	Customer() CustomerRepo
	Ledger() LedgerRepo
	Order() OrderRepo
	Cancellation() CancellationRepo
	Policy() PolicyRepo
	Payment() PaymentRepo
	Refresh() RefreshTokenRepo

	// Run fn in a transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type CustomerRepo interface {
	// Create customer with zero balance
	// If username is taken has to return apperrors.ErrCustomerAlreadyExists
	CreateCustomer(ctx context.Context, username string, passwordHash string, caps ...models.Capability) (models.Customer, error)

	// Get customer by id or username
	// If customer not found must return apperrors.ErrCustomerNotFound
	GetCustomer(ctx context.Context, id uuid.UUID) (models.Customer, error)
	GetCustomerByUsername(ctx context.Context, username string) (models.Customer, error)

	// Lock the customer row until the end of the transaction and return its current state.
	// Must be called inside InTx.
	LockCustomer(ctx context.Context, id uuid.UUID) (models.Customer, error)

	// Overwrite the cached balance. Callers must hold the row lock.
	SetBalance(ctx context.Context, id uuid.UUID, balance int64) error

	SetBanned(ctx context.Context, id uuid.UUID, reason *string) (models.Customer, error)
	SetCapabilities(ctx context.Context, id uuid.UUID, caps models.CapabilitySet) error
}

type ListLedgerOpts struct {
	CustomerID *uuid.UUID
	OrderID    *uuid.UUID
	Kinds      []models.LedgerKind
	Origins    []models.Origin
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type LedgerRepo interface {
	// Append an immutable entry
	// A second refund for the same order must return apperrors.ErrAlreadyRefunded
	Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)

	// Totals of non-corrective entries for the customer, with the cached balance
	Totals(ctx context.Context, customerID uuid.UUID) (models.LedgerTotals, error)

	// Totals for every customer having at least one entry
	ListTotals(ctx context.Context) ([]models.LedgerTotals, error)

	HasRefund(ctx context.Context, orderID uuid.UUID) (bool, error)
	OrderEntries(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	List(ctx context.Context, opts ListLedgerOpts) ([]models.LedgerEntry, error)
}

type OrderOption func(*models.Order)

func WithOrderStatus(status models.OrderStatus) OrderOption {
	return func(o *models.Order) {
		o.Status = status
	}
}

func WithOrderCreatedAt(t time.Time) OrderOption {
	return func(o *models.Order) {
		o.CreatedAt = t
		o.ModifiedAt = t
	}
}

func WithExternalID(externalID string, phone string) OrderOption {
	return func(o *models.Order) {
		o.ExternalID = &externalID
		o.PhoneNumber = &phone
	}
}

type ListOrdersOpts struct {
	CustomerID *uuid.UUID
	ProviderID *string
	Statuses   []models.OrderStatus

	// Only orders created before the moment
	CreatedBefore *time.Time
	// Only orders after the cursor in (created_at, id) order
	After *OrderCursor

	Limit int
}

// Keyset position of an order in listing order
type OrderCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Changes applied together with a status transition
type TransitionParams struct {
	From []models.OrderStatus
	To   models.OrderStatus

	ExternalID  *string
	PhoneNumber *string
}

type OrderRepo interface {
	// Create pending order unless options say otherwise
	CreateOrder(ctx context.Context, customerID uuid.UUID, providerID string, serviceCode string, price int64, opts ...OrderOption) (models.Order, error)

	// If order not found must return apperrors.ErrOrderNotFound
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	GetOrderByExternalID(ctx context.Context, providerID string, externalID string) (models.Order, error)

	ListOrders(ctx context.Context, opts ListOrdersOpts) ([]models.Order, error)
	CountOpenOrders(ctx context.Context, customerID uuid.UUID, providerID string) (int, error)

	// Conditional transition: succeeds only if the order is still in one of p.From.
	// Otherwise must return apperrors.ErrConcurrentModification (or ErrOrderNotFound if missing).
	Transition(ctx context.Context, id uuid.UUID, p TransitionParams) (models.Order, error)

	// Store the code and complete the order in one statement
	// Only active orders can be completed; otherwise same errors as Transition
	Complete(ctx context.Context, id uuid.UUID, code string) (models.Order, error)
}

type CancellationRepo interface {
	Record(ctx context.Context, customerID uuid.UUID, providerID string, orderID *uuid.UUID, at time.Time) (models.CancellationRecord, error)

	// Records created at or after since, newest first
	ListSince(ctx context.Context, customerID uuid.UUID, providerID string, since time.Time) ([]models.CancellationRecord, error)
}

type PolicyRepo interface {
	// If provider not found must return apperrors.ErrProviderNotFound
	GetPolicy(ctx context.Context, providerID string) (models.ProviderPolicy, error)
	ListPolicies(ctx context.Context) ([]models.ProviderPolicy, error)
	UpsertPolicy(ctx context.Context, p models.ProviderPolicy) (models.ProviderPolicy, error)
}

type PaymentRepo interface {
	// Insert event unless the key is known already
	// created is false for a duplicate key
	CreateEvent(ctx context.Context, event models.PaymentEvent) (stored models.PaymentEvent, created bool, err error)
	SetLedgerEntry(ctx context.Context, key string, entryID uuid.UUID) error
}

type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) (tokenID uuid.UUID, err error)

	// Return the token and mark it used in one statement
	// If the token is already used, must not overwrite the existing 'usedAt' and return apperrors.ErrRefreshTokenIsUsed
	GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error)
}
