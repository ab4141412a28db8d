package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
)

const defaultOrdersPageSize = 100

type OrderRepo struct {
	DB DBTX
}

const orderColumns = `id, customer_id, provider_id, service_code, external_id, phone_number, status, selling_price, sms_code, created_at, activated_at, completed_at, modified_at`

const createOrder = `-- name: CreateOrder
INSERT INTO orders (id, customer_id, provider_id, service_code, external_id, phone_number, status, selling_price, created_at, activated_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderColumns

// Create order with provided options; pending by default
func (r *OrderRepo) CreateOrder(ctx context.Context, customerID uuid.UUID, providerID string, serviceCode string, price int64, opts ...repository.OrderOption) (models.Order, error) {
	now := time.Now()

	o := models.Order{
		ID:           uuid.New(),
		CustomerID:   customerID,
		ProviderID:   providerID,
		ServiceCode:  serviceCode,
		Status:       models.OrderStatusPending,
		SellingPrice: price,
		CreatedAt:    now,
		ModifiedAt:   now,
	}

	for _, option := range opts {
		option(&o)
	}

	if o.Status == models.OrderStatusActive && o.ActivatedAt == nil {
		o.ActivatedAt = &o.CreatedAt
	}

	rows, _ := r.DB.Query(ctx, createOrder,
		o.ID, o.CustomerID, o.ProviderID, o.ServiceCode, o.ExternalID, o.PhoneNumber,
		string(o.Status), o.SellingPrice, o.CreatedAt, o.ActivatedAt, o.ModifiedAt,
	)
	order, err := pgx.CollectOneRow(rows, rowToOrder)
	if err != nil {
		return order, fmt.Errorf("db error: %w", err)
	}

	return order, nil
}

const getOrder = `-- name: GetOrder
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1
`

func (r *OrderRepo) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return r.getOne(ctx, getOrder, id)
}

const getOrderByExternalID = `-- name: GetOrderByExternalID
SELECT ` + orderColumns + ` FROM orders
WHERE provider_id = $1 AND external_id = $2
`

func (r *OrderRepo) GetOrderByExternalID(ctx context.Context, providerID string, externalID string) (models.Order, error) {
	return r.getOne(ctx, getOrderByExternalID, providerID, externalID)
}

const listOrders = `-- name: ListOrders
SELECT ` + orderColumns + ` FROM orders
WHERE ($1::uuid IS NULL OR customer_id = $1)
	AND ($2::text IS NULL OR provider_id = $2)
	AND (cardinality($3::text[]) = 0 OR status = ANY($3))
	AND ($4::timestamptz IS NULL OR created_at < $4)
	AND ($5::timestamptz IS NULL OR (created_at, id) > ($5, $6::uuid))
ORDER BY created_at, id
LIMIT $7
`

// List orders oldest first; ties on created_at are ordered by id
func (r *OrderRepo) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultOrdersPageSize
	}

	var afterAt *time.Time
	var afterID *uuid.UUID
	if opts.After != nil {
		afterAt, afterID = &opts.After.CreatedAt, &opts.After.ID
	}

	rows, _ := r.DB.Query(ctx, listOrders, opts.CustomerID, opts.ProviderID, statusStrings(opts.Statuses), opts.CreatedBefore, afterAt, afterID, limit)
	orders, err := pgx.CollectRows(rows, rowToOrder)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return orders, nil
}

const countOpenOrders = `-- name: CountOpenOrders
SELECT COUNT(*) FROM orders
WHERE customer_id = $1 AND provider_id = $2 AND status IN ('pending', 'active')
`

func (r *OrderRepo) CountOpenOrders(ctx context.Context, customerID uuid.UUID, providerID string) (int, error) {
	rows, _ := r.DB.Query(ctx, countOpenOrders, customerID, providerID)
	count, err := pgx.CollectOneRow(rows, pgx.RowTo[int])
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

const transitionOrder = `-- name: TransitionOrder
UPDATE orders
SET status = $3,
	external_id = COALESCE($4, external_id),
	phone_number = COALESCE($5, phone_number),
	activated_at = CASE WHEN $3 = 'active' THEN $6 ELSE activated_at END,
	modified_at = $6
WHERE id = $1 AND status = ANY($2::text[])
RETURNING ` + orderColumns

// Move the order to p.To only if it is still in one of p.From.
// The winner of concurrent transitions is the only caller getting the order back.
func (r *OrderRepo) Transition(ctx context.Context, id uuid.UUID, p repository.TransitionParams) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, transitionOrder, id, statusStrings(p.From), string(p.To), p.ExternalID, p.PhoneNumber, time.Now())
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, r.explainMiss(ctx, id)
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

const completeOrder = `-- name: CompleteOrder
UPDATE orders
SET status = 'completed',
	sms_code = $2,
	completed_at = $3,
	modified_at = $3
WHERE id = $1 AND status = 'active'
RETURNING ` + orderColumns

func (r *OrderRepo) Complete(ctx context.Context, id uuid.UUID, code string) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, completeOrder, id, code, time.Now())
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, r.explainMiss(ctx, id)
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

// Conditional update matched nothing: the order is missing or already moved on
func (r *OrderRepo) explainMiss(ctx context.Context, id uuid.UUID) error {
	_, err := r.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	return apperrors.ErrConcurrentModification
}

func (r *OrderRepo) getOne(ctx context.Context, query string, args ...any) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, query, args...)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, apperrors.ErrOrderNotFound
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

func statusStrings(statuses []models.OrderStatus) []string {
	s := make([]string, 0, len(statuses))
	for _, st := range statuses {
		s = append(s, string(st))
	}
	return s
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	var status string
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ProviderID, &o.ServiceCode, &o.ExternalID, &o.PhoneNumber, &status,
		&o.SellingPrice, &o.SMSCode, &o.CreatedAt, &o.ActivatedAt, &o.CompletedAt, &o.ModifiedAt,
	)
	o.Status = models.OrderStatus(status)
	return o, err
}
