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
)

type CustomerRepo struct {
	DB DBTX
}

const customerColumns = `id, created_at, username, password_hash, balance, banned, banned_reason, banned_at, capabilities`

const createCustomer = `-- name: CreateCustomer
INSERT INTO customers (id, created_at, username, password_hash, capabilities)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + customerColumns

func (r *CustomerRepo) CreateCustomer(ctx context.Context, username string, passwordHash string, caps ...models.Capability) (models.Customer, error) {
	names := models.NewCapabilitySet(caps...).Strings()

	rows, _ := r.DB.Query(ctx, createCustomer, uuid.New(), time.Now(), username, passwordHash, names)
	customer, err := pgx.CollectOneRow(rows, rowToCustomer)

	switch {
	case err == nil:
		return customer, nil
	case isUniqueViolation(err, "customers_username_key"):
		return customer, apperrors.ErrCustomerAlreadyExists
	default:
		return customer, fmt.Errorf("db error: %w", err)
	}
}

const getCustomer = `-- name: GetCustomer
SELECT ` + customerColumns + ` FROM customers
WHERE id = $1
`

func (r *CustomerRepo) GetCustomer(ctx context.Context, id uuid.UUID) (models.Customer, error) {
	return r.getOne(ctx, getCustomer, id)
}

const getCustomerByUsername = `-- name: GetCustomerByUsername
SELECT ` + customerColumns + ` FROM customers
WHERE username = $1
`

func (r *CustomerRepo) GetCustomerByUsername(ctx context.Context, username string) (models.Customer, error) {
	return r.getOne(ctx, getCustomerByUsername, username)
}

const lockCustomer = `-- name: LockCustomer
SELECT ` + customerColumns + ` FROM customers
WHERE id = $1
FOR UPDATE
`

func (r *CustomerRepo) LockCustomer(ctx context.Context, id uuid.UUID) (models.Customer, error) {
	return r.getOne(ctx, lockCustomer, id)
}

const setBalance = `-- name: SetBalance
UPDATE customers SET balance = $2
WHERE id = $1
`

func (r *CustomerRepo) SetBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	tag, err := r.DB.Exec(ctx, setBalance, id, balance)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrCustomerNotFound
	default:
		return nil
	}
}

const setBanned = `-- name: SetBanned
UPDATE customers
SET banned = $2::text IS NOT NULL,
	banned_reason = $2::text,
	banned_at = CASE WHEN $2::text IS NULL THEN NULL ELSE now() END
WHERE id = $1
RETURNING ` + customerColumns

// Ban the customer with reason; nil reason lifts the ban
func (r *CustomerRepo) SetBanned(ctx context.Context, id uuid.UUID, reason *string) (models.Customer, error) {
	return r.getOne(ctx, setBanned, id, reason)
}

const setCapabilities = `-- name: SetCapabilities
UPDATE customers SET capabilities = $2
WHERE id = $1
`

func (r *CustomerRepo) SetCapabilities(ctx context.Context, id uuid.UUID, caps models.CapabilitySet) error {
	tag, err := r.DB.Exec(ctx, setCapabilities, id, caps.Strings())
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrCustomerNotFound
	default:
		return nil
	}
}

func (r *CustomerRepo) getOne(ctx context.Context, query string, args ...any) (models.Customer, error) {
	rows, _ := r.DB.Query(ctx, query, args...)
	customer, err := pgx.CollectOneRow(rows, rowToCustomer)

	switch {
	case err == nil:
		return customer, nil
	case errors.Is(err, pgx.ErrNoRows):
		return customer, apperrors.ErrCustomerNotFound
	default:
		return customer, fmt.Errorf("db error: %w", err)
	}
}

func rowToCustomer(row pgx.CollectableRow) (models.Customer, error) {
	var c models.Customer
	var caps []string
	err := row.Scan(&c.ID, &c.CreatedAt, &c.Username, &c.PasswordHash, &c.Balance, &c.Banned, &c.BannedReason, &c.BannedAt, &caps)
	c.Capabilities = models.ParseCapabilitySet(caps)
	return c, err
}
