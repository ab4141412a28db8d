package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/numbermart/internal/models"
)

type CancellationRepo struct {
	DB DBTX
}

const recordCancellation = `-- name: RecordCancellation
INSERT INTO cancellation_records (id, customer_id, provider_id, order_id, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, customer_id, provider_id, order_id, created_at
`

func (r *CancellationRepo) Record(ctx context.Context, customerID uuid.UUID, providerID string, orderID *uuid.UUID, at time.Time) (models.CancellationRecord, error) {
	rows, _ := r.DB.Query(ctx, recordCancellation, uuid.New(), customerID, providerID, orderID, at)
	record, err := pgx.CollectOneRow(rows, rowToCancellation)
	if err != nil {
		return record, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

const listCancellationsSince = `-- name: ListCancellationsSince
SELECT id, customer_id, provider_id, order_id, created_at FROM cancellation_records
WHERE customer_id = $1 AND provider_id = $2 AND created_at >= $3
ORDER BY created_at DESC
`

func (r *CancellationRepo) ListSince(ctx context.Context, customerID uuid.UUID, providerID string, since time.Time) ([]models.CancellationRecord, error) {
	rows, _ := r.DB.Query(ctx, listCancellationsSince, customerID, providerID, since)
	records, err := pgx.CollectRows(rows, rowToCancellation)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return records, nil
}

func rowToCancellation(row pgx.CollectableRow) (models.CancellationRecord, error) {
	var c models.CancellationRecord
	err := row.Scan(&c.ID, &c.CustomerID, &c.ProviderID, &c.OrderID, &c.CreatedAt)
	return c, err
}
