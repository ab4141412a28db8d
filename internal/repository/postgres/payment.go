package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/numbermart/internal/models"
)

type PaymentRepo struct {
	DB DBTX
}

const createPaymentEvent = `-- name: CreatePaymentEvent
INSERT INTO payment_events (idempotency_key, customer_id, amount, received_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING idempotency_key, customer_id, amount, ledger_entry_id, received_at
`

// Insert the event. A known key returns created=false and the event as given:
// a concurrent delivery may not be visible yet, so the stored row is not read back.
func (r *PaymentRepo) CreateEvent(ctx context.Context, event models.PaymentEvent) (models.PaymentEvent, bool, error) {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createPaymentEvent, event.IdempotencyKey, event.CustomerID, event.Amount, event.ReceivedAt)
	stored, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.PaymentEvent, error) {
		var e models.PaymentEvent
		err := row.Scan(&e.IdempotencyKey, &e.CustomerID, &e.Amount, &e.LedgerEntryID, &e.ReceivedAt)
		return e, err
	})

	switch {
	case err == nil:
		return stored, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return event, false, nil
	default:
		return event, false, fmt.Errorf("db error: %w", err)
	}
}

const setPaymentLedgerEntry = `-- name: SetPaymentLedgerEntry
UPDATE payment_events SET ledger_entry_id = $2
WHERE idempotency_key = $1
`

func (r *PaymentRepo) SetLedgerEntry(ctx context.Context, key string, entryID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, setPaymentLedgerEntry, key, entryID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
