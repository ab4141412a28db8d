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

const defaultLedgerPageSize = 100

type LedgerRepo struct {
	DB DBTX
}

const ledgerColumns = `id, customer_id, amount, kind, balance_before, balance_after, origin, actor_id, related_order_id, description, metadata, corrective, created_at`

const appendEntry = `-- name: AppendEntry
INSERT INTO ledger_entries (id, customer_id, amount, kind, balance_before, balance_after, origin, actor_id, related_order_id, description, metadata, corrective, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + ledgerColumns

func (r *LedgerRepo) Append(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}

	rows, _ := r.DB.Query(ctx, appendEntry,
		e.ID, e.CustomerID, e.Amount, string(e.Kind), e.BalanceBefore, e.BalanceAfter,
		string(e.Origin), e.ActorID, e.RelatedOrderID, e.Description, e.Metadata, e.Corrective, e.CreatedAt,
	)
	entry, err := pgx.CollectOneRow(rows, rowToLedgerEntry)

	switch {
	case err == nil:
		return entry, nil
	case isUniqueViolation(err, "ledger_entries_one_refund_idx"):
		return entry, apperrors.ErrAlreadyRefunded
	case isUniqueViolation(err, ""):
		// second purchase, hold or release for the same order
		return entry, fmt.Errorf("duplicate %s entry: %w", e.Kind, apperrors.ErrConcurrentModification)
	default:
		return entry, fmt.Errorf("db error: %w", err)
	}
}

const ledgerTotals = `-- name: LedgerTotals
SELECT
	c.id,
	COALESCE(SUM(e.amount) FILTER (WHERE e.amount > 0 AND NOT e.corrective), 0)::bigint,
	COALESCE(SUM(-e.amount) FILTER (WHERE e.amount < 0 AND NOT e.corrective), 0)::bigint,
	COUNT(e.id) FILTER (WHERE NOT e.corrective),
	c.balance
FROM customers c
LEFT JOIN ledger_entries e ON e.customer_id = c.id
WHERE c.id = $1
GROUP BY c.id
`

func (r *LedgerRepo) Totals(ctx context.Context, customerID uuid.UUID) (models.LedgerTotals, error) {
	rows, _ := r.DB.Query(ctx, ledgerTotals, customerID)
	totals, err := pgx.CollectOneRow(rows, rowToLedgerTotals)

	switch {
	case err == nil:
		return totals, nil
	case errors.Is(err, pgx.ErrNoRows):
		return totals, apperrors.ErrCustomerNotFound
	default:
		return totals, fmt.Errorf("db error: %w", err)
	}
}

const listLedgerTotals = `-- name: ListLedgerTotals
SELECT
	c.id,
	COALESCE(SUM(e.amount) FILTER (WHERE e.amount > 0 AND NOT e.corrective), 0)::bigint,
	COALESCE(SUM(-e.amount) FILTER (WHERE e.amount < 0 AND NOT e.corrective), 0)::bigint,
	COUNT(e.id) FILTER (WHERE NOT e.corrective),
	c.balance
FROM customers c
JOIN ledger_entries e ON e.customer_id = c.id
GROUP BY c.id
HAVING COUNT(e.id) FILTER (WHERE NOT e.corrective) > 0
ORDER BY c.id
`

func (r *LedgerRepo) ListTotals(ctx context.Context) ([]models.LedgerTotals, error) {
	rows, _ := r.DB.Query(ctx, listLedgerTotals)
	totals, err := pgx.CollectRows(rows, rowToLedgerTotals)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return totals, nil
}

const hasRefund = `-- name: HasRefund
SELECT EXISTS (
	SELECT 1 FROM ledger_entries
	WHERE related_order_id = $1 AND kind = 'refund'
)
`

func (r *LedgerRepo) HasRefund(ctx context.Context, orderID uuid.UUID) (bool, error) {
	rows, _ := r.DB.Query(ctx, hasRefund, orderID)
	exists, err := pgx.CollectOneRow(rows, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

const orderEntries = `-- name: OrderEntries
SELECT ` + ledgerColumns + ` FROM ledger_entries
WHERE related_order_id = $1
ORDER BY created_at, id
`

func (r *LedgerRepo) OrderEntries(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, orderEntries, orderID)
	entries, err := pgx.CollectRows(rows, rowToLedgerEntry)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entries, nil
}

const listEntries = `-- name: ListEntries
SELECT ` + ledgerColumns + ` FROM ledger_entries
WHERE ($1::uuid IS NULL OR customer_id = $1)
	AND ($2::uuid IS NULL OR related_order_id = $2)
	AND (cardinality($3::text[]) = 0 OR kind = ANY($3))
	AND (cardinality($4::text[]) = 0 OR origin = ANY($4))
	AND ($5::timestamptz IS NULL OR created_at >= $5)
	AND ($6::timestamptz IS NULL OR created_at <= $6)
ORDER BY created_at DESC, id DESC
LIMIT $7 OFFSET $8
`

func (r *LedgerRepo) List(ctx context.Context, opts repository.ListLedgerOpts) ([]models.LedgerEntry, error) {
	kinds := make([]string, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kinds = append(kinds, string(k))
	}
	origins := make([]string, 0, len(opts.Origins))
	for _, o := range opts.Origins {
		origins = append(origins, string(o))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLedgerPageSize
	}

	rows, _ := r.DB.Query(ctx, listEntries,
		opts.CustomerID, opts.OrderID, kinds, origins, opts.From, opts.To, limit, opts.Offset,
	)
	entries, err := pgx.CollectRows(rows, rowToLedgerEntry)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entries, nil
}

func rowToLedgerEntry(row pgx.CollectableRow) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	var kind, origin string
	err := row.Scan(
		&e.ID, &e.CustomerID, &e.Amount, &kind, &e.BalanceBefore, &e.BalanceAfter, &origin,
		&e.ActorID, &e.RelatedOrderID, &e.Description, &e.Metadata, &e.Corrective, &e.CreatedAt,
	)
	e.Kind = models.LedgerKind(kind)
	e.Origin = models.Origin(origin)
	return e, err
}

func rowToLedgerTotals(row pgx.CollectableRow) (models.LedgerTotals, error) {
	var t models.LedgerTotals
	err := row.Scan(&t.CustomerID, &t.Credits, &t.Debits, &t.Count, &t.Balance)
	return t, err
}
