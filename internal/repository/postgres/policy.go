package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/models"
)

type PolicyRepo struct {
	DB DBTX
}

const policyColumns = `provider_id, name, base_url, cancel_limit, cancel_window_minutes, block_duration_minutes, max_simultaneous_orders, updated_at`

const getPolicy = `-- name: GetPolicy
SELECT ` + policyColumns + ` FROM provider_policies
WHERE provider_id = $1
`

func (r *PolicyRepo) GetPolicy(ctx context.Context, providerID string) (models.ProviderPolicy, error) {
	rows, _ := r.DB.Query(ctx, getPolicy, providerID)
	policy, err := pgx.CollectOneRow(rows, rowToPolicy)

	switch {
	case err == nil:
		return policy, nil
	case errors.Is(err, pgx.ErrNoRows):
		return policy, apperrors.ErrProviderNotFound
	default:
		return policy, fmt.Errorf("db error: %w", err)
	}
}

const listPolicies = `-- name: ListPolicies
SELECT ` + policyColumns + ` FROM provider_policies
ORDER BY provider_id
`

func (r *PolicyRepo) ListPolicies(ctx context.Context) ([]models.ProviderPolicy, error) {
	rows, _ := r.DB.Query(ctx, listPolicies)
	policies, err := pgx.CollectRows(rows, rowToPolicy)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return policies, nil
}

const upsertPolicy = `-- name: UpsertPolicy
INSERT INTO provider_policies (provider_id, name, base_url, cancel_limit, cancel_window_minutes, block_duration_minutes, max_simultaneous_orders, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (provider_id) DO UPDATE SET
	name = EXCLUDED.name,
	base_url = EXCLUDED.base_url,
	cancel_limit = EXCLUDED.cancel_limit,
	cancel_window_minutes = EXCLUDED.cancel_window_minutes,
	block_duration_minutes = EXCLUDED.block_duration_minutes,
	max_simultaneous_orders = EXCLUDED.max_simultaneous_orders,
	updated_at = EXCLUDED.updated_at
RETURNING ` + policyColumns

func (r *PolicyRepo) UpsertPolicy(ctx context.Context, p models.ProviderPolicy) (models.ProviderPolicy, error) {
	rows, _ := r.DB.Query(ctx, upsertPolicy,
		p.ProviderID, p.Name, p.BaseURL, p.CancelLimit, p.CancelWindowMinutes, p.BlockDurationMinutes, p.MaxSimultaneousOrders,
	)
	policy, err := pgx.CollectOneRow(rows, rowToPolicy)
	if err != nil {
		return policy, fmt.Errorf("db error: %w", err)
	}
	return policy, nil
}

func rowToPolicy(row pgx.CollectableRow) (models.ProviderPolicy, error) {
	var p models.ProviderPolicy
	err := row.Scan(&p.ProviderID, &p.Name, &p.BaseURL, &p.CancelLimit, &p.CancelWindowMinutes, &p.BlockDurationMinutes, &p.MaxSimultaneousOrders, &p.UpdatedAt)
	return p, err
}
