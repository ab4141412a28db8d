package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/models"
)

// Policies lists every configured provider
func (l *Limiter) Policies(ctx context.Context) ([]models.ProviderPolicy, error) {
	return l.storage.Policy().ListPolicies(ctx)
}

// SetPolicy creates or replaces limits of one provider
func (l *Limiter) SetPolicy(ctx context.Context, p models.ProviderPolicy) (models.ProviderPolicy, error) {
	p.ProviderID = strings.TrimSpace(p.ProviderID)
	switch {
	case p.ProviderID == "":
		return p, fmt.Errorf("provider id is empty: %w", apperrors.ErrInvalidPolicy)
	case p.CancelLimit <= 0, p.CancelWindowMinutes <= 0, p.MaxSimultaneousOrders <= 0:
		return p, fmt.Errorf("limits must be positive: %w", apperrors.ErrInvalidPolicy)
	case p.BlockDurationMinutes < 0:
		return p, fmt.Errorf("block duration is negative: %w", apperrors.ErrInvalidPolicy)
	}
	if p.Name == "" {
		p.Name = p.ProviderID
	}
	if p.BaseURL != nil && strings.TrimSpace(*p.BaseURL) == "" {
		p.BaseURL = nil
	}

	stored, err := l.storage.Policy().UpsertPolicy(ctx, p)
	if err != nil {
		return stored, err
	}

	l.logger.Info("Provider policy updated",
		"provider_id", stored.ProviderID,
		"cancel_limit", stored.CancelLimit,
		"cancel_window_minutes", stored.CancelWindowMinutes,
		"block_duration_minutes", stored.BlockDurationMinutes,
		"max_simultaneous_orders", stored.MaxSimultaneousOrders,
	)
	return stored, nil
}
