// Package ratelimit blocks purchases of customers who cancel too often with one provider.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
)

type BlockStatus struct {
	IsBlocked        bool   `json:"is_blocked"`
	RemainingMinutes int    `json:"remaining_minutes,omitempty"`
	Message          string `json:"message,omitempty"`
}

type CancellationAdvice struct {
	CanCancel      bool   `json:"can_cancel"`
	WillBeBlocked  bool   `json:"will_be_blocked"`
	WarningMessage string `json:"warning_message,omitempty"`
}

type Limiter struct {
	storage repository.Storage
	logger  logger.Logger

	// Clock, replaced in tests
	Now func() time.Time
}

func NewLimiter(storage repository.Storage, logger logger.Logger) *Limiter {
	return &Limiter{
		storage: storage,
		logger:  logger,
		Now:     time.Now,
	}
}

// CheckBlock tells whether the customer may purchase from the provider right now
func (l *Limiter) CheckBlock(ctx context.Context, customer models.Customer, providerID string) (BlockStatus, error) {
	if customer.IsAdmin() {
		return BlockStatus{}, nil
	}

	policy, records, err := l.window(ctx, customer.ID, providerID)
	switch {
	case errors.Is(err, apperrors.ErrProviderNotFound):
		return BlockStatus{}, nil
	case err != nil:
		return BlockStatus{}, err
	}

	if len(records) < policy.CancelLimit {
		return BlockStatus{}, nil
	}

	// Records come newest first
	now := l.Now()
	blockedUntil := records[0].CreatedAt.Add(policy.BlockDuration())
	if !now.Before(blockedUntil) {
		return BlockStatus{}, nil
	}

	remaining := int(math.Ceil(blockedUntil.Sub(now).Minutes()))
	return BlockStatus{
		IsBlocked:        true,
		RemainingMinutes: remaining,
		Message: fmt.Sprintf(
			"You cancelled %d orders in the last %d minutes. New purchases from %s are blocked for %d more minute(s).",
			len(records), policy.CancelWindowMinutes, policy.Name, remaining,
		),
	}, nil
}

// RecordCancellation stores one customer initiated cancellation
func (l *Limiter) RecordCancellation(ctx context.Context, customerID uuid.UUID, providerID string, orderID *uuid.UUID) error {
	_, err := l.storage.Cancellation().Record(ctx, customerID, providerID, orderID, l.Now())
	if err != nil {
		return fmt.Errorf("record cancellation: %w", err)
	}
	return nil
}

// ValidateCancellation warns when the next cancellation will trigger a block.
// Cancelling itself is always allowed.
func (l *Limiter) ValidateCancellation(ctx context.Context, customer models.Customer, providerID string) (CancellationAdvice, error) {
	advice := CancellationAdvice{CanCancel: true}
	if customer.IsAdmin() {
		return advice, nil
	}

	policy, records, err := l.window(ctx, customer.ID, providerID)
	switch {
	case errors.Is(err, apperrors.ErrProviderNotFound):
		return advice, nil
	case err != nil:
		return advice, err
	}

	next := len(records) + 1
	if next < policy.CancelLimit {
		return advice, nil
	}

	advice.WillBeBlocked = true
	advice.WarningMessage = fmt.Sprintf(
		"This is your %s cancellation in %d minutes. Purchases from %s will be blocked for %d minutes.",
		ordinal(next), policy.CancelWindowMinutes, policy.Name, policy.BlockDurationMinutes,
	)
	return advice, nil
}

// Policy of the provider and the customer's cancellations inside its window
func (l *Limiter) window(ctx context.Context, customerID uuid.UUID, providerID string) (models.ProviderPolicy, []models.CancellationRecord, error) {
	policy, err := l.storage.Policy().GetPolicy(ctx, providerID)
	if err != nil {
		return policy, nil, err
	}

	since := l.Now().Add(-policy.CancelWindow())
	records, err := l.storage.Cancellation().ListSince(ctx, customerID, providerID, since)
	if err != nil {
		return policy, nil, err
	}

	return policy, records, nil
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
