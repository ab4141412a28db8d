package models

import (
	"time"

	"github.com/google/uuid"
)

type CancellationRecord struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	ProviderID string
	OrderID    *uuid.UUID
	CreatedAt  time.Time
}

// Cancellation limits configured per upstream provider
type ProviderPolicy struct {
	ProviderID            string
	Name                  string
	BaseURL               *string
	CancelLimit           int
	CancelWindowMinutes   int
	BlockDurationMinutes  int
	MaxSimultaneousOrders int
	UpdatedAt             time.Time
}

func (p ProviderPolicy) CancelWindow() time.Duration {
	return time.Duration(p.CancelWindowMinutes) * time.Minute
}

func (p ProviderPolicy) BlockDuration() time.Duration {
	return time.Duration(p.BlockDurationMinutes) * time.Minute
}
