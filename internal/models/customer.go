package models

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Username     string
	PasswordHash string

	// Cached balance in minor units (cents); never negative
	Balance int64

	Banned       bool
	BannedReason *string
	BannedAt     *time.Time

	Capabilities CapabilitySet
}

// Admins are exempt from purchase restrictions like the cancellation limit
func (c Customer) IsAdmin() bool {
	return c.Capabilities.Has(CapabilityAdmin)
}
