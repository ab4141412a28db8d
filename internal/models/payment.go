package models

import (
	"time"

	"github.com/google/uuid"
)

// Confirmed external payment delivered by a gateway webhook
type PaymentEvent struct {
	IdempotencyKey string
	CustomerID     uuid.UUID
	Amount         int64
	LedgerEntryID  *uuid.UUID
	ReceivedAt     time.Time
}
