package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusExpired   OrderStatus = "expired"
)

// Statuses an order may leave; everything else is terminal
var OpenOrderStatuses = []OrderStatus{OrderStatusPending, OrderStatusActive}

// Purchased virtual number
type Order struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	ProviderID  string
	ServiceCode string

	// Provider side identifiers, known once the number is assigned
	ExternalID  *string
	PhoneNumber *string

	Status       OrderStatus
	SellingPrice int64
	SMSCode      *string

	CreatedAt   time.Time
	ActivatedAt *time.Time
	CompletedAt *time.Time
	ModifiedAt  time.Time
}

func (o Order) IsOpen() bool {
	return slices.Contains(OpenOrderStatuses, o.Status)
}

// Age of the order measured from creation
func (o Order) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}
