package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/money"
)

// Amounts are sent twice: minor units for machines and a decimal string for humans

type orderResponse struct {
	ID           uuid.UUID          `json:"id"`
	Provider     string             `json:"provider"`
	Service      string             `json:"service"`
	Status       models.OrderStatus `json:"status"`
	Price        int64              `json:"price"`
	PriceDisplay string             `json:"price_display"`
	PhoneNumber  *string            `json:"phone_number,omitempty"`
	SMSCode      *string            `json:"sms_code,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	ActivatedAt  *time.Time         `json:"activated_at,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
}

func newOrderResponse(o models.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		Provider:     o.ProviderID,
		Service:      o.ServiceCode,
		Status:       o.Status,
		Price:        o.SellingPrice,
		PriceDisplay: money.Format(o.SellingPrice),
		PhoneNumber:  o.PhoneNumber,
		SMSCode:      o.SMSCode,
		CreatedAt:    o.CreatedAt,
		ActivatedAt:  o.ActivatedAt,
		CompletedAt:  o.CompletedAt,
	}
}

type ledgerEntryResponse struct {
	ID            uuid.UUID         `json:"id"`
	CustomerID    uuid.UUID         `json:"customer_id"`
	Amount        int64             `json:"amount"`
	AmountDisplay string            `json:"amount_display"`
	Kind          models.LedgerKind `json:"kind"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Origin        models.Origin     `json:"origin"`
	ActorID       *uuid.UUID        `json:"actor_id,omitempty"`
	OrderID       *uuid.UUID        `json:"order_id,omitempty"`
	Description   string            `json:"description"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	Corrective    bool              `json:"corrective,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func newLedgerEntryResponse(e models.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:            e.ID,
		CustomerID:    e.CustomerID,
		Amount:        e.Amount,
		AmountDisplay: money.Format(e.Amount),
		Kind:          e.Kind,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Origin:        e.Origin,
		ActorID:       e.ActorID,
		OrderID:       e.RelatedOrderID,
		Description:   e.Description,
		Metadata:      e.Metadata,
		Corrective:    e.Corrective,
		CreatedAt:     e.CreatedAt,
	}
}

func newLedgerResponse(entries []models.LedgerEntry) []ledgerEntryResponse {
	res := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, newLedgerEntryResponse(e))
	}
	return res
}

type balanceChangeResponse struct {
	BalanceBefore int64               `json:"balance_before"`
	BalanceAfter  int64               `json:"balance_after"`
	Display       string              `json:"display"`
	Entry         ledgerEntryResponse `json:"entry"`
}

func newBalanceChangeResponse(c models.BalanceChange) balanceChangeResponse {
	return balanceChangeResponse{
		BalanceBefore: c.BalanceBefore,
		BalanceAfter:  c.BalanceAfter,
		Display:       money.Format(c.BalanceAfter),
		Entry:         newLedgerEntryResponse(c.Entry),
	}
}

type customerResponse struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Capabilities []string   `json:"capabilities"`
	Banned       bool       `json:"banned"`
	BannedReason *string    `json:"banned_reason,omitempty"`
	BannedAt     *time.Time `json:"banned_at,omitempty"`
}

func newCustomerResponse(c models.Customer) customerResponse {
	return customerResponse{
		ID:           c.ID,
		Username:     c.Username,
		Capabilities: c.Capabilities.Strings(),
		Banned:       c.Banned,
		BannedReason: c.BannedReason,
		BannedAt:     c.BannedAt,
	}
}

// Query helpers. A malformed value is reported as ok=false.

func queryUUID(r *http.Request, key string) (*uuid.UUID, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, false
	}
	return &id, true
}

func queryInt(r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func queryTime(r *http.Request, key string) (*time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func pathUUID(r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(key))
	return id, err == nil
}
