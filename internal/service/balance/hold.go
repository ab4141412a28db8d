package balance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
)

// Reserve the order price while the number is being requested upstream
func (m *Mutator) PlaceHold(ctx context.Context, st repository.Storage, order models.Order) (models.BalanceChange, error) {
	return m.Apply(ctx, st, Adjustment{
		CustomerID:     order.CustomerID,
		Amount:         -order.SellingPrice,
		Kind:           models.LedgerKindHold,
		Description:    fmt.Sprintf("hold for %s/%s", order.ProviderID, order.ServiceCode),
		Origin:         models.OriginCustomer,
		ActorID:        &order.CustomerID,
		RelatedOrderID: &order.ID,
	})
}

// Return reserved funds. A second release for the same order is rejected by the ledger.
func (m *Mutator) ReleaseHold(ctx context.Context, st repository.Storage, order models.Order) (models.BalanceChange, error) {
	return m.Apply(ctx, st, Adjustment{
		CustomerID:     order.CustomerID,
		Amount:         order.SellingPrice,
		Kind:           models.LedgerKindHold,
		Description:    "hold released",
		Origin:         models.OriginSystem,
		RelatedOrderID: &order.ID,
	})
}

// Charge the customer for an activated order
func (m *Mutator) Charge(ctx context.Context, st repository.Storage, order models.Order) (models.BalanceChange, error) {
	return m.Apply(ctx, st, Adjustment{
		CustomerID:     order.CustomerID,
		Amount:         -order.SellingPrice,
		Kind:           models.LedgerKindPurchase,
		Description:    fmt.Sprintf("purchase %s/%s", order.ProviderID, order.ServiceCode),
		Origin:         models.OriginCustomer,
		ActorID:        &order.CustomerID,
		RelatedOrderID: &order.ID,
	})
}

// How an order reached its terminal state
type Settlement struct {
	Status  models.OrderStatus
	Origin  models.Origin
	ActorID *uuid.UUID
}

type SettleResult struct {
	HoldReleased bool
	Refund       *models.LedgerEntry

	// The purchase had been refunded before; nothing was written
	AlreadyRefunded bool
}

// Settle puts the money of a finished order right: an outstanding hold is released,
// and for cancelled or expired orders the purchase is refunded unless it already was.
// Must run in the transaction that moved the order to its terminal status.
func (m *Mutator) Settle(ctx context.Context, st repository.Storage, order models.Order, s Settlement) (SettleResult, error) {
	var res SettleResult

	// Serializes settlement of all orders of the customer, so the refund check below can't race
	if _, err := st.Customer().LockCustomer(ctx, order.CustomerID); err != nil {
		return res, err
	}

	entries, err := st.Ledger().OrderEntries(ctx, order.ID)
	if err != nil {
		return res, err
	}

	var held, released bool
	var purchase *models.LedgerEntry
	for i, e := range entries {
		switch {
		case e.Kind == models.LedgerKindHold && e.Amount < 0:
			held = true
		case e.Kind == models.LedgerKindHold && e.Amount > 0:
			released = true
		case e.Kind == models.LedgerKindPurchase:
			purchase = &entries[i]
		}
	}

	if held && !released {
		if _, err := m.ReleaseHold(ctx, st, order); err != nil {
			return res, fmt.Errorf("release hold: %w", err)
		}
		res.HoldReleased = true
	}

	if purchase == nil || !refundable(s.Status) {
		return res, nil
	}

	refunded, err := st.Ledger().HasRefund(ctx, order.ID)
	if err != nil {
		return res, err
	}
	if refunded {
		m.logger.Warn("Order already refunded, skipping", "order_id", order.ID)
		res.AlreadyRefunded = true
		return res, nil
	}

	change, err := m.Apply(ctx, st, Adjustment{
		CustomerID:     order.CustomerID,
		Amount:         -purchase.Amount,
		Kind:           models.LedgerKindRefund,
		Description:    fmt.Sprintf("refund: order %s", s.Status),
		Origin:         settlementOrigin(s),
		ActorID:        s.ActorID,
		RelatedOrderID: &order.ID,
		Metadata:       map[string]any{"reason": string(s.Status)},
	})
	if err != nil {
		return res, fmt.Errorf("refund: %w", err)
	}
	res.Refund = &change.Entry

	return res, nil
}

func refundable(status models.OrderStatus) bool {
	return status == models.OrderStatusCancelled || status == models.OrderStatusExpired
}

func settlementOrigin(s Settlement) models.Origin {
	if s.Origin != "" {
		return s.Origin
	}
	return models.OriginSystem
}
