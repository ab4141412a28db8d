// Package balance is the only place where a customer's cached balance changes.
// Every change is applied under the customer row lock together with its ledger entry.
package balance

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
)

// Kinds that may only add money / only take it
var (
	positiveKinds = []models.LedgerKind{models.LedgerKindCredit, models.LedgerKindRefund}
	negativeKinds = []models.LedgerKind{models.LedgerKindDebit, models.LedgerKindPurchase, models.LedgerKindWithdrawal}
)

type Adjustment struct {
	CustomerID  uuid.UUID
	Amount      int64
	Kind        models.LedgerKind
	Description string

	// Optional: defaults to system, or admin when ActorID is set
	Origin         models.Origin
	ActorID        *uuid.UUID
	RelatedOrderID *uuid.UUID
	Metadata       map[string]any

	// Set only by balance corrections, excluded from reconciliation sums
	Corrective bool
}

type Mutator struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewMutator(storage repository.Storage, logger logger.Logger) *Mutator {
	return &Mutator{
		storage: storage,
		logger:  logger,
	}
}

// AdjustBalance applies adj in its own transaction
func (m *Mutator) AdjustBalance(ctx context.Context, adj Adjustment) (models.BalanceChange, error) {
	var change models.BalanceChange

	err := m.storage.InTx(ctx, func(st repository.Storage) error {
		var err error
		change, err = m.Apply(ctx, st, adj)
		return err
	})
	if err != nil {
		return change, err
	}

	m.logger.Info("Balance adjusted",
		"customer_id", adj.CustomerID,
		"amount", adj.Amount,
		"kind", adj.Kind,
		"origin", change.Entry.Origin,
		"balance_after", change.BalanceAfter,
	)
	return change, nil
}

// Apply runs the mutation inside the caller's transaction (st must come from InTx).
// The customer row stays locked until that transaction ends.
func (m *Mutator) Apply(ctx context.Context, st repository.Storage, adj Adjustment) (models.BalanceChange, error) {
	var change models.BalanceChange

	if err := validate(adj); err != nil {
		return change, err
	}

	customer, err := st.Customer().LockCustomer(ctx, adj.CustomerID)
	if err != nil {
		return change, err
	}

	before := customer.Balance
	if adj.Amount > 0 && before > math.MaxInt64-adj.Amount {
		return change, fmt.Errorf("balance would overflow: %w", apperrors.ErrInvalidAmount)
	}
	after := before + adj.Amount
	if after < 0 {
		return change, apperrors.ErrInsufficientFunds
	}

	if err := st.Customer().SetBalance(ctx, customer.ID, after); err != nil {
		return change, err
	}

	entry, err := st.Ledger().Append(ctx, models.LedgerEntry{
		CustomerID:     customer.ID,
		Amount:         adj.Amount,
		Kind:           adj.Kind,
		BalanceBefore:  before,
		BalanceAfter:   after,
		Origin:         origin(adj),
		ActorID:        adj.ActorID,
		RelatedOrderID: adj.RelatedOrderID,
		Description:    adj.Description,
		Metadata:       adj.Metadata,
		Corrective:     adj.Corrective,
	})
	if err != nil {
		return change, err
	}

	return models.BalanceChange{
		BalanceBefore: before,
		BalanceAfter:  after,
		Entry:         entry,
	}, nil
}

func validate(adj Adjustment) error {
	if !slices.Contains(models.LedgerKinds, adj.Kind) {
		return fmt.Errorf("unknown ledger kind %q: %w", adj.Kind, apperrors.ErrInvalidAmount)
	}

	switch {
	case adj.Amount == 0:
		return apperrors.ErrInvalidAmount
	case adj.Amount < 0 && slices.Contains(positiveKinds, adj.Kind):
		return fmt.Errorf("%s must be positive: %w", adj.Kind, apperrors.ErrInvalidAmount)
	case adj.Amount > 0 && slices.Contains(negativeKinds, adj.Kind):
		return fmt.Errorf("%s must be negative: %w", adj.Kind, apperrors.ErrInvalidAmount)
	}

	return nil
}

func origin(adj Adjustment) models.Origin {
	switch {
	case adj.Origin != "":
		return adj.Origin
	case adj.ActorID != nil:
		return models.OriginAdmin
	default:
		return models.OriginSystem
	}
}
