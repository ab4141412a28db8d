// Package reconcile compares cached balances with the balances derived from the ledger.
package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
	"github.com/nkiryanov/numbermart/internal/service/balance"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Classify drift by its absolute size in minor units
func SeverityOf(difference int64) Severity {
	if difference < 0 {
		difference = -difference
	}

	switch {
	case difference < 100:
		return SeverityLow
	case difference <= 1000:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

type Inconsistency struct {
	CustomerID      uuid.UUID `json:"customer_id"`
	ExpectedBalance int64     `json:"expected_balance"`
	ActualBalance   int64     `json:"actual_balance"`
	Difference      int64     `json:"difference"`
	Severity        Severity  `json:"severity"`
	EntryCount      int64     `json:"entry_count"`
}

type FixResult struct {
	BalanceBefore int64 `json:"balance_before"`
	BalanceAfter  int64 `json:"balance_after"`
	Adjustment    int64 `json:"adjustment"`
}

type Service struct {
	storage repository.Storage
	mutator *balance.Mutator
	logger  logger.Logger
}

func NewService(storage repository.Storage, mutator *balance.Mutator, logger logger.Logger) *Service {
	return &Service{
		storage: storage,
		mutator: mutator,
		logger:  logger,
	}
}

// CheckInconsistencies reports customers whose cached balance differs from the ledger.
// With a nil customerID every customer having ledger entries is checked.
func (s *Service) CheckInconsistencies(ctx context.Context, customerID *uuid.UUID) ([]Inconsistency, error) {
	var all []models.LedgerTotals

	if customerID != nil {
		totals, err := s.storage.Ledger().Totals(ctx, *customerID)
		if err != nil {
			return nil, err
		}
		all = append(all, totals)
	} else {
		var err error
		all, err = s.storage.Ledger().ListTotals(ctx)
		if err != nil {
			return nil, err
		}
	}

	found := make([]Inconsistency, 0)
	for _, t := range all {
		if t.Count == 0 {
			continue
		}

		expected := t.Expected()
		diff := t.Balance - expected
		if diff == 0 {
			continue
		}

		found = append(found, Inconsistency{
			CustomerID:      t.CustomerID,
			ExpectedBalance: expected,
			ActualBalance:   t.Balance,
			Difference:      diff,
			Severity:        SeverityOf(diff),
			EntryCount:      t.Count,
		})
	}

	return found, nil
}

// FixBalance moves the cached balance to the ledger-derived one and records the correction.
// Succeeds without changes when there is nothing to fix.
func (s *Service) FixBalance(ctx context.Context, customerID uuid.UUID, actorID uuid.UUID) (FixResult, error) {
	var res FixResult

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		customer, err := st.Customer().LockCustomer(ctx, customerID)
		if err != nil {
			return err
		}

		totals, err := st.Ledger().Totals(ctx, customerID)
		if err != nil {
			return err
		}

		expected := totals.Expected()
		adjustment := expected - customer.Balance
		res = FixResult{
			BalanceBefore: customer.Balance,
			BalanceAfter:  customer.Balance,
		}
		if adjustment == 0 {
			return nil
		}
		if expected < 0 {
			return fmt.Errorf("ledger says customer owes %d: %w", -expected, apperrors.ErrInsufficientFunds)
		}

		kind := models.LedgerKindCredit
		if adjustment < 0 {
			kind = models.LedgerKindDebit
		}

		change, err := s.mutator.Apply(ctx, st, balance.Adjustment{
			CustomerID:  customerID,
			Amount:      adjustment,
			Kind:        kind,
			Description: "balance correction",
			Origin:      models.OriginAdmin,
			ActorID:     &actorID,
			Corrective:  true,
			Metadata: map[string]any{
				"type":            "balance_correction",
				"previousBalance": customer.Balance,
				"expectedBalance": expected,
				"difference":      customer.Balance - expected,
			},
		})
		if err != nil {
			return err
		}

		res.BalanceAfter = change.BalanceAfter
		res.Adjustment = adjustment
		return nil
	})
	if err != nil {
		return FixResult{}, err
	}

	if res.Adjustment != 0 {
		s.logger.Warn("Balance corrected",
			"customer_id", customerID,
			"actor_id", actorID,
			"balance_before", res.BalanceBefore,
			"balance_after", res.BalanceAfter,
		)
	}
	return res, nil
}
