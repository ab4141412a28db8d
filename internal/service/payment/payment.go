// Package payment credits balances for confirmed external payments exactly once.
package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
	"github.com/nkiryanov/numbermart/internal/service/balance"
)

type Confirmation struct {
	CustomerID     uuid.UUID
	Amount         int64
	IdempotencyKey string
}

type Result struct {
	// The key was seen before; the balance was not touched
	Duplicate bool
	Change    models.BalanceChange
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

// ConfirmPayment credits the customer once per idempotency key, however many times the gateway delivers it
func (s *Service) ConfirmPayment(ctx context.Context, c Confirmation) (Result, error) {
	var res Result

	key := strings.TrimSpace(c.IdempotencyKey)
	switch {
	case key == "":
		return res, apperrors.ErrInvalidIdempotencyKey
	case c.Amount <= 0:
		return res, apperrors.ErrInvalidAmount
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		// Deliveries for one customer queue up here
		if _, err := st.Customer().LockCustomer(ctx, c.CustomerID); err != nil {
			return err
		}

		_, created, err := st.Payment().CreateEvent(ctx, models.PaymentEvent{
			IdempotencyKey: key,
			CustomerID:     c.CustomerID,
			Amount:         c.Amount,
		})
		if err != nil {
			return err
		}
		if !created {
			res.Duplicate = true
			return nil
		}

		res.Change, err = s.mutator.Apply(ctx, st, balance.Adjustment{
			CustomerID:  c.CustomerID,
			Amount:      c.Amount,
			Kind:        models.LedgerKindCredit,
			Description: "payment " + key,
			Origin:      models.OriginAPI,
			Metadata:    map[string]any{"idempotency_key": key},
		})
		if err != nil {
			return err
		}

		return st.Payment().SetLedgerEntry(ctx, key, res.Change.Entry.ID)
	})
	if err != nil {
		return Result{}, err
	}

	if res.Duplicate {
		s.logger.Info("Duplicate payment ignored", "idempotency_key", key, "customer_id", c.CustomerID)
	} else {
		s.logger.Info("Payment credited", "idempotency_key", key, "customer_id", c.CustomerID, "amount", c.Amount)
	}
	return res, nil
}
