package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
	"github.com/nkiryanov/numbermart/internal/service/balance"
	"github.com/nkiryanov/numbermart/internal/service/provider"
	"github.com/nkiryanov/numbermart/internal/service/ratelimit"
)

type CancelResult struct {
	Order  models.Order
	Advice ratelimit.CancellationAdvice
	Refund *models.LedgerEntry
}

// Cancel an open order and refund it. The actor is the owner or a customer managing orders.
// Only cancellations made by owners count toward the cancellation limit.
func (s *Service) Cancel(ctx context.Context, actor models.Customer, orderID uuid.UUID) (CancelResult, error) {
	var res CancelResult

	order, err := s.visibleOrder(ctx, actor, orderID)
	if err != nil {
		return res, err
	}
	if !order.IsOpen() {
		return res, apperrors.ErrOrderClosed
	}

	byOwner := order.CustomerID == actor.ID
	if byOwner {
		res.Advice, err = s.limiter.ValidateCancellation(ctx, actor, order.ProviderID)
		if err != nil {
			s.logger.Warn("Cancellation advice unavailable", "order_id", order.ID, "error", err)
		}
	}

	settlement := balance.Settlement{
		Status:  models.OrderStatusCancelled,
		Origin:  models.OriginAdmin,
		ActorID: &actor.ID,
	}
	if byOwner {
		settlement.Origin = models.OriginCustomer
	}

	order, settled, err := s.finish(ctx, order.ID, settlement)
	if err != nil {
		return res, err
	}
	res.Order = order
	res.Refund = settled.Refund

	if order.ExternalID != nil {
		s.cancelUpstream(ctx, order.ProviderID, *order.ExternalID)
	}

	if byOwner {
		err := s.limiter.RecordCancellation(context.WithoutCancel(ctx), order.CustomerID, order.ProviderID, &order.ID)
		if err != nil {
			s.logger.Error("Cancellation not recorded", "order_id", order.ID, "error", err)
		}
	}

	s.logger.Info("Order cancelled", "order_id", order.ID, "actor_id", actor.ID, "refunded", res.Refund != nil)
	return res, nil
}

// RecordCode stores the received SMS code. The order is completed in the same statement.
func (s *Service) RecordCode(ctx context.Context, orderID uuid.UUID, code string) (models.Order, error) {
	if code == "" {
		return models.Order{}, errors.New("empty sms code")
	}

	var order models.Order
	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error
		order, err = st.Order().Complete(ctx, orderID, code)
		if err != nil {
			return err
		}

		_, err = s.mutator.Settle(ctx, st, order, balance.Settlement{Status: models.OrderStatusCompleted})
		return err
	})
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("Order completed", "order_id", order.ID)
	return order, nil
}

// RecordCodeByExternalID is RecordCode for provider callbacks that only know their own id
func (s *Service) RecordCodeByExternalID(ctx context.Context, providerID string, externalID string, code string) (models.Order, error) {
	order, err := s.storage.Order().GetOrderByExternalID(ctx, providerID, externalID)
	if err != nil {
		return order, err
	}
	return s.RecordCode(ctx, order.ID, code)
}

// Fail an open order. Held funds are returned, a charged purchase is kept.
func (s *Service) Fail(ctx context.Context, orderID uuid.UUID, reason string) (models.Order, error) {
	order, _, err := s.finish(ctx, orderID, balance.Settlement{Status: models.OrderStatusFailed})
	if err != nil {
		return order, err
	}

	s.logger.Warn("Order failed", "order_id", order.ID, "reason", reason)
	return order, nil
}

// Expire an open order and refund it.
// Reports false when the order was finished by someone else in the meantime.
func (s *Service) Expire(ctx context.Context, order models.Order) (bool, error) {
	_, settled, err := s.finish(ctx, order.ID, balance.Settlement{Status: models.OrderStatusExpired})
	switch {
	case errors.Is(err, apperrors.ErrConcurrentModification):
		s.logger.Debug("Order already handled", "order_id", order.ID)
		return false, nil
	case err != nil:
		return false, err
	}

	s.logger.Info("Order expired", "order_id", order.ID, "refunded", settled.Refund != nil)
	return true, nil
}

// Sync brings a single open order up to date with its provider.
// The returned order is the freshest known state even when someone else moved it.
func (s *Service) Sync(ctx context.Context, order models.Order) (models.Order, error) {
	if !order.IsOpen() {
		return order, nil
	}

	expired := order.Age(s.Now()) >= TTL

	if order.ExternalID == nil {
		if !expired {
			return order, nil
		}
		_, err := s.Expire(ctx, order)
		return s.reload(ctx, order, err)
	}

	status, err := s.provider.GetStatus(ctx, order.ProviderID, *order.ExternalID)
	if err != nil {
		return order, fmt.Errorf("sync order %s: %w", order.ID, err)
	}

	switch status.Status {
	case provider.StatusReceived:
		_, err := s.RecordCode(ctx, order.ID, *status.Code)
		return s.reload(ctx, order, err)

	case provider.StatusCancelled:
		// Cancelled by the provider: refunded, never counted against the customer
		_, _, err := s.finish(ctx, order.ID, balance.Settlement{Status: models.OrderStatusCancelled})
		if err == nil {
			s.logger.Info("Order cancelled upstream", "order_id", order.ID)
		}
		return s.reload(ctx, order, err)

	default:
		if !expired {
			return order, nil
		}
		expired, err := s.Expire(ctx, order)
		if expired {
			s.cancelUpstream(ctx, order.ProviderID, *order.ExternalID)
		}
		return s.reload(ctx, order, err)
	}
}

// Move an open order to a terminal status and settle its money in one transaction
func (s *Service) finish(ctx context.Context, orderID uuid.UUID, settlement balance.Settlement) (models.Order, balance.SettleResult, error) {
	var order models.Order
	var res balance.SettleResult

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error
		order, err = st.Order().Transition(ctx, orderID, repository.TransitionParams{
			From: models.OpenOrderStatuses,
			To:   settlement.Status,
		})
		if err != nil {
			return err
		}

		res, err = s.mutator.Settle(ctx, st, order, settlement)
		return err
	})
	if err != nil {
		return models.Order{}, res, err
	}

	if res.AlreadyRefunded {
		s.logger.Warn("Refund skipped", "order_id", order.ID, "error", apperrors.ErrAlreadyRefunded)
	}
	return order, res, nil
}

// Losing a race is fine: return whatever state the winner left
func (s *Service) reload(ctx context.Context, order models.Order, err error) (models.Order, error) {
	if err != nil && !errors.Is(err, apperrors.ErrConcurrentModification) {
		return order, err
	}
	return s.storage.Order().GetOrder(ctx, order.ID)
}
