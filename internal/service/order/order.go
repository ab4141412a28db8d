// Package order runs the lifecycle of purchased numbers: purchase, activation,
// code receipt, cancellation and expiration.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
	"github.com/nkiryanov/numbermart/internal/service/balance"
	"github.com/nkiryanov/numbermart/internal/service/provider"
	"github.com/nkiryanov/numbermart/internal/service/ratelimit"
)

// Open orders older than TTL are expired and refunded
const TTL = 20 * time.Minute

type Provider interface {
	RequestNumber(ctx context.Context, providerID string, service string) (provider.Number, error)
	GetStatus(ctx context.Context, providerID string, externalID string) (provider.NumberStatus, error)
	Cancel(ctx context.Context, providerID string, externalID string) error
}

type Service struct {
	storage  repository.Storage
	mutator  *balance.Mutator
	limiter  *ratelimit.Limiter
	provider Provider
	logger   logger.Logger

	// Clock, replaced in tests
	Now func() time.Time
}

func NewService(storage repository.Storage, mutator *balance.Mutator, limiter *ratelimit.Limiter, provider Provider, logger logger.Logger) *Service {
	return &Service{
		storage:  storage,
		mutator:  mutator,
		limiter:  limiter,
		provider: provider,
		logger:   logger,
		Now:      time.Now,
	}
}

// Purchase is rejected because of recent cancellations
type BlockedError struct {
	Status ratelimit.BlockStatus
}

func (e *BlockedError) Error() string {
	return e.Status.Message
}

func (e *BlockedError) Unwrap() error {
	return apperrors.ErrPurchaseBlocked
}

type PurchaseRequest struct {
	ProviderID  string
	ServiceCode string
	Price       int64
}

// Purchase leases a number for the customer.
// The price is held while the provider is asked for a number and charged once it is assigned.
// When the provider fails the order ends up failed and the customer pays nothing.
func (s *Service) Purchase(ctx context.Context, customerID uuid.UUID, req PurchaseRequest) (models.Order, error) {
	if req.Price <= 0 {
		return models.Order{}, apperrors.ErrInvalidAmount
	}

	customer, err := s.storage.Customer().GetCustomer(ctx, customerID)
	if err != nil {
		return models.Order{}, err
	}
	if customer.Banned {
		return models.Order{}, apperrors.ErrCustomerBanned
	}

	policy, err := s.storage.Policy().GetPolicy(ctx, req.ProviderID)
	if err != nil {
		return models.Order{}, err
	}

	block, err := s.limiter.CheckBlock(ctx, customer, req.ProviderID)
	if err != nil {
		return models.Order{}, err
	}
	if block.IsBlocked {
		return models.Order{}, &BlockedError{Status: block}
	}

	var order models.Order
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		// Purchases of one customer queue up here, so the open orders count can't be raced
		if _, err := st.Customer().LockCustomer(ctx, customer.ID); err != nil {
			return err
		}

		open, err := st.Order().CountOpenOrders(ctx, customer.ID, req.ProviderID)
		if err != nil {
			return err
		}
		if open >= policy.MaxSimultaneousOrders {
			return apperrors.ErrTooManyActiveOrders
		}

		order, err = st.Order().CreateOrder(ctx, customer.ID, req.ProviderID, req.ServiceCode, req.Price)
		if err != nil {
			return err
		}

		_, err = s.mutator.PlaceHold(ctx, st, order)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}

	number, err := s.provider.RequestNumber(ctx, req.ProviderID, req.ServiceCode)
	if err != nil {
		s.logger.Warn("Provider refused number", "order_id", order.ID, "provider_id", req.ProviderID, "error", err)

		if _, failErr := s.Fail(context.WithoutCancel(ctx), order.ID, "provider refused number"); failErr != nil {
			s.logger.Error("Failed to release hold of refused order", "order_id", order.ID, "error", failErr)
		}

		if !errors.Is(err, apperrors.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", apperrors.ErrUpstreamUnavailable, err)
		}
		return models.Order{}, err
	}

	// The number is leased already: activation must not be abandoned halfway
	actx := context.WithoutCancel(ctx)
	pendingID := order.ID
	err = s.storage.InTx(actx, func(st repository.Storage) error {
		var err error
		order, err = st.Order().Transition(actx, pendingID, repository.TransitionParams{
			From:        []models.OrderStatus{models.OrderStatusPending},
			To:          models.OrderStatusActive,
			ExternalID:  &number.ExternalID,
			PhoneNumber: &number.Phone,
		})
		if err != nil {
			return err
		}

		if _, err := s.mutator.ReleaseHold(actx, st, order); err != nil {
			return err
		}
		_, err = s.mutator.Charge(actx, st, order)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to activate order", "order_id", pendingID, "external_id", number.ExternalID, "error", err)
		s.cancelUpstream(ctx, req.ProviderID, number.ExternalID)
		if _, failErr := s.Fail(actx, pendingID, "activation failed"); failErr != nil && !errors.Is(failErr, apperrors.ErrConcurrentModification) {
			s.logger.Error("Failed to release hold of unactivated order", "order_id", pendingID, "error", failErr)
		}
		return models.Order{}, fmt.Errorf("activate order: %w", err)
	}

	s.logger.Info("Order purchased",
		"order_id", order.ID,
		"customer_id", customer.ID,
		"provider_id", order.ProviderID,
		"service", order.ServiceCode,
		"price", order.SellingPrice,
	)
	return order, nil
}

// Get returns the order of the customer after checking it upstream.
// Upstream problems are logged and the stored order is returned.
func (s *Service) Get(ctx context.Context, viewer models.Customer, orderID uuid.UUID) (models.Order, error) {
	order, err := s.visibleOrder(ctx, viewer, orderID)
	if err != nil {
		return order, err
	}

	synced, err := s.Sync(ctx, order)
	switch {
	case err == nil:
		return synced, nil
	case errors.Is(err, apperrors.ErrUpstreamUnavailable):
		s.logger.Warn("Order not synced", "order_id", order.ID, "error", err)
		return order, nil
	default:
		return order, err
	}
}

// List orders of the customer, newest state of stale ones included
func (s *Service) List(ctx context.Context, customerID uuid.UUID, statuses []models.OrderStatus, limit int) ([]models.Order, error) {
	orders, err := s.storage.Order().ListOrders(ctx, repository.ListOrdersOpts{
		CustomerID: &customerID,
		Statuses:   statuses,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	now := s.Now()
	for i, o := range orders {
		if !o.IsOpen() || o.Age(now) < TTL {
			continue
		}
		synced, err := s.Sync(ctx, o)
		if err != nil {
			s.logger.Warn("Stale order not synced", "order_id", o.ID, "error", err)
			continue
		}
		orders[i] = synced
	}

	return orders, nil
}

func (s *Service) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	return s.storage.Order().ListOrders(ctx, opts)
}

// Order of another customer is reported as missing unless the viewer manages orders
func (s *Service) visibleOrder(ctx context.Context, viewer models.Customer, orderID uuid.UUID) (models.Order, error) {
	order, err := s.storage.Order().GetOrder(ctx, orderID)
	if err != nil {
		return order, err
	}

	if order.CustomerID != viewer.ID && !viewer.Capabilities.Has(models.CapabilityOrdersManage) {
		return models.Order{}, apperrors.ErrOrderNotFound
	}
	return order, nil
}

// Best effort: the number is returned to the provider, failures are only logged
func (s *Service) cancelUpstream(ctx context.Context, providerID string, externalID string) {
	err := s.provider.Cancel(context.WithoutCancel(ctx), providerID, externalID)
	if err != nil {
		s.logger.Warn("Failed to cancel number upstream", "provider_id", providerID, "external_id", externalID, "error", err)
	}
}
