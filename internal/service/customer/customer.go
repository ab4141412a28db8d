package customer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
)

// Account administration: bans and capability grants
type Service struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, l logger.Logger) *Service {
	return &Service{storage: storage, logger: l}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.Customer, error) {
	return s.storage.Customer().GetCustomer(ctx, id)
}

// Ban blocks purchases for the customer. Open orders are left to finish on their own.
func (s *Service) Ban(ctx context.Context, id uuid.UUID, reason string, actorID uuid.UUID) (models.Customer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "banned by administrator"
	}

	c, err := s.storage.Customer().SetBanned(ctx, id, &reason)
	if err != nil {
		return c, fmt.Errorf("can't ban customer. Err: %w", err)
	}

	s.logger.Warn("Customer banned", "customer_id", id, "actor_id", actorID, "reason", reason)
	return c, nil
}

func (s *Service) Unban(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (models.Customer, error) {
	c, err := s.storage.Customer().SetBanned(ctx, id, nil)
	if err != nil {
		return c, fmt.Errorf("can't lift ban. Err: %w", err)
	}

	s.logger.Info("Customer ban lifted", "customer_id", id, "actor_id", actorID)
	return c, nil
}

// SetCapabilities replaces the capability set. Unknown names are dropped.
func (s *Service) SetCapabilities(ctx context.Context, id uuid.UUID, names []string, actorID uuid.UUID) (models.Customer, error) {
	caps := models.ParseCapabilitySet(names)

	var c models.Customer
	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		if _, err := st.Customer().LockCustomer(ctx, id); err != nil {
			return err
		}
		if err := st.Customer().SetCapabilities(ctx, id, caps); err != nil {
			return err
		}

		var err error
		c, err = st.Customer().GetCustomer(ctx, id)
		return err
	})
	if err != nil {
		return c, fmt.Errorf("can't set capabilities. Err: %w", err)
	}

	s.logger.Info("Customer capabilities changed", "customer_id", id, "actor_id", actorID, "capabilities", caps.Strings())
	return c, nil
}
