package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nkiryanov/numbermart/internal/apperrors"
	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/repository"
)

// Registry resolves provider ids to clients.
// A provider's policy may override its base URL; otherwise the provider lives
// under the shared gateway address: <fallback>/<provider id>.
type Registry struct {
	fallback string
	policies repository.PolicyRepo
	logger   logger.Logger

	mu      sync.Mutex
	clients map[string]*Client // by base URL
}

func NewRegistry(fallback string, policies repository.PolicyRepo, l logger.Logger) *Registry {
	return &Registry{
		fallback: strings.TrimRight(fallback, "/"),
		policies: policies,
		logger:   l,
		clients:  make(map[string]*Client),
	}
}

func (r *Registry) Client(ctx context.Context, providerID string) (*Client, error) {
	baseURL, err := r.baseURL(ctx, providerID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[baseURL]
	if !ok {
		c = NewClient(baseURL, r.logger.With("provider_id", providerID))
		r.clients[baseURL] = c
	}
	return c, nil
}

func (r *Registry) RequestNumber(ctx context.Context, providerID string, service string) (Number, error) {
	c, err := r.Client(ctx, providerID)
	if err != nil {
		return Number{}, err
	}
	return c.RequestNumber(ctx, service)
}

func (r *Registry) GetStatus(ctx context.Context, providerID string, externalID string) (NumberStatus, error) {
	c, err := r.Client(ctx, providerID)
	if err != nil {
		return NumberStatus{}, err
	}
	return c.GetStatus(ctx, externalID)
}

func (r *Registry) Cancel(ctx context.Context, providerID string, externalID string) error {
	c, err := r.Client(ctx, providerID)
	if err != nil {
		return err
	}
	return c.Cancel(ctx, externalID)
}

func (r *Registry) baseURL(ctx context.Context, providerID string) (string, error) {
	policy, err := r.policies.GetPolicy(ctx, providerID)
	switch {
	case err == nil && policy.BaseURL != nil && *policy.BaseURL != "":
		return *policy.BaseURL, nil
	case err == nil, errors.Is(err, apperrors.ErrProviderNotFound):
	default:
		return "", err
	}

	if r.fallback == "" {
		return "", fmt.Errorf("no address for provider %q: %w", providerID, apperrors.ErrProviderNotFound)
	}
	return r.fallback + "/" + providerID, nil
}
