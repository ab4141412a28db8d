package customerctx

import (
	"context"

	"github.com/nkiryanov/numbermart/internal/models"
)

type ctxKey string

const customerKey ctxKey = "customer"

// Create a new context carrying the authenticated customer
func New(ctx context.Context, c models.Customer) context.Context {
	return context.WithValue(ctx, customerKey, c)
}

// Extract the authenticated customer from the context
func FromContext(ctx context.Context) (models.Customer, bool) {
	c, ok := ctx.Value(customerKey).(models.Customer)
	return c, ok
}
