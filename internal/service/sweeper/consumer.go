package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/service/provider"
)

type Consumer struct {
	countWorkers int

	// Providers may throttle us.
	// Then every worker waits until the time is up
	waitUntil atomic.Int64

	orderService orderService
	logger       logger.Logger
}

type syncOutcome struct {
	changed bool
	err     error
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Order) <-chan struct{} {
	return c.consume(ctx, in, nil)
}

// Run workers until in is closed or ctx is done. Outcomes go to results when it is not nil.
func (c *Consumer) consume(ctx context.Context, in <-chan models.Order, results chan<- syncOutcome) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, in, results)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Order, results chan<- syncOutcome) {
	for {
		// Wait until the throttle passes or context is done
		waitUntil := time.Unix(0, c.waitUntil.Load())
		if waitUntil.After(time.Now()) {
			c.logger.Debug("Worker is waiting for provider throttle to pass", "wait_until", waitUntil)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(waitUntil)):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case order, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}

			outcome := c.sync(ctx, order)
			if results != nil {
				select {
				case results <- outcome:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (c *Consumer) sync(ctx context.Context, order models.Order) syncOutcome {
	synced, err := c.orderService.Sync(ctx, order)

	var perr *provider.Error
	switch {
	case err == nil:
		if synced.Status != order.Status {
			c.logger.Info("Order swept", "order_id", order.ID, "from", order.Status, "to", synced.Status)
		}
		return syncOutcome{changed: synced.Status != order.Status}

	case errors.As(err, &perr) && errors.Is(err, provider.ErrThrottled):
		c.logger.Info("Provider throttled, waiting", "provider_id", order.ProviderID, "retry_after", perr.RetryAfter)
		c.waitUntil.Store(time.Now().Add(perr.RetryAfter).UnixNano())

	default:
		c.logger.Error("Failed to sync order", "order_id", order.ID, "error", err)
	}

	return syncOutcome{err: err}
}
