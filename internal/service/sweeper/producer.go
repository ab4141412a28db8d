package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
)

type Producer struct {
	interval     time.Duration
	logger       logger.Logger
	orderService orderService
	batchSize    int
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				p.logger.Debug("Producer tick: fetching open orders")
				p.sweep(ctx, out)
			}
		}
	}()

	return idleStopped
}

// Send every open order to out, oldest first, one batch at a time.
// Orders created after the sweep started wait for the next one.
func (p *Producer) sweep(ctx context.Context, out chan<- models.Order) {
	cutoff := time.Now()
	var after *repository.OrderCursor

	for {
		orders, err := p.orderService.ListOrders(ctx, repository.ListOrdersOpts{
			Statuses:      models.OpenOrderStatuses,
			CreatedBefore: &cutoff,
			After:         after,
			Limit:         p.batchSize,
		})
		if err != nil {
			p.logger.Error("Failed to list orders", "error", err)
			return
		}

		for _, order := range orders {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context while sending orders")
				return
			case out <- order:
			}
		}

		if len(orders) < p.batchSize {
			return
		}
		last := orders[len(orders)-1]
		after = &repository.OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}
