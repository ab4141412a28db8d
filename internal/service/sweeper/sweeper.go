// Package sweeper periodically walks open orders and syncs them with their providers,
// which expires and refunds the stale ones.
package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/models"
	"github.com/nkiryanov/numbermart/internal/repository"
)

const (
	DefaultWorkers  = 5                // Number of workers syncing orders
	DefaultInterval = 30 * time.Second // Interval between sweeps
	defaultBatch    = 100
)

type orderService interface {
	Sync(ctx context.Context, order models.Order) (models.Order, error)
	ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error)
}

type Sweeper struct {
	consumer *Consumer
	producer *Producer
}

func New(orderService orderService, interval time.Duration, workers int, logger logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Sweeper{
		consumer: &Consumer{
			countWorkers: workers,
			orderService: orderService,
			logger:       logger,
		},
		producer: &Producer{
			interval:     interval,
			batchSize:    defaultBatch,
			orderService: orderService,
			logger:       logger,
		},
	}
}

// Process sweeps until ctx is done. The returned channel closes when all workers stopped.
func (s *Sweeper) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	orderChan := make(chan models.Order)

	producerStopped := s.producer.Produce(ctx, orderChan)
	consumerStopped := s.consumer.Consume(ctx, orderChan)

	go func() {
		defer close(idleStopped)
		<-producerStopped
		close(orderChan)
		<-consumerStopped
		s.consumer.logger.Debug("Sweeper stopped")
	}()

	return idleStopped
}

type SweepResult struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

// SweepOnce runs a single synchronous pass over open orders
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	in := make(chan models.Order)
	results := make(chan syncOutcome)

	go func() {
		defer close(in)
		s.producer.sweep(ctx, in)
	}()
	done := s.consumer.consume(ctx, in, results)

	go func() {
		<-done
		close(results)
	}()

	for r := range results {
		res.Checked++
		switch {
		case r.err != nil:
			res.Failed++
		case r.changed:
			res.Changed++
		}
	}

	return res, ctx.Err()
}
