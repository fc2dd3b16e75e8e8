package orderprocessor

import (
	"context"
	"time"

	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/repository"
)

const (
	defaultCountWorkers    = 4                // Number of workers syncing orders
	defaultProduceInterval = 30 * time.Second // Interval for listing orders to sync
	defaultBatchSize       = 100
)

type orderService interface {
	Sync(ctx context.Context, number string) (models.Order, error)
	ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error)
}

type Config struct {
	// If not set than defaults are used
	Workers   int
	Interval  time.Duration
	BatchSize int
}

// Processor keeps paid orders in step with fulfillment progress on the commerce API
type Processor struct {
	consumer *Consumer
	producer *Producer
}

func New(cfg Config, orderService orderService, l logger.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultCountWorkers
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProduceInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	l = l.With("component", "order_sync")

	return &Processor{
		consumer: &Consumer{
			countWorkers: cfg.Workers,
			orderService: orderService,
			logger:       l,
		},
		producer: &Producer{
			interval:     cfg.Interval,
			batchSize:    cfg.BatchSize,
			orderService: orderService,
			logger:       l,
		},
	}
}

// Process runs until ctx is done; returned channel is closed when all workers stopped
func (op *Processor) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	orderChan := make(chan models.Order)

	producerStopped := op.producer.Produce(ctx, orderChan)
	consumerStopped := op.consumer.Consume(ctx, orderChan)

	go func() {
		defer close(idleStopped)
		defer close(orderChan)
		<-producerStopped
		<-consumerStopped
		op.consumer.logger.Debug("OrderProcessor stopped")
	}()

	return idleStopped
}
