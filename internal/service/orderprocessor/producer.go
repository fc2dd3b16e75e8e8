package orderprocessor

import (
	"context"
	"time"

	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/repository"
)

// Orders whose status may still move on the server side
var syncedStatuses = []models.OrderStatus{
	models.OrderStatusProcessing,
	models.OrderStatusShipped,
}

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
				orders, err := p.orderService.ListOrders(ctx, repository.ListOrdersOpts{
					Statuses: syncedStatuses,
					Limit:    p.batchSize,
				})
				if err != nil {
					p.logger.Error("Failed to list orders", "error", err)
					continue
				}
				p.logger.Debug("Producer tick", "orders", len(orders))

				for _, order := range orders {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending orders")
						return
					case out <- order:
					}
				}
			}
		}
	}()

	return idleStopped
}
