package orderprocessor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
	"github.com/nkiryanov/storefront/internal/service/commerce"
)

type Consumer struct {
	countWorkers int

	// Commerce API may answer 429
	// If so all workers wait until the time is up
	waitUntil atomic.Int64

	orderService orderService
	logger       logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, in)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Order) {
	for {
		// Wait until rate limit is passed or context is done
		waitUntil := time.UnixMilli(c.waitUntil.Load())
		if waitUntil.After(time.Now()) {
			c.logger.Debug("Worker is waiting for rate limit to reset", "wait_until", waitUntil)

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
			c.sync(ctx, order)
		}
	}
}

func (c *Consumer) sync(ctx context.Context, order models.Order) {
	synced, err := c.orderService.Sync(ctx, order.Number)

	var apiErr *commerce.APIError
	switch {
	case err == nil:
		if synced.Status != order.Status {
			c.logger.Info("Order status synced", "order_number", order.Number, "from", order.Status, "to", synced.Status)
		}

	case errors.As(err, &apiErr) && apiErr.Kind == commerce.KindRateLimited:
		c.logger.Info("Rate limit exceeded, waiting", "retry_after", apiErr.RetryAfter)
		c.waitUntil.Store(time.Now().Add(apiErr.RetryAfter).UnixMilli())

	case commerce.IsKind(err, commerce.KindNotFound), errors.Is(err, apperrors.ErrOrderNotFound):
		c.logger.Warn("Order unknown, skipped", "order_number", order.Number)

	case errors.Is(err, context.Canceled):
		// shutting down

	default:
		c.logger.Error("Failed to sync order", "error", err, "order_number", order.Number)
	}
}
