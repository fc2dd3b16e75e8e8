package order

import (
	"context"

	"github.com/nkiryanov/storefront/internal/logger"
	"github.com/nkiryanov/storefront/internal/models"
)

type Event string

const (
	EventPaymentConfirmed Event = "payment_confirmed"
	EventPaymentFailed    Event = "payment_failed"
	EventCancelled        Event = "cancelled"
	EventStatusSynced     Event = "status_synced"
)

// Notifier is told once about every applied order transition
type Notifier interface {
	OrderChanged(ctx context.Context, event Event, order models.Order)
}

type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(l logger.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) OrderChanged(_ context.Context, event Event, o models.Order) {
	n.logger.Info("Order changed",
		"event", event,
		"order_number", o.Number,
		"status", o.Status,
		"payment_status", o.PaymentStatus,
	)
}
