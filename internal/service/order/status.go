package order

import (
	"github.com/nkiryanov/storefront/internal/models"
)

// Fulfillment progress; payment_failed sits next to pending
var statusRank = map[models.OrderStatus]int{
	models.OrderStatusPending:       0,
	models.OrderStatusPaymentFailed: 0,
	models.OrderStatusProcessing:    1,
	models.OrderStatusShipped:       2,
	models.OrderStatusDelivered:     3,
}

// MergeStatus combines local status with one reported by the commerce API.
// Status only moves forward. Cancelled is accepted while the order is still cancellable,
// payment_failed only from pending. Terminal statuses never change.
func MergeStatus(current models.OrderStatus, remote models.OrderStatus) models.OrderStatus {
	if current.IsTerminal() {
		return current
	}

	switch remote {
	case models.OrderStatusCancelled:
		if current.IsCancellable() {
			return remote
		}
		return current
	case models.OrderStatusPaymentFailed:
		if current == models.OrderStatusPending {
			return remote
		}
		return current
	}

	remoteRank, known := statusRank[remote]
	if !known {
		return current
	}
	if remoteRank > statusRank[current] {
		return remote
	}
	return current
}
