package order

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nkiryanov/storefront/internal/apperrors"
	"github.com/nkiryanov/storefront/internal/models"
)

// Callback is what the payment gateway reports when it redirects the customer back
type Callback struct {
	Status        string
	TxRef         string
	TransactionID string
}

// ParseCallback reads status, tx_ref and transaction_id query parameters
// All three are required
func ParseCallback(q url.Values) (Callback, error) {
	cb := Callback{
		Status:        strings.TrimSpace(q.Get("status")),
		TxRef:         strings.TrimSpace(q.Get("tx_ref")),
		TransactionID: strings.TrimSpace(q.Get("transaction_id")),
	}
	if err := cb.validate(); err != nil {
		return Callback{}, err
	}
	return cb, nil
}

func (c Callback) Successful() bool {
	return strings.EqualFold(c.Status, models.GatewayStatusSuccessful)
}

func (c Callback) validate() error {
	var missing []string
	if c.Status == "" {
		missing = append(missing, "status")
	}
	if c.TxRef == "" {
		missing = append(missing, "tx_ref")
	}
	if c.TransactionID == "" {
		missing = append(missing, "transaction_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", apperrors.ErrInvalidCallback, strings.Join(missing, ", "))
	}
	return nil
}
