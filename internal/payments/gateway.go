package payments

import (
	"context"
	"errors"
)

// ErrGatewayUnavailable is returned when the gateway cannot be reached or times out.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// OrderRequest describes an order to create at the gateway.
type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string // idempotency key; the gateway returns the same order for a repeated receipt
	Notes       map[string]string
}

// Order is a gateway order awaiting client-side payment.
type Order struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// Gateway is the payment provider used by the registration pipeline.
type Gateway interface {
	// CreateOrder creates an order for amountMinor in the smallest currency unit.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// VerifySignature checks the callback signature for an order/payment pair.
	VerifySignature(orderID, paymentID, signature string) bool
	// Refund refunds amountMinor of a captured payment and returns the refund id.
	Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error)
}
