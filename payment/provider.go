// Package payment wraps the external payment provider behind a small
// interface: mint an order, verify a settlement signature, fetch a
// payment, refund.
package payment

import "context"

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type PaymentStatus string

const (
	PaymentCaptured PaymentStatus = "captured"
	PaymentFailed   PaymentStatus = "failed"
	PaymentPending  PaymentStatus = "pending"
)

type Payment struct {
	ID      string        `json:"id"`
	OrderID string        `json:"order_id"`
	Status  PaymentStatus `json:"status"`
	Amount  int64         `json:"amount"`
}

type Provider interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)
	// VerifySignature checks the HMAC the provider hands the client on
	// settlement.
	VerifySignature(orderID, paymentID, signature string) bool
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	Refund(ctx context.Context, paymentID string, amount int64) error
}
