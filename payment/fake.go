package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Fake is an in-process Provider for tests. Orders are minted locally
// and payments settle via Settle.
type Fake struct {
	mu        sync.Mutex
	secret    string
	nextOrder int
	nextPay   int
	orders    map[string]*Order
	payments  map[string]*Payment
	Refunds   []string
}

func NewFake(secret string) *Fake {
	return &Fake{
		secret:   secret,
		orders:   make(map[string]*Order),
		payments: make(map[string]*Payment),
	}
}

func (f *Fake) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOrder++
	order := &Order{
		ID:       fmt.Sprintf("order_fake%03d", f.nextOrder),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
	}
	f.orders[order.ID] = order
	return order, nil
}

// Settle marks an order paid and returns the payment id plus a valid
// signature for it.
func (f *Fake) Settle(orderID string) (paymentID, signature string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := f.orders[orderID]
	f.nextPay++
	paymentID = fmt.Sprintf("pay_fake%03d", f.nextPay)
	f.payments[paymentID] = &Payment{
		ID:      paymentID,
		OrderID: orderID,
		Status:  PaymentCaptured,
		Amount:  order.Amount,
	}
	return paymentID, f.sign(orderID, paymentID)
}

func (f *Fake) sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(f.secret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)
	return hex.EncodeToString(mac.Sum(nil))
}

func (f *Fake) VerifySignature(orderID, paymentID, signature string) bool {
	return hmac.Equal([]byte(f.sign(orderID, paymentID)), []byte(signature))
}

func (f *Fake) FetchPayment(_ context.Context, paymentID string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", paymentID)
	}
	return p, nil
}

func (f *Fake) Refund(_ context.Context, paymentID string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Refunds = append(f.Refunds, paymentID)
	return nil
}
