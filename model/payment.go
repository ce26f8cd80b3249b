package model

import (
	"time"

	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderCreated OrderStatus = "created"
	OrderPaid    OrderStatus = "paid"
	OrderFailed  OrderStatus = "failed"
)

// PaymentOrder mirrors one provider order minted to unlock a message
// cycle. ProviderOrderID is the idempotency key shared by the
// synchronous verify path and the asynchronous webhook path.
type PaymentOrder struct {
	gorm.Model
	ConversationID  uint        `gorm:"not null;index" json:"conversation_id"`
	UserID          uint        `gorm:"not null;index" json:"user_id"`
	ProviderOrderID string      `gorm:"uniqueIndex;not null" json:"provider_order_id"`
	Receipt         string      `gorm:"not null" json:"receipt"`
	Amount          int64       `gorm:"not null" json:"amount"`
	Currency        string      `gorm:"not null" json:"currency"`
	Status          OrderStatus `gorm:"not null;default:'created'" json:"status"`
	PaymentID       string      `gorm:"index" json:"payment_id"`
	AppliedAt       *time.Time  `json:"applied_at"`
}

func (o *PaymentOrder) Applied() bool { return o.Status == OrderPaid && o.AppliedAt != nil }
