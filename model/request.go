package model

import (
	"time"

	"gorm.io/gorm"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
	RequestExpired   RequestStatus = "expired"
)

// MessageRequest is the opening move of a conversation: the sender asks
// the recipient to talk, optionally without disclosing who they are.
type MessageRequest struct {
	gorm.Model
	SenderID       uint          `gorm:"not null;index" json:"sender_id"`
	RecipientID    uint          `gorm:"not null;index" json:"recipient_id"`
	InitialMessage string        `gorm:"not null" json:"initial_message"`
	Status         RequestStatus `gorm:"not null;default:'pending';index" json:"status"`
	IsAnonymous    bool          `gorm:"not null;default:false" json:"is_anonymous"`
	Source         string        `json:"source"`
	ExpiresAt      time.Time     `gorm:"not null;index" json:"expires_at"`
	ConversationID *uint         `json:"conversation_id"`
}

// Active requests (pending or accepted) block a second request between
// the same pair, regardless of direction.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestAccepted
}

// Terminal statuses admit no further transition.
func (s RequestStatus) Terminal() bool {
	return s == RequestRejected || s == RequestCancelled || s == RequestExpired
}

func (r *MessageRequest) LapsedAt(now time.Time) bool {
	return r.Status == RequestPending && now.After(r.ExpiresAt)
}

// RequestPack is a purchased bundle of extra request sends beyond the
// free daily allowance, consumed oldest-expiring first.
type RequestPack struct {
	gorm.Model
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Total     int       `gorm:"not null" json:"total"`
	Remaining int       `gorm:"not null" json:"remaining"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

func (p *RequestPack) Usable(now time.Time) bool {
	return p.Remaining > 0 && now.Before(p.ExpiresAt)
}
