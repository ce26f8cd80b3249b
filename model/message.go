package model

import (
	"time"

	"gorm.io/gorm"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageReveal MessageType = "reveal"
	MessageSystem MessageType = "system"
)

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// deliveryRank orders the monotonic sent -> delivered -> read machine.
// Failed shares the sent rank: an acknowledgement from the recipient
// proves receipt and recovers the message.
var deliveryRank = map[DeliveryStatus]int{
	StatusSent:      0,
	StatusFailed:    0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// Before reports whether s precedes target in the delivery machine.
func (s DeliveryStatus) Before(target DeliveryStatus) bool {
	sr, ok := deliveryRank[s]
	tr, tok := deliveryRank[target]
	return ok && tok && sr < tr
}

type Message struct {
	gorm.Model
	ConversationID uint           `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint           `gorm:"not null;index" json:"sender_id"`
	RecipientID    uint           `gorm:"not null;index" json:"recipient_id"`
	Type           MessageType    `gorm:"not null;default:'text'" json:"type"`
	Content        string         `json:"content"`
	MediaURL       string         `json:"media_url"`
	Status         DeliveryStatus `gorm:"not null;default:'sent';index" json:"status"`
	DeliveredAt    *time.Time     `json:"delivered_at"`
	ReadAt         *time.Time     `json:"read_at"`

	// Single-slot edit history: the original is kept on first edit.
	EditedAt        *time.Time `json:"edited_at"`
	OriginalContent string     `json:"original_content,omitempty"`

	// Soft deletion. Rows are never physically removed.
	DeletedBySender      bool       `gorm:"not null;default:false" json:"deleted_by_sender"`
	DeletedByRecipient   bool       `gorm:"not null;default:false" json:"deleted_by_recipient"`
	DeletedForEveryoneAt *time.Time `json:"deleted_for_everyone_at"`

	Reactions []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions"`
}

// MessageReaction holds at most one reaction per (message, user);
// re-reacting replaces the previous emoji.
type MessageReaction struct {
	gorm.Model
	MessageID uint   `gorm:"not null;uniqueIndex:idx_msg_user" json:"message_id"`
	UserID    uint   `gorm:"not null;uniqueIndex:idx_msg_user" json:"user_id"`
	Emoji     string `gorm:"not null" json:"emoji"`
}

// VisibleTo reports whether userID still sees the message after
// per-user and for-everyone soft deletes.
func (m *Message) VisibleTo(userID uint) bool {
	if m.DeletedForEveryoneAt != nil {
		return false
	}
	if userID == m.SenderID && m.DeletedBySender {
		return false
	}
	if userID == m.RecipientID && m.DeletedByRecipient {
		return false
	}
	return true
}

// Editable reports whether the sender may still edit the message.
func (m *Message) Editable(by uint, now time.Time, window time.Duration) bool {
	if by != m.SenderID || m.Type == MessageSystem || m.Type == MessageReveal {
		return false
	}
	if m.DeletedForEveryoneAt != nil {
		return false
	}
	return now.Sub(m.CreatedAt) <= window
}

// DeletableForEveryone is time-boxed the same way and sender-only.
func (m *Message) DeletableForEveryone(by uint, now time.Time, window time.Duration) bool {
	return by == m.SenderID && now.Sub(m.CreatedAt) <= window
}
