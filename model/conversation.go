package model

import (
	"time"

	"gorm.io/gorm"
)

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationBlocked  ConversationStatus = "blocked"
	ConversationDeleted  ConversationStatus = "deleted"
	ConversationReported ConversationStatus = "reported"
)

type ParticipantRole string

const (
	RoleInitiator ParticipantRole = "initiator"
	RoleRecipient ParticipantRole = "recipient"
)

// Conversation is the two-party aggregate created when a request is
// accepted. It is never hard-deleted; Status models removal.
type Conversation struct {
	gorm.Model
	RequestID   uint               `gorm:"not null;uniqueIndex" json:"request_id"`
	InitiatorID uint               `gorm:"not null;index" json:"initiator_id"`
	RecipientID uint               `gorm:"not null;index" json:"recipient_id"`
	Status      ConversationStatus `gorm:"not null;default:'active'" json:"status"`

	// IsAnonymous is derived: false only once both sides have revealed.
	IsAnonymous bool `gorm:"not null;default:true" json:"is_anonymous"`

	// InitiatorMessageCount counts messages the initiator sent while
	// still unrevealed. It never decreases and never resets.
	InitiatorMessageCount int `gorm:"not null;default:0" json:"initiator_message_count"`
	InitiatorPaidCycles   int `gorm:"not null;default:0" json:"initiator_paid_cycles"`

	// Last applied payment, the idempotency anchor for re-applies.
	LastOrderID   string     `json:"last_order_id"`
	LastPaymentID string     `gorm:"index" json:"last_payment_id"`
	LastPaidAt    *time.Time `json:"last_paid_at"`

	MessageCount       int        `gorm:"not null;default:0" json:"message_count"`
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at"`

	RevealRequestedBy *uint      `json:"reveal_requested_by"`
	RevealRequestedAt *time.Time `json:"reveal_requested_at"`

	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants"`
}

// Participant is one side's state. A conversation always carries
// exactly two rows, one per role.
type Participant struct {
	gorm.Model
	ConversationID uint            `gorm:"not null;uniqueIndex:idx_conv_user" json:"conversation_id"`
	UserID         uint            `gorm:"not null;uniqueIndex:idx_conv_user" json:"user_id"`
	Role           ParticipantRole `gorm:"not null" json:"role"`

	IsRevealed     bool       `gorm:"not null;default:false" json:"is_revealed"`
	RevealedAt     *time.Time `json:"revealed_at"`
	RevealedFields string     `json:"revealed_fields"`

	IsMuted    bool       `gorm:"not null;default:false" json:"is_muted"`
	MutedUntil *time.Time `json:"muted_until"`
	IsArchived bool       `gorm:"not null;default:false" json:"is_archived"`

	LastReadAt  *time.Time `json:"last_read_at"`
	UnreadCount int        `gorm:"not null;default:0" json:"unread_count"`
}

// Side resolves the participant row belonging to userID.
func (c *Conversation) Side(userID uint) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Other resolves the counterpart of userID.
func (c *Conversation) Other(userID uint) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			return &c.Participants[i]
		}
	}
	return nil
}

func (c *Conversation) InitiatorSide() *Participant { return c.Side(c.InitiatorID) }

func (c *Conversation) HasParticipant(userID uint) bool { return c.Side(userID) != nil }

// RecomputeAnonymity derives IsAnonymous from the two reveal flags.
func (c *Conversation) RecomputeAnonymity() {
	revealed := true
	for i := range c.Participants {
		revealed = revealed && c.Participants[i].IsRevealed
	}
	c.IsAnonymous = !revealed
}

// AllowedMessages is the cumulative ceiling the initiator may reach
// while unrevealed: one free window plus one per paid cycle. The
// ceiling grows, it does not reset per cycle.
func AllowedMessages(limit, paidCycles int) int {
	return limit * (paidCycles + 1)
}

// NeedsToPay reports whether the next unrevealed-initiator send must be
// preceded by a payment.
func NeedsToPay(count, paidCycles, limit int, initiatorRevealed bool) bool {
	if initiatorRevealed {
		return false
	}
	return count >= AllowedMessages(limit, paidCycles)
}

// ApplyReveal marks a participant revealed. Reveal is one-directional:
// applying it twice is a conflict handled by the caller.
func ApplyReveal(p *Participant, fields string, at time.Time) {
	p.IsRevealed = true
	p.RevealedAt = &at
	p.RevealedFields = fields
}

// MutedAt reports whether the participant is muted at the given time,
// honouring a temporary MutedUntil window.
func (p *Participant) MutedAt(now time.Time) bool {
	if !p.IsMuted {
		return false
	}
	if p.MutedUntil != nil && now.After(*p.MutedUntil) {
		return false
	}
	return true
}
