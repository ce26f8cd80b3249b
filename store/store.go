// Package store declares the persistence interfaces the services
// depend on. The postgres subpackage backs them with GORM; the memory
// subpackage backs them with maps for tests.
package store

import (
	"context"
	"errors"
	"time"

	"whisper-service/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate reports a uniqueness violation, e.g. a second
	// active request for the same user pair.
	ErrDuplicate = errors.New("duplicate record")
)

type UserStore interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)
	// BlockedEither reports whether either user blocks the other.
	BlockedEither(ctx context.Context, a, b uint) (bool, error)
}

type RequestStore interface {
	// CreateRequest fails with ErrDuplicate when a pending or accepted
	// request already exists between the pair, regardless of direction.
	CreateRequest(ctx context.Context, r *model.MessageRequest) error
	GetRequest(ctx context.Context, id uint) (*model.MessageRequest, error)
	// FindActiveBetween looks up a pending or accepted request between
	// the unordered pair. Returns (nil, nil) when there is none.
	FindActiveBetween(ctx context.Context, a, b uint) (*model.MessageRequest, error)
	// TransitionRequest flips status only when the row still holds
	// from; reports whether a row was changed.
	TransitionRequest(ctx context.Context, id uint, from, to model.RequestStatus) (bool, error)
	// AcceptRequest atomically moves a still-pending request to
	// accepted and links its conversation in the same write; reports
	// whether a row was changed.
	AcceptRequest(ctx context.Context, requestID, conversationID uint) (bool, error)
	ListInbox(ctx context.Context, recipientID uint) ([]model.MessageRequest, error)
	ListOutbox(ctx context.Context, senderID uint) ([]model.MessageRequest, error)
	// ExpirePending transitions every pending request whose deadline
	// passed. Guarded by current status so concurrent sweeps are safe.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type ConversationStore interface {
	// CreateConversation persists the aggregate with both participant
	// rows and the opening message in one transaction.
	CreateConversation(ctx context.Context, c *model.Conversation, first *model.Message) error
	GetConversation(ctx context.Context, id uint) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID uint) ([]model.Conversation, error)
	SaveConversation(ctx context.Context, c *model.Conversation) error
	SaveParticipant(ctx context.Context, p *model.Participant) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id uint) (*model.Message, error)
	// ListMessages returns messages in insertion order (ascending id),
	// optionally only those before beforeID, up to limit.
	ListMessages(ctx context.Context, conversationID uint, beforeID uint, limit int) ([]model.Message, error)
	SaveMessage(ctx context.Context, m *model.Message) error
	// AdvanceStatus moves messages addressed to recipientID up to
	// target, touching only rows still below it. Returns affected ids.
	AdvanceStatus(ctx context.Context, conversationID, recipientID uint, ids []uint, target model.DeliveryStatus, at time.Time) ([]uint, error)
	// SetReaction upserts the single (message, user) reaction slot.
	SetReaction(ctx context.Context, messageID, userID uint, emoji string) error
}

type PaymentStore interface {
	CreateOrder(ctx context.Context, o *model.PaymentOrder) error
	GetOrderByProviderID(ctx context.Context, providerOrderID string) (*model.PaymentOrder, error)
	ListOpenOrders(ctx context.Context, conversationID uint) ([]model.PaymentOrder, error)
	SaveOrder(ctx context.Context, o *model.PaymentOrder) error
}

type PackStore interface {
	CreatePack(ctx context.Context, p *model.RequestPack) error
	ListPacks(ctx context.Context, userID uint) ([]model.RequestPack, error)
	// ListUsablePacks returns non-empty, non-expired packs ordered by
	// earliest expiry first (FIFO consumption order).
	ListUsablePacks(ctx context.Context, userID uint, now time.Time) ([]model.RequestPack, error)
	// ConsumePack decrements Remaining if still positive; reports
	// whether a unit was taken.
	ConsumePack(ctx context.Context, packID uint) (bool, error)
	// RefundPack hands a consumed unit back after a failed send.
	RefundPack(ctx context.Context, packID uint) error
}

// Quota is the daily request counter. Consume must be atomic with
// respect to the UTC day boundary so concurrent sends never over-count.
type Quota interface {
	// Consume increments today's counter and returns the new value.
	Consume(ctx context.Context, userID uint, now time.Time) (int, error)
	// Release undoes one Consume when the request was not created.
	Release(ctx context.Context, userID uint, now time.Time) error
}

// Stores bundles everything a service constructor needs.
type Stores struct {
	Users         UserStore
	Requests      RequestStore
	Conversations ConversationStore
	Messages      MessageStore
	Payments      PaymentStore
	Packs         PackStore
}
