// Package event defines the real-time fan-out surface. Components
// publish through the Bus interface so the socket.io server can be
// swapped for a recorder in tests.
package event

import (
	"fmt"

	"github.com/google/uuid"
)

// Event names delivered to clients. At-least-once; clients deduplicate
// by envelope id.
const (
	NewMessage        = "new_message"
	MessagesDelivered = "messages_delivered"
	MessagesRead      = "messages_read"
	MessageReaction   = "message_reaction"
	MessageEdited     = "message_edited"
	MessageDeleted    = "message_deleted"
	RevealRequested   = "reveal_requested"
	IdentityRevealed  = "identity_revealed"
	UserTyping        = "user_typing"
	UserStoppedTyping = "user_stopped_typing"
	UserOffline       = "user_offline"
	RequestAccepted   = "request_accepted"
	NewRequest        = "new_request"
)

// Envelope wraps every published payload with a unique id clients can
// deduplicate on.
type Envelope struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func NewEnvelope(name string, data any) Envelope {
	return Envelope{ID: uuid.NewString(), Event: name, Data: data}
}

// Bus fans envelopes out to a room. Publishing is best-effort; a
// non-nil error means the room never saw the envelope, so callers can
// degrade (e.g. mark a message failed) without retrying.
type Bus interface {
	Publish(room string, env Envelope) error
}

func UserRoom(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

func ConversationRoom(conversationID uint) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}
