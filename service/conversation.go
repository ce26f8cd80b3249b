package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"whisper-service/apperror"
	"whisper-service/event"
	"whisper-service/model"
	"whisper-service/store"
)

// ConversationManager owns the conversation aggregate: sends, reveals,
// per-participant read/mute/archive state and the pay-per-message gate
// on the unrevealed initiator.
type ConversationManager struct {
	stores  store.Stores
	gateway *MessagingGateway
	locks   *ConversationLocks
	logger  zerolog.Logger

	freeLimit    int
	messagePrice int64
	now          func() time.Time
}

func NewConversationManager(
	stores store.Stores,
	gateway *MessagingGateway,
	locks *ConversationLocks,
	logger zerolog.Logger,
	freeLimit int,
	messagePrice int64,
) *ConversationManager {
	return &ConversationManager{
		stores:       stores,
		gateway:      gateway,
		locks:        locks,
		logger:       logger,
		freeLimit:    freeLimit,
		messagePrice: messagePrice,
		now:          time.Now,
	}
}

type SendInput struct {
	ConversationID uint
	SenderID       uint
	Type           model.MessageType
	Content        string
	MediaURL       string
}

// Send durably writes a message and schedules fan-out. The whole
// check-then-act sequence runs under the conversation lock: two
// concurrent sends at the payment boundary resolve to exactly one
// success and one payment-required error.
func (m *ConversationManager) Send(ctx context.Context, in SendInput) (*model.Message, error) {
	if in.Content == "" && in.MediaURL == "" {
		return nil, apperror.Invalid("message content is required")
	}
	if in.Type == "" {
		in.Type = model.MessageText
	}
	if in.Type != model.MessageText && in.Type != model.MessageImage {
		return nil, apperror.Invalid("unsupported message type")
	}

	lock := m.locks.For(in.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, sender, recipient, err := m.load(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if conv.Status != model.ConversationActive {
		return nil, apperror.Forbidden("conversation is not active")
	}

	initiatorSide := conv.InitiatorSide()
	countedSend := sender.Role == model.RoleInitiator && !initiatorSide.IsRevealed
	if countedSend && model.NeedsToPay(conv.InitiatorMessageCount, conv.InitiatorPaidCycles, m.freeLimit, false) {
		return nil, apperror.PaymentRequired(apperror.PaymentDetails{
			ConversationID:   conv.ID,
			Price:            m.messagePrice,
			FreeMessageLimit: m.freeLimit,
			CurrentCount:     conv.InitiatorMessageCount,
			PaidCycles:       conv.InitiatorPaidCycles,
			AllowedMessages:  model.AllowedMessages(m.freeLimit, conv.InitiatorPaidCycles),
		})
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       sender.UserID,
		RecipientID:    recipient.UserID,
		Type:           in.Type,
		Content:        in.Content,
		MediaURL:       in.MediaURL,
		Status:         model.StatusSent,
	}
	if err := m.stores.Messages.CreateMessage(ctx, msg); err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "writing message", err)
	}

	conv.MessageCount++
	if countedSend {
		conv.InitiatorMessageCount++
	}
	recipient.UnreadCount++
	conv.LastMessagePreview = msg.Content
	conv.LastMessageAt = &msg.CreatedAt
	if err := m.stores.Conversations.SaveConversation(ctx, conv); err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "updating conversation", err)
	}

	// Fan-out is async and best-effort; the message is already durable.
	m.gateway.FanOutNewMessage(conv, msg, recipient.MutedAt(m.now()))
	return msg, nil
}

// RevealIdentity discloses the initiator's chosen profile fields.
// One-directional: revealing twice is a conflict, unrevealing is
// impossible.
func (m *ConversationManager) RevealIdentity(ctx context.Context, conversationID, userID uint, fields []string) (*model.Conversation, error) {
	lock := m.locks.For(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, side, other, err := m.load(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if side.Role != model.RoleInitiator {
		return nil, apperror.Forbidden("only the initiator can reveal their identity")
	}
	if side.IsRevealed {
		return nil, apperror.Conflict("identity already revealed")
	}

	now := m.now()
	model.ApplyReveal(side, joinFields(fields), now)
	conv.RecomputeAnonymity()
	if err := m.stores.Conversations.SaveConversation(ctx, conv); err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "saving reveal", err)
	}

	m.systemMessage(ctx, conv, side.UserID, other.UserID, model.MessageReveal, "identity revealed")
	m.gateway.Announce(conv, other.UserID, event.IdentityRevealed, map[string]any{
		"conversation_id": conv.ID,
		"user_id":         side.UserID,
		"fields":          fields,
	})
	return conv, nil
}

// RequestReveal lets the non-initiator nudge the hidden party. It may
// be repeated; each call refreshes the timestamp and re-notifies.
func (m *ConversationManager) RequestReveal(ctx context.Context, conversationID, userID uint) error {
	lock := m.locks.For(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, side, other, err := m.load(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if side.Role == model.RoleInitiator {
		return apperror.Forbidden("the initiator cannot request a reveal")
	}
	if other.IsRevealed {
		return apperror.Conflict("the other participant is already revealed")
	}

	now := m.now()
	conv.RevealRequestedBy = &side.UserID
	conv.RevealRequestedAt = &now
	if err := m.stores.Conversations.SaveConversation(ctx, conv); err != nil {
		return apperror.Wrap(apperror.CodeInternal, "saving reveal request", err)
	}

	m.systemMessage(ctx, conv, side.UserID, other.UserID, model.MessageSystem, "reveal requested")
	m.gateway.Announce(conv, other.UserID, event.RevealRequested, map[string]any{
		"conversation_id": conv.ID,
		"requested_by":    side.UserID,
	})
	return nil
}

// MarkAsRead clears the caller's unread counter and advances message
// statuses to read.
func (m *ConversationManager) MarkAsRead(ctx context.Context, conversationID, userID uint) error {
	lock := m.locks.For(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, side, _, err := m.load(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	now := m.now()
	side.LastReadAt = &now
	side.UnreadCount = 0
	if err := m.stores.Conversations.SaveConversation(ctx, conv); err != nil {
		return apperror.Wrap(apperror.CodeInternal, "saving read state", err)
	}

	if err := m.gateway.AckRead(ctx, conversationID, userID, nil); err != nil {
		m.logger.Warn().Err(err).Uint("conversation_id", conversationID).Msg("read ack failed")
	}
	return nil
}

// Mute silences notifications for the caller only. Zero duration means
// indefinitely.
func (m *ConversationManager) Mute(ctx context.Context, conversationID, userID uint, duration time.Duration) error {
	return m.updateSide(ctx, conversationID, userID, func(p *model.Participant) {
		p.IsMuted = true
		p.MutedUntil = nil
		if duration > 0 {
			until := m.now().Add(duration)
			p.MutedUntil = &until
		}
	})
}

func (m *ConversationManager) Unmute(ctx context.Context, conversationID, userID uint) error {
	return m.updateSide(ctx, conversationID, userID, func(p *model.Participant) {
		p.IsMuted = false
		p.MutedUntil = nil
	})
}

func (m *ConversationManager) Archive(ctx context.Context, conversationID, userID uint) error {
	return m.updateSide(ctx, conversationID, userID, func(p *model.Participant) { p.IsArchived = true })
}

func (m *ConversationManager) Unarchive(ctx context.Context, conversationID, userID uint) error {
	return m.updateSide(ctx, conversationID, userID, func(p *model.Participant) { p.IsArchived = false })
}

func (m *ConversationManager) Get(ctx context.Context, conversationID, userID uint) (*model.Conversation, error) {
	conv, _, _, err := m.load(ctx, conversationID, userID)
	return conv, err
}

func (m *ConversationManager) List(ctx context.Context, userID uint) ([]model.Conversation, error) {
	convs, err := m.stores.Conversations.ListConversations(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "listing conversations", err)
	}
	return convs, nil
}

// GetMessages pages a conversation in insertion order, hiding rows
// soft-deleted for the caller.
func (m *ConversationManager) GetMessages(ctx context.Context, conversationID, userID uint, beforeID uint, limit int) ([]model.Message, error) {
	if _, _, _, err := m.load(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	msgs, err := m.stores.Messages.ListMessages(ctx, conversationID, beforeID, limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "listing messages", err)
	}

	visible := msgs[:0]
	for _, msg := range msgs {
		if msg.VisibleTo(userID) {
			visible = append(visible, msg)
		}
	}
	return visible, nil
}

// MessageStatus reports where the initiator stands against the payment
// gate. The PaymentGate's reconcile hook runs first so a settlement
// that only reached us through a dropped webhook is still credited.
type MessageStatus struct {
	ConversationID   uint  `json:"conversation_id"`
	NeedsToPay       bool  `json:"needs_to_pay"`
	Price            int64 `json:"price"`
	FreeMessageLimit int   `json:"free_message_limit"`
	CurrentCount     int   `json:"current_count"`
	PaidCycles       int   `json:"paid_cycles"`
	AllowedMessages  int   `json:"allowed_messages"`
}

func (m *ConversationManager) Status(ctx context.Context, conversationID, userID uint, gate *PaymentGate) (*MessageStatus, error) {
	if gate != nil {
		gate.Reconcile(ctx, conversationID)
	}

	conv, _, _, err := m.load(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	initiatorSide := conv.InitiatorSide()
	return &MessageStatus{
		ConversationID:   conv.ID,
		NeedsToPay:       model.NeedsToPay(conv.InitiatorMessageCount, conv.InitiatorPaidCycles, m.freeLimit, initiatorSide.IsRevealed),
		Price:            m.messagePrice,
		FreeMessageLimit: m.freeLimit,
		CurrentCount:     conv.InitiatorMessageCount,
		PaidCycles:       conv.InitiatorPaidCycles,
		AllowedMessages:  model.AllowedMessages(m.freeLimit, conv.InitiatorPaidCycles),
	}, nil
}

func (m *ConversationManager) updateSide(ctx context.Context, conversationID, userID uint, mutate func(*model.Participant)) error {
	lock := m.locks.For(conversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, side, _, err := m.load(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	mutate(side)
	if err := m.stores.Conversations.SaveConversation(ctx, conv); err != nil {
		return apperror.Wrap(apperror.CodeInternal, "saving participant state", err)
	}
	return nil
}

// load fetches the aggregate and resolves the caller's side and the
// counterpart, enforcing membership.
func (m *ConversationManager) load(ctx context.Context, conversationID, userID uint) (*model.Conversation, *model.Participant, *model.Participant, error) {
	conv, err := m.stores.Conversations.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil, apperror.NotFound("conversation not found")
		}
		return nil, nil, nil, apperror.Wrap(apperror.CodeInternal, "loading conversation", err)
	}
	side := conv.Side(userID)
	if side == nil {
		return nil, nil, nil, apperror.Forbidden("not a participant of this conversation")
	}
	return conv, side, conv.Other(userID), nil
}

func (m *ConversationManager) systemMessage(ctx context.Context, conv *model.Conversation, from, to uint, typ model.MessageType, content string) {
	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       from,
		RecipientID:    to,
		Type:           typ,
		Content:        content,
		Status:         model.StatusSent,
	}
	if err := m.stores.Messages.CreateMessage(ctx, msg); err != nil {
		m.logger.Warn().Err(err).Uint("conversation_id", conv.ID).Msg("system message write failed")
	}
}

func joinFields(fields []string) string {
	return strings.Join(fields, ",")
}
