package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"whisper-service/apperror"
	"whisper-service/event"
	"whisper-service/model"
	"whisper-service/notify"
	"whisper-service/store"
)

// MessagingGateway is the delivery pipeline: durable writes happen
// before it is involved, it only fans out events, advances delivery
// statuses, and handles reactions/edits/deletes.
type MessagingGateway struct {
	stores     store.Stores
	bus        event.Bus
	dispatcher notify.Dispatcher
	logger     zerolog.Logger

	editWindow   time.Duration
	deleteWindow time.Duration
	now          func() time.Time
}

func NewMessagingGateway(
	stores store.Stores,
	bus event.Bus,
	dispatcher notify.Dispatcher,
	logger zerolog.Logger,
	editWindow, deleteWindow time.Duration,
) *MessagingGateway {
	return &MessagingGateway{
		stores:       stores,
		bus:          bus,
		dispatcher:   dispatcher,
		logger:       logger,
		editWindow:   editWindow,
		deleteWindow: deleteWindow,
		now:          time.Now,
	}
}

// FanOutNewMessage publishes a durably-written message to the
// conversation room and the recipient's personal room, and fires the
// push dispatch unless the recipient muted the conversation. It runs
// on its own goroutine: the message is already committed, so a slow
// socket layer or push provider must never hold up the send path or
// the conversation lock the caller is holding.
func (g *MessagingGateway) FanOutNewMessage(conv *model.Conversation, msg *model.Message, recipientMuted bool) {
	go g.fanOut(conv, msg, recipientMuted)
}

func (g *MessagingGateway) fanOut(conv *model.Conversation, msg *model.Message, recipientMuted bool) {
	env := event.NewEnvelope(event.NewMessage, msg)
	g.bus.Publish(event.ConversationRoom(conv.ID), env)
	if err := g.bus.Publish(event.UserRoom(msg.RecipientID), env); err != nil {
		g.logger.Warn().Err(err).Uint("message_id", msg.ID).Msg("recipient fan-out failed")
		g.markFailed(msg.ID)
	}

	if !recipientMuted {
		g.dispatcher.Notify([]uint{msg.RecipientID}, event.NewMessage, map[string]any{
			"conversation_id": conv.ID,
			"message_id":      msg.ID,
			"anonymous":       conv.IsAnonymous,
		})
	}
}

// markFailed downgrades a message the socket layer could not hand to
// the recipient. Only a message still at sent moves; a delivered or
// read ack that slipped in first wins.
func (g *MessagingGateway) markFailed(messageID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := g.stores.Messages.GetMessage(ctx, messageID)
	if err != nil {
		g.logger.Warn().Err(err).Uint("message_id", messageID).Msg("loading message for failure mark")
		return
	}
	if msg.Status != model.StatusSent {
		return
	}
	msg.Status = model.StatusFailed
	if err := g.stores.Messages.SaveMessage(ctx, msg); err != nil {
		g.logger.Warn().Err(err).Uint("message_id", messageID).Msg("marking message failed")
	}
}

// Announce publishes a conversation-scoped event to the room and to
// the counterpart's personal room, plus a push.
func (g *MessagingGateway) Announce(conv *model.Conversation, counterpartID uint, name string, payload any) {
	env := event.NewEnvelope(name, payload)
	g.bus.Publish(event.ConversationRoom(conv.ID), env)
	g.bus.Publish(event.UserRoom(counterpartID), env)
	g.dispatcher.Notify([]uint{counterpartID}, name, payload)
}

// AckDelivered applies a batched delivered acknowledgement for the
// given recipient. Only messages still at sent move; the transition is
// monotonic and never regresses.
func (g *MessagingGateway) AckDelivered(ctx context.Context, conversationID, recipientID uint, ids []uint) error {
	return g.advance(ctx, conversationID, recipientID, ids, model.StatusDelivered, event.MessagesDelivered)
}

// AckRead applies a batched read acknowledgement. A nil ids slice
// means every eligible message in the conversation.
func (g *MessagingGateway) AckRead(ctx context.Context, conversationID, recipientID uint, ids []uint) error {
	return g.advance(ctx, conversationID, recipientID, ids, model.StatusRead, event.MessagesRead)
}

func (g *MessagingGateway) advance(ctx context.Context, conversationID, recipientID uint, ids []uint, target model.DeliveryStatus, name string) error {
	affected, err := g.stores.Messages.AdvanceStatus(ctx, conversationID, recipientID, ids, target, g.now())
	if err != nil {
		return apperror.Wrap(apperror.CodeInternal, "advancing delivery status", err)
	}
	if len(affected) == 0 {
		return nil
	}
	g.bus.Publish(event.ConversationRoom(conversationID), event.NewEnvelope(name, map[string]any{
		"conversation_id": conversationID,
		"message_ids":     affected,
		"by":              recipientID,
	}))
	return nil
}

// React sets the caller's single reaction on a message; re-reacting
// replaces the previous emoji.
func (g *MessagingGateway) React(ctx context.Context, messageID, userID uint, emoji string) error {
	if emoji == "" {
		return apperror.Invalid("emoji is required")
	}
	msg, err := g.message(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if err := g.stores.Messages.SetReaction(ctx, messageID, userID, emoji); err != nil {
		return apperror.Wrap(apperror.CodeInternal, "saving reaction", err)
	}
	g.bus.Publish(event.ConversationRoom(msg.ConversationID), event.NewEnvelope(event.MessageReaction, map[string]any{
		"message_id": messageID,
		"user_id":    userID,
		"emoji":      emoji,
	}))
	return nil
}

// Edit rewrites a message within the edit window, keeping the original
// content from the first edit.
func (g *MessagingGateway) Edit(ctx context.Context, messageID, userID uint, content string) (*model.Message, error) {
	if content == "" {
		return nil, apperror.Invalid("content is required")
	}
	msg, err := g.message(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	if !msg.Editable(userID, now, g.editWindow) {
		return nil, apperror.Forbidden("message can no longer be edited")
	}
	if msg.EditedAt == nil {
		msg.OriginalContent = msg.Content
	}
	msg.Content = content
	msg.EditedAt = &now
	if err := g.stores.Messages.SaveMessage(ctx, msg); err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "saving edit", err)
	}
	g.bus.Publish(event.ConversationRoom(msg.ConversationID), event.NewEnvelope(event.MessageEdited, msg))
	return msg, nil
}

// Delete soft-deletes for the caller, or for everyone when requested
// (sender-only, time-boxed). Rows are never physically removed.
func (g *MessagingGateway) Delete(ctx context.Context, messageID, userID uint, forEveryone bool) error {
	msg, err := g.message(ctx, messageID, userID)
	if err != nil {
		return err
	}

	now := g.now()
	if forEveryone {
		if !msg.DeletableForEveryone(userID, now, g.deleteWindow) {
			return apperror.Forbidden("message can no longer be deleted for everyone")
		}
		msg.DeletedForEveryoneAt = &now
	} else if userID == msg.SenderID {
		msg.DeletedBySender = true
	} else {
		msg.DeletedByRecipient = true
	}
	if err := g.stores.Messages.SaveMessage(ctx, msg); err != nil {
		return apperror.Wrap(apperror.CodeInternal, "saving delete", err)
	}

	if forEveryone {
		g.bus.Publish(event.ConversationRoom(msg.ConversationID), event.NewEnvelope(event.MessageDeleted, map[string]any{
			"message_id": messageID,
		}))
	}
	return nil
}

func (g *MessagingGateway) message(ctx context.Context, messageID, userID uint) (*model.Message, error) {
	msg, err := g.stores.Messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NotFound("message not found")
		}
		return nil, apperror.Wrap(apperror.CodeInternal, "loading message", err)
	}
	if userID != msg.SenderID && userID != msg.RecipientID {
		return nil, apperror.Forbidden("not a participant of this message")
	}
	return msg, nil
}
