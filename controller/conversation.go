package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"whisper-service/apperror"
	"whisper-service/middleware"
	"whisper-service/model"
	"whisper-service/service"
)

// ConversationSummary is the list item: the full aggregate trimmed to
// what the inbox screen renders.
type ConversationSummary struct {
	ID                 uint       `json:"id"`
	Status             string     `json:"status"`
	IsAnonymous        bool       `json:"is_anonymous"`
	OtherUserID        uint       `json:"other_user_id"`
	OtherRevealed      bool       `json:"other_revealed"`
	UnreadCount        int        `json:"unread_count"`
	IsMuted            bool       `json:"is_muted"`
	IsArchived         bool       `json:"is_archived"`
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at"`
}

func summarize(conv model.Conversation, userID uint) ConversationSummary {
	side := conv.Side(userID)
	other := conv.Other(userID)
	return ConversationSummary{
		ID:                 conv.ID,
		Status:             string(conv.Status),
		IsAnonymous:        conv.IsAnonymous,
		OtherUserID:        other.UserID,
		OtherRevealed:      other.IsRevealed,
		UnreadCount:        side.UnreadCount,
		IsMuted:            side.IsMuted,
		IsArchived:         side.IsArchived,
		LastMessagePreview: conv.LastMessagePreview,
		LastMessageAt:      conv.LastMessageAt,
	}
}

func (ct *Controller) ListConversations(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	conversations, err := ct.manager.List(c.Context(), userID)
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, lo.Map(conversations, func(conv model.Conversation, _ int) ConversationSummary {
		return summarize(conv, userID)
	}))
}

func (ct *Controller) GetConversation(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	conv, err := ct.manager.Get(c.Context(), id, middleware.UserID(c))
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, conv)
}

func (ct *Controller) GetMessages(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	beforeID := uint(c.QueryInt("before", 0))
	limit := c.QueryInt("limit", 50)

	msgs, err := ct.manager.GetMessages(c.Context(), id, middleware.UserID(c), beforeID, limit)
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, msgs)
}

type SendMessageBody struct {
	Content  string `json:"content" validate:"required_without=MediaURL,max=5000"`
	MediaURL string `json:"media_url" validate:"omitempty,url"`
	Type     string `json:"type" validate:"omitempty,oneof=text image"`
}

func (ct *Controller) SendMessage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	body := new(SendMessageBody)
	if err := ct.parseBody(c, body); err != nil {
		return ct.fail(c, err)
	}

	msg, err := ct.manager.Send(c.Context(), service.SendInput{
		ConversationID: id,
		SenderID:       middleware.UserID(c),
		Content:        body.Content,
		MediaURL:       body.MediaURL,
		Type:           model.MessageType(body.Type),
	})
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, msg)
}

func (ct *Controller) MessageStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	status, err := ct.manager.Status(c.Context(), id, middleware.UserID(c), ct.gate)
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, status)
}

func (ct *Controller) MarkAsRead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	if err := ct.manager.MarkAsRead(c.Context(), id, middleware.UserID(c)); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}

type RevealBody struct {
	Fields []string `json:"fields" validate:"required,min=1,dive,oneof=username college workplace city"`
}

func (ct *Controller) RevealIdentity(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	body := new(RevealBody)
	if err := ct.parseBody(c, body); err != nil {
		return ct.fail(c, err)
	}
	conv, err := ct.manager.RevealIdentity(c.Context(), id, middleware.UserID(c), body.Fields)
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, conv)
}

func (ct *Controller) RequestReveal(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	if err := ct.manager.RequestReveal(c.Context(), id, middleware.UserID(c)); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}

type MuteBody struct {
	Duration string `json:"duration" validate:"omitempty"`
}

func (ct *Controller) Mute(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	body := new(MuteBody)
	if err := ct.parseBody(c, body); err != nil {
		return ct.fail(c, err)
	}

	// Empty duration mutes until explicitly unmuted.
	var duration time.Duration
	if body.Duration != "" {
		duration, err = time.ParseDuration(body.Duration)
		if err != nil {
			return ct.fail(c, apperror.Invalid("invalid mute duration"))
		}
	}
	if err := ct.manager.Mute(c.Context(), id, middleware.UserID(c), duration); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}

func (ct *Controller) Unmute(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	if err := ct.manager.Unmute(c.Context(), id, middleware.UserID(c)); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}

func (ct *Controller) Archive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	if err := ct.manager.Archive(c.Context(), id, middleware.UserID(c)); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}

func (ct *Controller) Unarchive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	if err := ct.manager.Unarchive(c.Context(), id, middleware.UserID(c)); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}
