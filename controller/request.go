package controller

import (
	"github.com/gofiber/fiber/v2"

	"whisper-service/middleware"
	"whisper-service/service"
)

type SendRequestBody struct {
	RecipientID uint   `json:"recipient_id" validate:"required"`
	Text        string `json:"text" validate:"required,max=1000"`
	Source      string `json:"source" validate:"omitempty,max=64"`
	Anonymous   bool   `json:"anonymous"`
}

func (ct *Controller) SendRequest(c *fiber.Ctx) error {
	body := new(SendRequestBody)
	if err := ct.parseBody(c, body); err != nil {
		return ct.fail(c, err)
	}

	req, err := ct.registry.SendRequest(c.Context(), service.SendRequestInput{
		SenderID:    middleware.UserID(c),
		RecipientID: body.RecipientID,
		Text:        body.Text,
		Source:      body.Source,
		Anonymous:   body.Anonymous,
	})
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, req)
}

func (ct *Controller) RequestInbox(c *fiber.Ctx) error {
	reqs, err := ct.registry.ListInbox(c.Context(), middleware.UserID(c))
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, reqs)
}

func (ct *Controller) RequestOutbox(c *fiber.Ctx) error {
	reqs, err := ct.registry.ListOutbox(c.Context(), middleware.UserID(c))
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, reqs)
}

func (ct *Controller) GetRequest(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	req, err := ct.registry.Get(c.Context(), id, middleware.UserID(c))
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, req)
}

func (ct *Controller) AcceptRequest(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	conv, err := ct.registry.Accept(c.Context(), id, middleware.UserID(c))
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, conv)
}

func (ct *Controller) RejectRequest(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	if err := ct.registry.Reject(c.Context(), id, middleware.UserID(c)); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}

func (ct *Controller) CancelRequest(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	if err := ct.registry.Cancel(c.Context(), id, middleware.UserID(c)); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}
