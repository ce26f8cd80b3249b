package controller

import (
	"github.com/gofiber/fiber/v2"

	"whisper-service/middleware"
)

type ReactBody struct {
	Emoji string `json:"emoji" validate:"required,max=16"`
}

func (ct *Controller) React(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	body := new(ReactBody)
	if err := ct.parseBody(c, body); err != nil {
		return ct.fail(c, err)
	}
	if err := ct.gateway.React(c.Context(), id, middleware.UserID(c), body.Emoji); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}

type EditBody struct {
	Content string `json:"content" validate:"required,max=5000"`
}

func (ct *Controller) EditMessage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	body := new(EditBody)
	if err := ct.parseBody(c, body); err != nil {
		return ct.fail(c, err)
	}
	msg, err := ct.gateway.Edit(c.Context(), id, middleware.UserID(c), body.Content)
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, msg)
}

func (ct *Controller) DeleteMessage(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return ct.fail(c, err)
	}
	forEveryone := c.Query("scope") == "everyone"
	if err := ct.gateway.Delete(c.Context(), id, middleware.UserID(c), forEveryone); err != nil {
		return ct.fail(c, err)
	}
	return success(c, nil)
}
