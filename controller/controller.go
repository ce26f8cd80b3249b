// Package controller exposes the REST surface. Handlers stay thin:
// parse and validate the request, call one service method, render the
// {status, message, data} envelope.
package controller

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"whisper-service/apperror"
	"whisper-service/service"
)

type Controller struct {
	registry *service.RequestRegistry
	manager  *service.ConversationManager
	gateway  *service.MessagingGateway
	gate     *service.PaymentGate
	logger   zerolog.Logger
	validate *validator.Validate
}

func New(
	registry *service.RequestRegistry,
	manager *service.ConversationManager,
	gateway *service.MessagingGateway,
	gate *service.PaymentGate,
	logger zerolog.Logger,
) *Controller {
	return &Controller{
		registry: registry,
		manager:  manager,
		gateway:  gateway,
		gate:     gate,
		logger:   logger,
		validate: validator.New(),
	}
}

func (ct *Controller) parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.Invalid("malformed request body")
	}
	if err := ct.validate.Struct(dst); err != nil {
		return apperror.Invalid(err.Error())
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, apperror.Invalid("invalid " + name)
	}
	return uint(id), nil
}

func success(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data":    data,
	})
}

func (ct *Controller) fail(c *fiber.Ctx, err error) error {
	appErr := apperror.As(err)
	if appErr.Code == apperror.CodeInternal {
		ct.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}

	var data any
	if appErr.Payment != nil {
		data = appErr.Payment
	}
	return c.Status(apperror.HTTPStatus(appErr)).JSON(fiber.Map{
		"status":  "error",
		"message": appErr.Message,
		"data":    data,
	})
}
