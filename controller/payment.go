package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"whisper-service/middleware"
	"whisper-service/service"
)

type CreateOrderBody struct {
	ConversationID uint `json:"conversation_id" validate:"required"`
}

func (ct *Controller) CreateOrder(c *fiber.Ctx) error {
	body := new(CreateOrderBody)
	if err := ct.parseBody(c, body); err != nil {
		return ct.fail(c, err)
	}
	order, err := ct.gate.CreateOrder(c.Context(), body.ConversationID, middleware.UserID(c))
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, order)
}

type VerifyPaymentBody struct {
	ConversationID uint   `json:"conversation_id" validate:"required"`
	OrderID        string `json:"order_id" validate:"required"`
	PaymentID      string `json:"payment_id" validate:"required"`
	Signature      string `json:"signature" validate:"required"`
}

func (ct *Controller) VerifyPayment(c *fiber.Ctx) error {
	body := new(VerifyPaymentBody)
	if err := ct.parseBody(c, body); err != nil {
		return ct.fail(c, err)
	}
	conv, err := ct.gate.VerifyAndApply(c.Context(), body.ConversationID, body.OrderID, body.PaymentID, body.Signature)
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, conv)
}

// PaymentWebhook is the provider's server-to-server callback. It is
// mounted outside the JWT group and always acknowledges with 200 so
// the provider stops retrying; reconciliation covers the rest.
func (ct *Controller) PaymentWebhook(c *fiber.Ctx) error {
	ev := new(service.WebhookEvent)
	if err := c.BodyParser(ev); err != nil {
		ct.logger.Warn().Err(err).Msg("malformed payment webhook")
		return success(c, nil)
	}
	ct.gate.HandleWebhook(c.Context(), *ev)
	return success(c, nil)
}

type PurchasePackBody struct {
	Size         int `json:"size" validate:"required,gt=0,lte=100"`
	ValidityDays int `json:"validity_days" validate:"omitempty,gt=0,lte=365"`
}

func (ct *Controller) PurchasePack(c *fiber.Ctx) error {
	body := new(PurchasePackBody)
	if err := ct.parseBody(c, body); err != nil {
		return ct.fail(c, err)
	}
	days := body.ValidityDays
	if days == 0 {
		days = 30
	}
	pack, err := ct.gate.PurchasePack(c.Context(), middleware.UserID(c), body.Size, time.Duration(days)*24*time.Hour)
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, pack)
}

func (ct *Controller) ListPacks(c *fiber.Ctx) error {
	packs, err := ct.gate.ListPacks(c.Context(), middleware.UserID(c))
	if err != nil {
		return ct.fail(c, err)
	}
	return success(c, packs)
}
