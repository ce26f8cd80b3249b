package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"whisper-service/controller"
	"whisper-service/middleware"
)

func Rest(app *fiber.App, ct *controller.Controller, jwtKey []byte) {
	api := app.Group("/v1", logger.New())

	// Provider callback, authenticated by signature instead of JWT.
	api.Post("/payments/webhook", ct.PaymentWebhook)

	auth := middleware.JWT(jwtKey)

	// Message requests
	requests := api.Group("/requests", auth)
	requests.Post("/", ct.SendRequest)
	requests.Get("/inbox", ct.RequestInbox)
	requests.Get("/outbox", ct.RequestOutbox)
	requests.Get("/:id", ct.GetRequest)
	requests.Post("/:id/accept", ct.AcceptRequest)
	requests.Post("/:id/reject", ct.RejectRequest)
	requests.Post("/:id/cancel", ct.CancelRequest)

	// Conversations
	conversations := api.Group("/conversations", auth)
	conversations.Get("/", ct.ListConversations)
	conversations.Get("/:id", ct.GetConversation)
	conversations.Get("/:id/messages", ct.GetMessages)
	conversations.Post("/:id/messages", ct.SendMessage)
	conversations.Get("/:id/message-status", ct.MessageStatus)
	conversations.Post("/:id/read", ct.MarkAsRead)
	conversations.Post("/:id/reveal", ct.RevealIdentity)
	conversations.Post("/:id/reveal-request", ct.RequestReveal)
	conversations.Post("/:id/mute", ct.Mute)
	conversations.Post("/:id/unmute", ct.Unmute)
	conversations.Post("/:id/archive", ct.Archive)
	conversations.Post("/:id/unarchive", ct.Unarchive)

	// Messages
	messages := api.Group("/messages", auth)
	messages.Patch("/:id", ct.EditMessage)
	messages.Delete("/:id", ct.DeleteMessage)
	messages.Put("/:id/reaction", ct.React)

	// Payments
	payments := api.Group("/payments", auth)
	payments.Post("/order", ct.CreateOrder)
	payments.Post("/verify", ct.VerifyPayment)

	// Request packs
	packs := api.Group("/packs", auth)
	packs.Post("/", ct.PurchasePack)
	packs.Get("/", ct.ListPacks)
}
