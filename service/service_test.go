package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"whisper-service/event"
	"whisper-service/model"
	"whisper-service/notify"
	"whisper-service/payment"
	"whisper-service/store/memory"
)

const (
	testFreeLimit = 5
	testPrice     = int64(9900)
	testDailyFree = 2
	testTTL       = 72 * time.Hour
)

type harness struct {
	mem      *memory.Store
	quota    *memory.Quota
	bus      *event.Recorder
	provider *payment.Fake

	registry *RequestRegistry
	manager  *ConversationManager
	gateway  *MessagingGateway
	gate     *PaymentGate

	alice uint // initiator in most tests
	bob   uint // recipient in most tests
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mem := memory.New()
	quota := memory.NewQuota()
	bus := event.NewRecorder()
	provider := payment.NewFake("test-secret")
	logger := zerolog.Nop()
	locks := NewConversationLocks()

	gateway := NewMessagingGateway(mem.Stores(), bus, notify.Noop{}, logger, 15*time.Minute, time.Hour)
	manager := NewConversationManager(mem.Stores(), gateway, locks, logger, testFreeLimit, testPrice)
	gate := NewPaymentGate(mem.Stores(), provider, locks, logger, testFreeLimit, testPrice, "INR")
	registry := NewRequestRegistry(mem.Stores(), quota, bus, notify.Noop{}, logger, testDailyFree, testTTL)

	h := &harness{
		mem:      mem,
		quota:    quota,
		bus:      bus,
		provider: provider,
		registry: registry,
		manager:  manager,
		gateway:  gateway,
		gate:     gate,
	}
	h.alice = mem.AddUser(model.User{Username: "alice"})
	h.bob = mem.AddUser(model.User{Username: "bob"})
	return h
}

// startConversation runs the full request->accept flow and returns the
// conversation.
func (h *harness) startConversation(t *testing.T, anonymous bool) *model.Conversation {
	t.Helper()
	ctx := context.Background()

	req, err := h.registry.SendRequest(ctx, SendRequestInput{
		SenderID:    h.alice,
		RecipientID: h.bob,
		Text:        "hey, want to talk?",
		Source:      "discover",
		Anonymous:   anonymous,
	})
	require.NoError(t, err)

	conv, err := h.registry.Accept(ctx, req.ID, h.bob)
	require.NoError(t, err)
	return conv
}

// sendN sends n text messages from userID and requires success.
func (h *harness) sendN(t *testing.T, conversationID, userID uint, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := h.manager.Send(context.Background(), SendInput{
			ConversationID: conversationID,
			SenderID:       userID,
			Content:        "hello",
		})
		require.NoError(t, err)
	}
}

// payCycle runs the full order->settle->verify flow for the initiator.
func (h *harness) payCycle(t *testing.T, conversationID uint) {
	t.Helper()
	ctx := context.Background()

	order, err := h.gate.CreateOrder(ctx, conversationID, h.alice)
	require.NoError(t, err)

	paymentID, signature := h.provider.Settle(order.OrderID)
	_, err = h.gate.VerifyAndApply(ctx, conversationID, order.OrderID, paymentID, signature)
	require.NoError(t, err)
}
