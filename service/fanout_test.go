package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper-service/event"
	"whisper-service/model"
	"whisper-service/notify"
)

// stalledDispatcher blocks every push until released.
type stalledDispatcher struct {
	called  chan struct{}
	release chan struct{}
}

func newStalledDispatcher() *stalledDispatcher {
	return &stalledDispatcher{
		called:  make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (d *stalledDispatcher) Notify([]uint, string, any) {
	select {
	case d.called <- struct{}{}:
	default:
	}
	<-d.release
}

// failingBus rejects publishes to one room, recording the rest.
type failingBus struct {
	*event.Recorder
	failRoom string
}

func (b *failingBus) Publish(room string, env event.Envelope) error {
	if room == b.failRoom {
		return errors.New("adapter down")
	}
	return b.Recorder.Publish(room, env)
}

func TestSendReturnsWhilePushStalls(t *testing.T) {
	h := newHarness(t)
	conv := h.startConversation(t, true)

	dispatcher := newStalledDispatcher()
	gateway := NewMessagingGateway(h.mem.Stores(), h.bus, dispatcher, zerolog.Nop(), 15*time.Minute, time.Hour)
	manager := NewConversationManager(h.mem.Stores(), gateway, NewConversationLocks(), zerolog.Nop(), testFreeLimit, testPrice)

	done := make(chan error, 1)
	go func() {
		_, err := manager.Send(context.Background(), SendInput{
			ConversationID: conv.ID,
			SenderID:       h.alice,
			Content:        "hello",
		})
		done <- err
	}()

	// The message is durable before fan-out starts; a stuck push
	// provider must not hold the sender (or the conversation lock).
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("send waited on the notification push")
	}

	close(dispatcher.release)
	select {
	case <-dispatcher.called:
	case <-time.After(2 * time.Second):
		t.Fatal("push never dispatched")
	}
}

func TestUndeliverableMessageMarksFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.startConversation(t, true)

	bus := &failingBus{Recorder: event.NewRecorder(), failRoom: event.UserRoom(h.bob)}
	gateway := NewMessagingGateway(h.mem.Stores(), bus, notify.Noop{}, zerolog.Nop(), 15*time.Minute, time.Hour)
	manager := NewConversationManager(h.mem.Stores(), gateway, NewConversationLocks(), zerolog.Nop(), testFreeLimit, testPrice)

	msg, err := manager.Send(ctx, SendInput{
		ConversationID: conv.ID,
		SenderID:       h.alice,
		Content:        "hello",
	})
	require.NoError(t, err, "a socket failure never fails the send itself")

	assert.Eventually(t, func() bool {
		got, err := h.mem.GetMessage(ctx, msg.ID)
		return err == nil && got.Status == model.StatusFailed
	}, 2*time.Second, 10*time.Millisecond, "undelivered message should be marked failed")

	// An ack from the recipient proves receipt and recovers it.
	require.NoError(t, gateway.AckDelivered(ctx, conv.ID, h.bob, []uint{msg.ID}))
	got, err := h.mem.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, got.Status)
}
