package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whisper-service/apperror"
	"whisper-service/event"
	"whisper-service/model"
)

func TestSendRequestValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("self request", func(t *testing.T) {
		_, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: h.alice, Text: "hi"})
		assert.True(t, apperror.IsCode(err, apperror.CodeInvalid))
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: h.bob})
		assert.True(t, apperror.IsCode(err, apperror.CodeInvalid))
	})

	t.Run("unknown recipient", func(t *testing.T) {
		_, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: 999, Text: "hi"})
		assert.True(t, apperror.IsCode(err, apperror.CodeNotFound))
	})
}

func TestSendRequestBlockedPair(t *testing.T) {
	h := newHarness(t)
	h.mem.AddBlock(h.bob, h.alice)

	_, err := h.registry.SendRequest(context.Background(), SendRequestInput{
		SenderID: h.alice, RecipientID: h.bob, Text: "hi",
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden))
}

func TestSendRequestPreferenceFilter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sender := h.mem.AddUser(model.User{Username: "carol", College: "IIT Delhi"})
	picky := h.mem.AddUser(model.User{Username: "dave", College: "IIT Bombay", AcceptFromCollege: true})

	_, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: sender, RecipientID: picky, Text: "hi"})
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden))

	// A matching restriction admits the sender.
	matching := h.mem.AddUser(model.User{Username: "erin", College: "IIT Delhi", AcceptFromCollege: true})
	_, err = h.registry.SendRequest(ctx, SendRequestInput{SenderID: sender, RecipientID: matching, Text: "hi"})
	assert.NoError(t, err)
}

func TestSendRequestDuplicateActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: h.bob, Text: "hi"})
	require.NoError(t, err)

	_, err = h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: h.bob, Text: "again"})
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))

	// The pair is unordered: the reverse direction conflicts too.
	_, err = h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.bob, RecipientID: h.alice, Text: "back"})
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestSendRequestDailyQuota(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// testDailyFree is 2; each request needs a fresh recipient to
	// dodge the duplicate-pair check.
	for i := 0; i < testDailyFree; i++ {
		to := h.mem.AddUser(model.User{Username: string(rune('m' + i))})
		_, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: to, Text: "hi"})
		require.NoError(t, err)
	}

	extra := h.mem.AddUser(model.User{Username: "extra"})
	_, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: extra, Text: "hi"})
	assert.True(t, apperror.IsCode(err, apperror.CodeQuotaExceeded))
}

func TestSendRequestPackFallbackFIFO(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Exhaust the free allowance.
	for i := 0; i < testDailyFree; i++ {
		to := h.mem.AddUser(model.User{Username: string(rune('m' + i))})
		_, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: to, Text: "hi"})
		require.NoError(t, err)
	}

	// Two packs; the one expiring sooner must be drawn first.
	later, err := h.gate.PurchasePack(ctx, h.alice, 3, 30*24*time.Hour)
	require.NoError(t, err)
	sooner, err := h.gate.PurchasePack(ctx, h.alice, 3, 24*time.Hour)
	require.NoError(t, err)

	to := h.mem.AddUser(model.User{Username: "packed"})
	_, err = h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: to, Text: "hi"})
	require.NoError(t, err)

	packs, err := h.gate.ListPacks(ctx, h.alice)
	require.NoError(t, err)
	for _, pack := range packs {
		switch pack.ID {
		case sooner.ID:
			assert.Equal(t, 2, pack.Remaining, "earliest-expiring pack is consumed first")
		case later.ID:
			assert.Equal(t, 3, pack.Remaining)
		}
	}
}

func TestAcceptCreatesConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := h.registry.SendRequest(ctx, SendRequestInput{
		SenderID: h.alice, RecipientID: h.bob, Text: "hello there", Anonymous: true,
	})
	require.NoError(t, err)

	conv, err := h.registry.Accept(ctx, req.ID, h.bob)
	require.NoError(t, err)

	require.Len(t, conv.Participants, 2)
	assert.Equal(t, h.alice, conv.InitiatorID)
	assert.True(t, conv.IsAnonymous)
	assert.False(t, conv.Side(h.alice).IsRevealed, "anonymous initiator starts hidden")
	assert.True(t, conv.Side(h.bob).IsRevealed, "recipient is always visible")
	assert.Equal(t, 1, conv.InitiatorMessageCount, "opening message counts as an unrevealed send")

	// The request now links the conversation.
	got, err := h.registry.Get(ctx, req.ID, h.alice)
	require.NoError(t, err)
	assert.Equal(t, model.RequestAccepted, got.Status)
	require.NotNil(t, got.ConversationID)
	assert.Equal(t, conv.ID, *got.ConversationID)

	// The initial message is the first conversation message.
	msgs, err := h.manager.GetMessages(ctx, conv.ID, h.bob, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Equal(t, h.alice, msgs[0].SenderID)

	// Sender gets notified in their personal room.
	assert.Contains(t, h.bus.Events(event.UserRoom(h.alice)), event.RequestAccepted)
}

func TestAcceptNonAnonymousStartsRevealed(t *testing.T) {
	h := newHarness(t)
	conv := h.startConversation(t, false)

	assert.False(t, conv.IsAnonymous)
	assert.True(t, conv.Side(h.alice).IsRevealed)
	assert.Equal(t, 0, conv.InitiatorMessageCount)
}

func TestAcceptRoleAndStateGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: h.bob, Text: "hi"})
	require.NoError(t, err)

	_, err = h.registry.Accept(ctx, req.ID, h.alice)
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden), "sender cannot accept")

	_, err = h.registry.Accept(ctx, req.ID, h.bob)
	require.NoError(t, err)

	_, err = h.registry.Accept(ctx, req.ID, h.bob)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict), "accept is not repeatable")
}

func TestAcceptExpiredRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Mint the request in the past so its deadline has lapsed.
	h.registry.now = func() time.Time { return time.Now().Add(-2 * testTTL) }
	req, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: h.bob, Text: "hi"})
	require.NoError(t, err)
	h.registry.now = time.Now

	_, err = h.registry.Accept(ctx, req.ID, h.bob)
	assert.True(t, apperror.IsCode(err, apperror.CodeExpired))

	got, err := h.registry.Get(ctx, req.ID, h.bob)
	require.NoError(t, err)
	assert.Equal(t, model.RequestExpired, got.Status, "failed accept marks the request expired")

	// Terminal: a later accept can never succeed.
	_, err = h.registry.Accept(ctx, req.ID, h.bob)
	assert.True(t, apperror.IsCode(err, apperror.CodeExpired))
}

func TestRejectAndCancelRoles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: h.bob, Text: "hi"})
	require.NoError(t, err)

	assert.True(t, apperror.IsCode(h.registry.Reject(ctx, req.ID, h.alice), apperror.CodeForbidden))
	assert.True(t, apperror.IsCode(h.registry.Cancel(ctx, req.ID, h.bob), apperror.CodeForbidden))

	require.NoError(t, h.registry.Reject(ctx, req.ID, h.bob))
	got, _ := h.registry.Get(ctx, req.ID, h.bob)
	assert.Equal(t, model.RequestRejected, got.Status)

	// Terminal state: no further transitions.
	assert.True(t, apperror.IsCode(h.registry.Cancel(ctx, req.ID, h.alice), apperror.CodeConflict))
}

func TestLazyExpiryOnRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.registry.now = func() time.Time { return time.Now().Add(-2 * testTTL) }
	req, err := h.registry.SendRequest(ctx, SendRequestInput{SenderID: h.alice, RecipientID: h.bob, Text: "hi"})
	require.NoError(t, err)
	h.registry.now = time.Now

	inbox, err := h.registry.ListInbox(ctx, h.bob)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.RequestExpired, inbox[0].Status)
	_ = req
}
