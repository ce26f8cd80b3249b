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

// lastFrom returns the newest message sent by userID in the
// conversation, as seen by that user.
func (h *harness) lastFrom(t *testing.T, conversationID, userID uint) *model.Message {
	t.Helper()
	msgs, err := h.manager.GetMessages(context.Background(), conversationID, userID, 0, 0)
	require.NoError(t, err)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderID == userID {
			return &msgs[i]
		}
	}
	t.Fatalf("no message from user %d", userID)
	return nil
}

func TestAckDeliveredThenRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.startConversation(t, true)
	h.sendN(t, conv.ID, h.alice, 2)

	require.NoError(t, h.gateway.AckDelivered(ctx, conv.ID, h.bob, nil))
	msgs, err := h.manager.GetMessages(ctx, conv.ID, h.bob, 0, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Equal(t, model.StatusDelivered, m.Status)
		assert.NotNil(t, m.DeliveredAt)
	}

	require.NoError(t, h.gateway.AckRead(ctx, conv.ID, h.bob, nil))
	msgs, _ = h.manager.GetMessages(ctx, conv.ID, h.bob, 0, 0)
	for _, m := range msgs {
		assert.Equal(t, model.StatusRead, m.Status)
		assert.NotNil(t, m.ReadAt)
	}

	assert.Contains(t, h.bus.Events(event.ConversationRoom(conv.ID)), event.MessagesDelivered)
	assert.Contains(t, h.bus.Events(event.ConversationRoom(conv.ID)), event.MessagesRead)
}

func TestAckNeverRegresses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.startConversation(t, true)
	h.sendN(t, conv.ID, h.alice, 1)

	require.NoError(t, h.gateway.AckRead(ctx, conv.ID, h.bob, nil))

	// A late delivered ack for an already-read message is a silent
	// no-op: no status change, no event.
	require.NoError(t, h.gateway.AckDelivered(ctx, conv.ID, h.bob, nil))
	msgs, err := h.manager.GetMessages(ctx, conv.ID, h.bob, 0, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Equal(t, model.StatusRead, m.Status)
	}
	assert.NotContains(t, h.bus.Events(event.ConversationRoom(conv.ID)), event.MessagesDelivered)
}

func TestAckOnlyMovesRecipientsMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.startConversation(t, true)
	h.sendN(t, conv.ID, h.alice, 1)
	h.sendN(t, conv.ID, h.bob, 1)

	// Bob acking cannot touch the message alice is the recipient of.
	require.NoError(t, h.gateway.AckRead(ctx, conv.ID, h.bob, nil))
	fromBob := h.lastFrom(t, conv.ID, h.bob)
	assert.Equal(t, model.StatusSent, fromBob.Status)
}

func TestReactReplacesPreviousEmoji(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.startConversation(t, true)
	h.sendN(t, conv.ID, h.alice, 1)
	msg := h.lastFrom(t, conv.ID, h.alice)

	require.NoError(t, h.gateway.React(ctx, msg.ID, h.bob, "❤️"))
	require.NoError(t, h.gateway.React(ctx, msg.ID, h.bob, "😂"))
	require.NoError(t, h.gateway.React(ctx, msg.ID, h.alice, "👍"))

	msgs, err := h.manager.GetMessages(ctx, conv.ID, h.alice, 0, 0)
	require.NoError(t, err)
	got := msgs[len(msgs)-1]
	require.Len(t, got.Reactions, 2, "one reaction per user")
	byUser := map[uint]string{}
	for _, r := range got.Reactions {
		byUser[r.UserID] = r.Emoji
	}
	assert.Equal(t, "😂", byUser[h.bob])
	assert.Equal(t, "👍", byUser[h.alice])

	err = h.gateway.React(ctx, msg.ID, h.bob, "")
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalid))

	stranger := h.mem.AddUser(model.User{Username: "mallory"})
	err = h.gateway.React(ctx, msg.ID, stranger, "👀")
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden))
}

func TestEditWindowAndOriginal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.startConversation(t, true)
	h.sendN(t, conv.ID, h.alice, 1)
	msg := h.lastFrom(t, conv.ID, h.alice)

	_, err := h.gateway.Edit(ctx, msg.ID, h.bob, "hijacked")
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden), "only the sender edits")

	edited, err := h.gateway.Edit(ctx, msg.ID, h.alice, "hello, edited")
	require.NoError(t, err)
	assert.Equal(t, "hello, edited", edited.Content)
	assert.Equal(t, "hello", edited.OriginalContent, "first edit keeps the original")
	require.NotNil(t, edited.EditedAt)

	edited, err = h.gateway.Edit(ctx, msg.ID, h.alice, "hello, edited twice")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.OriginalContent, "later edits do not overwrite it")

	// Past the window the edit is rejected.
	h.gateway.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	_, err = h.gateway.Edit(ctx, msg.ID, h.alice, "too late")
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden))
}

func TestDeleteForMeIsPerSide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.startConversation(t, true)
	h.sendN(t, conv.ID, h.alice, 1)
	msg := h.lastFrom(t, conv.ID, h.alice)

	require.NoError(t, h.gateway.Delete(ctx, msg.ID, h.bob, false))

	bobView, err := h.manager.GetMessages(ctx, conv.ID, h.bob, 0, 0)
	require.NoError(t, err)
	for _, m := range bobView {
		assert.NotEqual(t, msg.ID, m.ID, "hidden from the deleting side")
	}
	aliceView, err := h.manager.GetMessages(ctx, conv.ID, h.alice, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, aliceView[len(aliceView)-1].ID, "still visible to the other side")
}

func TestDeleteForEveryone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv := h.startConversation(t, true)
	h.sendN(t, conv.ID, h.alice, 1)
	msg := h.lastFrom(t, conv.ID, h.alice)

	err := h.gateway.Delete(ctx, msg.ID, h.bob, true)
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden), "only the sender deletes for everyone")

	require.NoError(t, h.gateway.Delete(ctx, msg.ID, h.alice, true))
	for _, uid := range []uint{h.alice, h.bob} {
		msgs, err := h.manager.GetMessages(ctx, conv.ID, uid, 0, 0)
		require.NoError(t, err)
		for _, m := range msgs {
			assert.NotEqual(t, msg.ID, m.ID)
		}
	}
	assert.Contains(t, h.bus.Events(event.ConversationRoom(conv.ID)), event.MessageDeleted)

	// Outside the window deleting for everyone is rejected.
	h.sendN(t, conv.ID, h.alice, 1)
	late := h.lastFrom(t, conv.ID, h.alice)
	h.gateway.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	err = h.gateway.Delete(ctx, late.ID, h.alice, true)
	assert.True(t, apperror.IsCode(err, apperror.CodeForbidden))
	require.NoError(t, h.gateway.Delete(ctx, late.ID, h.alice, false), "delete for me has no window")
}
