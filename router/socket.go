package router

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/zishang520/socket.io/v2/socket"

	"whisper-service/event"
	"whisper-service/model"
	"whisper-service/service"
	"whisper-service/socketio"
	"whisper-service/utils"
)

// ConversationSnapshot is the init payload: the caller's conversations
// plus the online status of each counterpart.
type ConversationSnapshot struct {
	Conversations []model.Conversation `json:"conversations"`
	UserStatus    []UserStatus         `json:"user_status"`
}

type UserStatus struct {
	ID     uint `json:"id"`
	Online bool `json:"online"`
}

// Socket registers the realtime event handlers. Every handler re-checks
// membership through the service layer; room membership alone is never
// trusted.
func Socket(server *socketio.Server, manager *service.ConversationManager, gateway *service.MessagingGateway, logger zerolog.Logger) {
	io := server.IO()

	io.On("connection", func(clients ...interface{}) {
		client := clients[0].(*socket.Socket)

		userID := func() uint {
			if claims, ok := client.Data().(*utils.TokenMetadata); ok {
				return claims.UserID
			}
			return 0
		}

		client.On("init", func(args ...interface{}) {
			uid := userID()
			if uid == 0 {
				client.Emit("init", ConversationSnapshot{})
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conversations, err := manager.List(ctx, uid)
			if err != nil {
				client.Emit("init", ConversationSnapshot{})
				return
			}

			status := make([]UserStatus, 0, len(conversations))
			for _, conv := range conversations {
				other := conv.Other(uid)
				if other == nil {
					continue
				}
				status = append(status, UserStatus{
					ID:     other.UserID,
					Online: server.Online(other.UserID),
				})
			}
			client.Emit("init", ConversationSnapshot{Conversations: conversations, UserStatus: status})
		})

		client.On("conversation_join", func(args ...interface{}) {
			uid := userID()
			convID := argUint(args, 0)
			if uid == 0 || convID == 0 {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// Membership gate before joining the room.
			if _, err := manager.Get(ctx, convID, uid); err != nil {
				return
			}
			client.Join(socket.Room(event.ConversationRoom(convID)))
		})

		client.On("conversation_leave", func(args ...interface{}) {
			convID := argUint(args, 0)
			if convID == 0 {
				return
			}
			client.Leave(socket.Room(event.ConversationRoom(convID)))
		})

		client.On("typing_start", func(args ...interface{}) {
			relayTyping(server, client, userID(), argUint(args, 0), event.UserTyping)
		})

		client.On("typing_stop", func(args ...interface{}) {
			relayTyping(server, client, userID(), argUint(args, 0), event.UserStoppedTyping)
		})

		client.On("messages_delivered", func(args ...interface{}) {
			uid := userID()
			convID := argUint(args, 0)
			if uid == 0 || convID == 0 {
				return
			}

			ackDelivered(gateway, logger, convID, uid, argUints(args, 1))
		})

		client.On("messages_read", func(args ...interface{}) {
			uid := userID()
			convID := argUint(args, 0)
			if uid == 0 || convID == 0 {
				return
			}

			ackRead(manager, logger, convID, uid)
		})

		client.On("disconnect", func(args ...interface{}) {
			uid := userID()
			if uid == 0 {
				return
			}
			// The room survives while other devices are connected;
			// only the last disconnect makes the user offline.
			if server.Online(uid) {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conversations, err := manager.List(ctx, uid)
			if err != nil {
				return
			}
			env := event.NewEnvelope(event.UserOffline, map[string]any{
				"user_id": uid,
				"at":      time.Now().UTC(),
			})
			for _, conv := range conversations {
				server.Publish(event.ConversationRoom(conv.ID), env)
			}
		})
	})
}

// Ack handlers cannot surface errors to the emitting client, so a
// rejected or failed ack is logged instead of dropped on the floor.
func ackDelivered(gateway *service.MessagingGateway, logger zerolog.Logger, convID, uid uint, ids []uint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gateway.AckDelivered(ctx, convID, uid, ids); err != nil {
		logger.Warn().Err(err).
			Uint("conversation_id", convID).
			Uint("user_id", uid).
			Msg("delivered ack rejected")
	}
}

func ackRead(manager *service.ConversationManager, logger zerolog.Logger, convID, uid uint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.MarkAsRead(ctx, convID, uid); err != nil {
		logger.Warn().Err(err).
			Uint("conversation_id", convID).
			Uint("user_id", uid).
			Msg("read ack rejected")
	}
}

func relayTyping(server *socketio.Server, client *socket.Socket, uid, convID uint, name string) {
	if uid == 0 || convID == 0 {
		return
	}
	// Typing relays only reach rooms the socket actually joined.
	if !inRoom(client, event.ConversationRoom(convID)) {
		return
	}
	server.Publish(event.ConversationRoom(convID), event.NewEnvelope(name, map[string]any{
		"conversation_id": convID,
		"user_id":         uid,
	}))
}

func inRoom(client *socket.Socket, room string) bool {
	for _, r := range client.Rooms().Keys() {
		if r == socket.Room(room) {
			return true
		}
	}
	return false
}

// argUint reads a numeric socket argument, tolerating both the string
// and the json number encoding clients send.
func argUint(args []interface{}, i int) uint {
	if len(args) <= i {
		return 0
	}
	switch v := args[i].(type) {
	case string:
		id, _ := strconv.ParseUint(v, 10, 64)
		return uint(id)
	case float64:
		return uint(v)
	}
	return 0
}

// argUints reads a batch of message ids; a missing argument means
// "all eligible".
func argUints(args []interface{}, i int) []uint {
	if len(args) <= i {
		return nil
	}
	raw, ok := args[i].([]interface{})
	if !ok {
		return nil
	}
	ids := make([]uint, 0, len(raw))
	for j := range raw {
		if id := argUint(raw, j); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
