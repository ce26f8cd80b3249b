// Package socketio hosts the socket.io server: JWT handshake, room
// membership and the event.Bus implementation the services publish
// through. Rooms are backed by the Redis adapter, so fan-out reaches
// sockets on every instance.
package socketio

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/zishang520/socket.io-go-redis/adapter"
	r_type "github.com/zishang520/socket.io-go-redis/types"
	"github.com/zishang520/socket.io/v2/socket"

	"whisper-service/event"
	"whisper-service/utils"
)

type Server struct {
	io     *socket.Server
	logger zerolog.Logger
}

// Init mounts the socket.io endpoint on the fiber app. Connections
// carrying a valid token join their personal user room immediately;
// anonymous connections stay but can only listen to public events.
func Init(app *fiber.App, redisClient *redis.Client, jwtKey []byte, logger zerolog.Logger) *Server {
	options := socket.DefaultServerOptions()
	options.SetServeClient(true)
	options.SetAllowEIO3(true)
	options.SetPingInterval(25 * time.Second)
	options.SetPingTimeout(20 * time.Second)
	options.SetMaxHttpBufferSize(1000000)
	options.SetConnectTimeout(45 * time.Second)
	options.SetAdapter(&adapter.RedisAdapterBuilder{
		Redis: r_type.NewRedisClient(context.Background(), redisClient),
		Opts:  &adapter.RedisAdapterOptions{},
	})

	io := socket.NewServer(nil, nil)

	io.Use(func(client *socket.Socket, next func(*socket.ExtendedError)) {
		token, ok := client.Conn().Request().Query().Get("token")
		if ok {
			claims, err := utils.CheckAndExtractTokenMetadata(token, jwtKey)
			if err == nil {
				client.Join(socket.Room(event.UserRoom(claims.UserID)))
				client.SetData(claims)
			} else {
				logger.Debug().Err(err).Msg("socket handshake token rejected")
			}
		}
		next(nil)
	})

	app.Get("/socket.io/", adaptor.HTTPHandler(io.ServeHandler(options)))
	app.Post("/socket.io/", adaptor.HTTPHandler(io.ServeHandler(options)))

	return &Server{io: io, logger: logger}
}

// IO exposes the raw server for event handler registration.
func (s *Server) IO() *socket.Server {
	return s.io
}

// Publish implements event.Bus: fan an envelope out to one room.
func (s *Server) Publish(room string, env event.Envelope) error {
	if err := s.io.To(socket.Room(room)).Emit(env.Event, env); err != nil {
		s.logger.Warn().Err(err).Str("room", room).Str("event", env.Event).Msg("socket emit failed")
		return err
	}
	return nil
}

// Online reports whether any socket is currently in the user's room,
// on any instance.
func (s *Server) Online(userID uint) bool {
	target := socket.Room(event.UserRoom(userID))
	for _, room := range s.io.Sockets().Adapter().Rooms().Keys() {
		if room == target {
			return true
		}
	}
	return false
}

func (s *Server) Close() {
	s.io.Close(nil)
}
