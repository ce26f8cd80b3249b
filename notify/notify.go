// Package notify pushes "notify these users" events to the external
// notification service over RabbitMQ. Rendering and delivery of the
// actual push happens downstream; failures here are logged only and
// never surface to the caller.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	Queue        = "notifications"
	ActionHeader = "x-action"
)

// Dispatcher is the fire-and-forget push interface.
type Dispatcher interface {
	Notify(userIDs []uint, kind string, payload any)
}

type pushPayload struct {
	UserIDs []uint `json:"user_ids"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sent_at"`
}

// AMQP publishes to the notifications queue.
type AMQP struct {
	channel *amqp.Channel
	logger  zerolog.Logger
}

// Dial connects, opens a channel and declares the queue.
func Dial(url string, logger zerolog.Logger) (*AMQP, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("opening RabbitMQ channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declaring queue %s: %w", Queue, err)
	}

	logger.Info().Str("queue", Queue).Msg("connected to RabbitMQ")
	return &AMQP{channel: channel, logger: logger}, conn, nil
}

func (d *AMQP) Notify(userIDs []uint, kind string, payload any) {
	body, err := json.Marshal(pushPayload{
		UserIDs: userIDs,
		Kind:    kind,
		Payload: payload,
		SentAt:  time.Now().UnixMicro(),
	})
	if err != nil {
		d.logger.Error().Err(err).Str("kind", kind).Msg("marshal push payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = d.channel.PublishWithContext(
		ctx,
		"",    // exchange
		Queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Headers: amqp.Table{
				ActionHeader: kind,
			},
			Body: body,
		},
	)
	if err != nil {
		d.logger.Warn().Err(err).Str("kind", kind).Msg("push dispatch failed")
	}
}

// Noop satisfies Dispatcher where no broker is wired (tests).
type Noop struct{}

func (Noop) Notify([]uint, string, any) {}
