package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"whisper-service/config"
	"whisper-service/controller"
	"whisper-service/database"
	"whisper-service/notify"
	"whisper-service/payment"
	"whisper-service/router"
	"whisper-service/service"
	"whisper-service/socketio"
	"whisper-service/store/postgres"
	"whisper-service/store/quota"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "whisper-service").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("loading configuration")
	}

	db, err := database.PostgresConnect(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	quotaRedis, socketRedis := database.RedisConnect(cfg, logger)

	dispatcher, amqpConn, err := notify.Dial(fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		cfg.RabbitMQUser,
		cfg.RabbitMQPass,
		cfg.RabbitMQHost,
		cfg.RabbitMQPort,
	), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq")
	}

	rest := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		AppName:               "whisper-service",
	})
	rest.Use(cors.New())

	socket := socketio.Init(rest, socketRedis, []byte(cfg.JWTAccessKey), logger)

	stores := postgres.New(db).Stores()
	locks := service.NewConversationLocks()
	provider := payment.NewRazorpay(cfg.PaymentBaseURL, cfg.PaymentKeyID, cfg.PaymentKeySecret)

	gateway := service.NewMessagingGateway(stores, socket, dispatcher, logger, cfg.EditWindow, cfg.DeleteWindow)
	manager := service.NewConversationManager(stores, gateway, locks, logger, cfg.FreeMessageLimit, cfg.MessagePrice)
	gate := service.NewPaymentGate(stores, provider, locks, logger, cfg.FreeMessageLimit, cfg.MessagePrice, cfg.Currency)
	registry := service.NewRequestRegistry(stores, quota.NewRedis(quotaRedis), socket, dispatcher, logger, cfg.DailyRequestQuota, cfg.RequestTTL)

	ct := controller.New(registry, manager, gateway, gate, logger)
	router.Rest(rest, ct, []byte(cfg.JWTAccessKey))
	router.Socket(socket, manager, gateway, logger)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := service.NewSweeper(stores.Requests, logger, cfg.SweepInterval)
	go sweeper.Run(sweepCtx)

	go func() {
		if err := rest.Listen(fmt.Sprintf(":%s", cfg.ServerPort)); err != nil {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()
	logger.Info().Str("port", cfg.ServerPort).Msg("listening")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-signals

	logger.Info().Msg("shutting down")
	stopSweeper()
	socket.Close()
	rest.Shutdown()
	amqpConn.Close()
	quotaRedis.Close()
	socketRedis.Close()
}
