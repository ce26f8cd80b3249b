package database

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"whisper-service/config"
)

// RedisConnect opens one client per logical database. The quota
// counters and the socket.io adapter live in separate databases so
// flushing one never touches the other.
func RedisConnect(cfg *config.Config, logger zerolog.Logger) (quota, socket *redis.Client) {
	open := func(db int) *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       db,
		})
	}

	quota = open(cfg.RedisQuotaDB)
	socket = open(cfg.RedisSocketDB)
	logger.Info().Str("host", cfg.RedisHost).Msg("connections opened to Redis")
	return quota, socket
}
