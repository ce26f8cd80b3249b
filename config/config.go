package config

import (
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime knob of the service, loaded from the
// environment (a local .env file is picked up automatically).
type Config struct {
	ServerPort string `envconfig:"SERVER_PORT" default:"3000"`

	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     string `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:""`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"whisper"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     string `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisQuotaDB  int    `envconfig:"REDIS_QUOTA_DB" default:"0"`
	RedisSocketDB int    `envconfig:"REDIS_SOCKET_DB" default:"1"`

	RabbitMQHost string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	RabbitMQPort string `envconfig:"RABBITMQ_PORT" default:"5672"`
	RabbitMQUser string `envconfig:"RABBITMQ_USER" default:"guest"`
	RabbitMQPass string `envconfig:"RABBITMQ_PASSWORD" default:"guest"`

	JWTAccessKey string `envconfig:"JWT_ACCESS_KEY" required:"true"`

	// Messaging business rules.
	FreeMessageLimit  int           `envconfig:"FREE_MESSAGE_LIMIT" default:"100"`
	MessagePrice      int64         `envconfig:"MESSAGE_PRICE" default:"9900"` // minor units
	Currency          string        `envconfig:"CURRENCY" default:"INR"`
	RequestTTL        time.Duration `envconfig:"REQUEST_TTL" default:"168h"`
	DailyRequestQuota int           `envconfig:"DAILY_REQUEST_QUOTA" default:"5"`
	EditWindow        time.Duration `envconfig:"EDIT_WINDOW" default:"15m"`
	DeleteWindow      time.Duration `envconfig:"DELETE_WINDOW" default:"1h"`
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`

	// Payment provider credentials.
	PaymentBaseURL   string `envconfig:"PAYMENT_BASE_URL" default:"https://api.razorpay.com/v1"`
	PaymentKeyID     string `envconfig:"PAYMENT_KEY_ID" default:""`
	PaymentKeySecret string `envconfig:"PAYMENT_KEY_SECRET" default:""`
}

func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
