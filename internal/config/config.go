// Package config loads application configuration from the environment.  A
// .env file in the working directory is read first when present; real
// environment variables take precedence over it.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; nested structs add their prefix.
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Port string `env:"APP_PORT" envDefault:"8080"`

	DB        DBConfig        `envPrefix:"DB_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Stripe    StripeConfig    `envPrefix:"STRIPE_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	GatewayTimeout     time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	LockTTL            time.Duration `env:"LOCK_TTL" envDefault:"10s"`
	LockWait           time.Duration `env:"LOCK_WAIT" envDefault:"5s"`
	CompletionInterval time.Duration `env:"COMPLETION_INTERVAL" envDefault:"1h"`
	Migrations         bool          `env:"MIGRATIONS" envDefault:"true"`
}

// DBConfig is the MySQL connection.
type DBConfig struct {
	User string `env:"USER,required,notEmpty"`
	Pass string `env:"PASS"`
	Host string `env:"HOST" envDefault:"127.0.0.1"`
	Port string `env:"PORT" envDefault:"3306"`
	Name string `env:"NAME,required,notEmpty"`
}

// StripeConfig holds the payment gateway credentials.  An empty webhook
// secret disables the webhook endpoint.
type StripeConfig struct {
	SecretKey     string `env:"SECRET_KEY,required,notEmpty"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.RateLimit.normalize()
	return cfg, nil
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}
