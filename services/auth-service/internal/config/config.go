// Package config loads the auth service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	Token     TokenConfig
	Google    GoogleConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	MailQueue MailQueueConfig
	Discovery DiscoveryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Name            string        `env:"SERVICE_NAME"     envDefault:"auth-service"`
	Port            int           `env:"PORT"             envDefault:"5001"`
	GRPCHealthPort  int           `env:"GRPC_HEALTH_PORT" envDefault:"5002"`
	BaseURL         string        `env:"APP_BASE_URL"     envDefault:"http://localhost:5001"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type MongoConfig struct {
	URI      string `env:"DB_STRING"`
	Database string `env:"MONGO_DATABASE" envDefault:"echo"`
}

type TokenConfig struct {
	SessionSecret      string        `env:"JWT_SECRET"`
	SessionTTL         time.Duration `env:"SESSION_TOKEN_TTL"         envDefault:"168h"`
	VerificationSecret string        `env:"VERIFICATION_TOKEN_SECRET"`
	VerificationTTL    time.Duration `env:"VERIFICATION_TOKEN_TTL"    envDefault:"1h"`
	Issuer             string        `env:"TOKEN_ISSUER"              envDefault:"echo-auth-api"`
	Audience           string        `env:"TOKEN_AUDIENCE"            envDefault:"echo-app"`
}

type GoogleConfig struct {
	ClientID string `env:"GOOGLE_CLIENT_ID"`
}

type RateLimitConfig struct {
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"10"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW"   envDefault:"15m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// MailQueueConfig switches verification emails to the asynq worker when
// RedisURL is set.
type MailQueueConfig struct {
	RedisURL    string `env:"MAIL_QUEUE_REDIS_URL"`
	Concurrency int    `env:"MAIL_QUEUE_CONCURRENCY" envDefault:"5"`
}

type DiscoveryConfig struct {
	ConsulEnabled    bool   `env:"CONSUL_ENABLED"    envDefault:"false"`
	ConsulAddress    string `env:"CONSUL_ADDRESS"    envDefault:"localhost:8500"`
	AdvertiseAddress string `env:"SERVICE_ADDRESS"   envDefault:"localhost"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	loadEnvFile()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile() {
	if err := godotenv.Load(); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env"))
}

func (c *Config) validate() error {
	var errs []error

	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("DB_STRING is required"))
	}
	if c.Token.SessionSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Token.VerificationSecret == "" {
		errs = append(errs, errors.New("VERIFICATION_TOKEN_SECRET is required"))
	}
	if c.Token.SessionSecret != "" && c.Token.SessionSecret == c.Token.VerificationSecret {
		errs = append(errs, errors.New("JWT_SECRET and VERIFICATION_TOKEN_SECRET must differ"))
	}
	if c.Token.SessionTTL <= 0 || c.Token.VerificationTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.Google.ClientID == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID is required"))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("APP_BASE_URL must be an http(s) URL, got %q", c.Server.BaseURL))
	}

	return errors.Join(errs...)
}
