package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	strutil "gatekeeper/pkg/platform/strings"
)

// Mode selects how group messages are handled.
type Mode string

const (
	// ModeChallenge challenges unverified senders.
	ModeChallenge Mode = "challenge"
	// ModeMassVerify verifies every sender without a challenge.
	ModeMassVerify Mode = "mass_verify"
)

// StoreDriver selects the verification record backend.
type StoreDriver string

const (
	StoreMemory   StoreDriver = "memory"
	StoreSQLite   StoreDriver = "sqlite"
	StorePostgres StoreDriver = "postgres"
	StoreRedis    StoreDriver = "redis"
)

// Config is the process configuration, read from the environment.
type Config struct {
	BotToken    string        `env:"BOT_TOKEN,required,unset"`
	APIEndpoint string        `env:"TELEGRAM_API_ENDPOINT" envDefault:"https://api.telegram.org/bot%s/%s"`
	PollTimeout time.Duration `env:"POLL_TIMEOUT" envDefault:"50s"`

	Mode           Mode          `env:"GATEKEEPER_MODE" envDefault:"challenge"`
	GracePeriod    time.Duration `env:"GRACE_PERIOD" envDefault:"15s"`
	CallTimeout    time.Duration `env:"CALL_TIMEOUT" envDefault:"10s"`
	CallbackSecret string        `env:"CALLBACK_SECRET,unset"`
	MessagesFile   string        `env:"MESSAGES_FILE"`

	StoreDriver StoreDriver `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string      `env:"SQLITE_PATH" envDefault:"bot.db"`
	DatabaseURL string      `env:"DATABASE_URL,unset"`
	Redis       RedisConfig `envPrefix:"REDIS_"`

	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":9090"`
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET,unset"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaAuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"gatekeeper.audit"`
	AuditBuffer     int      `env:"AUDIT_BUFFER" envDefault:"1024"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.KafkaBrokers = strutil.DedupeAndTrim(cfg.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeChallenge, ModeMassVerify:
	default:
		errs = append(errs, fmt.Errorf("GATEKEEPER_MODE must be %q or %q, got %q", ModeChallenge, ModeMassVerify, c.Mode))
	}
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.GracePeriod <= 0 {
		errs = append(errs, errors.New("GRACE_PERIOD must be positive"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("CALL_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// AdminEnabled reports whether the admin API should be mounted.
func (c Config) AdminEnabled() bool {
	return c.AdminJWTSecret != ""
}
