// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	BotToken    string `env:"BOT_TOKEN,required"`
	APIBaseURL  string `env:"API_BASE_URL" envDefault:"https://discord.com/api/v10"`

	// Guild and channels to ingest. Channels may be empty, in which case
	// the runner enumerates the guild's text channels via the API.
	GuildID    int64   `env:"GUILD_ID,required"`
	ChannelIDs []int64 `env:"CHANNEL_IDS" envSeparator:","`

	// Ingestion tuning.
	IngestWorkers        int     `env:"INGEST_WORKERS" envDefault:"4"`
	FetchPageLimit       int     `env:"FETCH_PAGE_LIMIT" envDefault:"100"`
	MaxMessagesPerChan   int     `env:"MAX_MESSAGES_PER_CHANNEL" envDefault:"0"` // 0 = unbounded
	RateLimitRPS         float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	ReplyMaxDepth        int     `env:"REPLY_MAX_DEPTH" envDefault:"50"`
	FlushMaxAttempts     int     `env:"FLUSH_MAX_ATTEMPTS" envDefault:"5"`
	PresenceCacheEntries int     `env:"PRESENCE_CACHE_ENTRIES" envDefault:"100000"`

	// Runner behavior.
	IngestInterval time.Duration `env:"INGEST_INTERVAL" envDefault:"30m"`
	RunOnce        bool          `env:"RUN_ONCE" envDefault:"false"`
	ResetOnStart   bool          `env:"RESET_ON_START" envDefault:"false"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if cfg.FetchPageLimit > maxRemotePageSize {
		cfg.FetchPageLimit = maxRemotePageSize
	}

	return cfg, nil
}

// maxRemotePageSize is the remote API's hard cap on history page size.
const maxRemotePageSize = 100

// Guild returns the configured guild handle. The name is filled in by the
// runner once the guild is fetched.
func (c *Config) Guild() domain.GuildRef {
	return domain.GuildRef{ID: domain.Snowflake(c.GuildID)}
}
