package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
)

func setRequired(t *testing.T) {
	t.Helper()

	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/rank")
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("GUILD_ID", "123456789")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://discord.com/api/v10", cfg.APIBaseURL)
	assert.Equal(t, 4, cfg.IngestWorkers)
	assert.Equal(t, 100, cfg.FetchPageLimit)
	assert.Equal(t, 0, cfg.MaxMessagesPerChan)
	assert.Equal(t, 50, cfg.ReplyMaxDepth)
	assert.Equal(t, 5, cfg.FlushMaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.IngestInterval)
	assert.False(t, cfg.RunOnce)
	assert.False(t, cfg.ResetOnStart)
	assert.Equal(t, 8080, cfg.HealthPort)
}

func TestLoad_MissingRequired(t *testing.T) {
	// t.Setenv registers the restore; unsetting afterwards leaves the
	// variable absent for the duration of the test only.
	for _, key := range []string{"POSTGRES_DSN", "BOT_TOKEN", "GUILD_ID"} {
		t.Setenv(key, "x")
		require.NoError(t, os.Unsetenv(key))
	}

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_PageLimitClamped(t *testing.T) {
	setRequired(t)
	t.Setenv("FETCH_PAGE_LIMIT", "500")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.FetchPageLimit)
}

func TestLoad_ChannelList(t *testing.T) {
	setRequired(t)
	t.Setenv("CHANNEL_IDS", "111,222,333")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{111, 222, 333}, cfg.ChannelIDs)
}

func TestConfig_Guild(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, domain.Snowflake(123456789), cfg.Guild().ID)
}
