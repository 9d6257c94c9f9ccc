package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/veylan/discord-rank-bot/internal/config"
	"github.com/veylan/discord-rank-bot/internal/core/domain"
	"github.com/veylan/discord-rank-bot/internal/discord"
	"github.com/veylan/discord-rank-bot/internal/ingest"
	"github.com/veylan/discord-rank-bot/internal/observability"
	"github.com/veylan/discord-rank-bot/internal/platform/worker"
	"github.com/veylan/discord-rank-bot/internal/presence"
	"github.com/veylan/discord-rank-bot/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "Run a single ingestion pass and exit")
	reset := flag.Bool("reset", false, "Destroy the guild's persisted state before the first ingestion pass")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)
	setLogLevel(cfg.LogLevel, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := storage.New(ctx, cfg.PostgresDSN, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	go func() {
		if err := observability.NewServer(database, cfg.HealthPort, &logger).Start(ctx); err != nil {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	if err := run(ctx, cfg, database, &logger, *once, *reset); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg *config.Config, database *storage.DB, logger *zerolog.Logger, once, reset bool) error {
	client := discord.NewClient(discord.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.BotToken,
		RPS:     cfg.RateLimitRPS,
	}, logger)

	cache, err := presence.NewCache(cfg.PresenceCacheEntries)
	if err != nil {
		return fmt.Errorf("create presence cache: %w", err)
	}

	coordinator := ingest.NewCoordinator(client, database, cache, ingest.Options{
		Workers:          cfg.IngestWorkers,
		PageLimit:        cfg.FetchPageLimit,
		MaxPerChannel:    cfg.MaxMessagesPerChan,
		MaxReplyDepth:    cfg.ReplyMaxDepth,
		FlushMaxAttempts: cfg.FlushMaxAttempts,
	}, logger)

	// Reset is a one-shot destructive flag: only the first pass honors it.
	var pendingReset atomic.Bool
	pendingReset.Store(reset || cfg.ResetOnStart)

	pass := func(ctx context.Context) error {
		guild, channels, err := resolveTargets(ctx, client, cfg, logger)
		if err != nil {
			return err
		}

		report, err := coordinator.Ingest(ctx, guild, channels, pendingReset.Swap(false), nil)
		if err != nil {
			return err
		}

		logger.Info().
			Str("run_id", report.RunID).
			Int("messages", report.MessageCount).
			Int("skipped", report.Skipped).
			Int("channels", report.Channels).
			Dur("elapsed", report.Elapsed).
			Msg("ingestion pass finished")

		return nil
	}

	if once || cfg.RunOnce {
		return pass(ctx)
	}

	return worker.Loop(ctx, worker.Config{
		Name:         "ingest",
		PollInterval: cfg.IngestInterval,
		Process:      pass,
		Logger:       logger,
	})
}

// resolveTargets fetches the guild handle and the channel list for a pass.
// Configured channel IDs restrict the listing; IDs the listing does not
// return are kept with an empty name so lazy row creation still works.
func resolveTargets(ctx context.Context, client *discord.Client, cfg *config.Config, logger *zerolog.Logger) (domain.GuildRef, []domain.ChannelRef, error) {
	guild, err := client.GetGuild(ctx, cfg.Guild().ID)
	if err != nil {
		return domain.GuildRef{}, nil, fmt.Errorf("resolve guild: %w", err)
	}

	listed, err := client.ListGuildChannels(ctx, guild.ID)
	if err != nil {
		return domain.GuildRef{}, nil, fmt.Errorf("resolve channels: %w", err)
	}

	if len(cfg.ChannelIDs) == 0 {
		return guild, listed, nil
	}

	names := make(map[domain.Snowflake]string, len(listed))
	for _, ch := range listed {
		names[ch.ID] = ch.Name
	}

	channels := make([]domain.ChannelRef, 0, len(cfg.ChannelIDs))

	for _, raw := range cfg.ChannelIDs {
		id := domain.Snowflake(raw)

		name, ok := names[id]
		if !ok {
			logger.Warn().Str("channel", id.String()).Msg("configured channel not in guild listing")
		}

		channels = append(channels, domain.ChannelRef{ID: id, Name: name})
	}

	return guild, channels, nil
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func setLogLevel(level string, logger *zerolog.Logger) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		logger.Warn().Str("level", level).Msg("unknown log level, keeping info")

		return
	}

	zerolog.SetGlobalLevel(parsed)
}
