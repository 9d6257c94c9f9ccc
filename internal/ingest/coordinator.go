package ingest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
	cerrors "github.com/veylan/discord-rank-bot/internal/core/errors"
	"github.com/veylan/discord-rank-bot/internal/observability"
	"github.com/veylan/discord-rank-bot/internal/platform/worker"
	"github.com/veylan/discord-rank-bot/internal/presence"
	"github.com/veylan/discord-rank-bot/internal/scorer"
)

const progressEvery = 100

// ProgressFunc receives periodic ingestion progress. Presentation is the
// caller's concern; the pipeline only reports counts.
type ProgressFunc func(processed, total int)

// Options tune the coordinator. Zero values fall back to safe defaults.
type Options struct {
	// Workers bounds concurrent channel pagination tasks.
	Workers int
	// PageLimit is the history page size requested from the source.
	PageLimit int
	// MaxPerChannel caps messages fetched per channel; zero means unbounded.
	MaxPerChannel int
	// MaxReplyDepth bounds reply-chain recursion.
	MaxReplyDepth int
	// FlushMaxAttempts bounds retries of each aggregate upsert.
	FlushMaxAttempts int
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}

	if o.MaxReplyDepth <= 0 {
		o.MaxReplyDepth = 50
	}

	if o.FlushMaxAttempts <= 0 {
		o.FlushMaxAttempts = 5
	}
}

// Coordinator is the ingestion entry point: it fans out pagination per
// channel, processes the merged backlog sequentially, and flushes the
// accumulated aggregate deltas.
type Coordinator struct {
	source   Source
	store    Store
	cache    presence.Cache
	resolver *Resolver
	entities *entities
	opts     Options
	logger   *zerolog.Logger
}

func NewCoordinator(source Source, store Store, cache presence.Cache, opts Options, logger *zerolog.Logger) *Coordinator {
	opts.defaults()

	return &Coordinator{
		source:   source,
		store:    store,
		cache:    cache,
		resolver: NewResolver(source, store, cache, opts.MaxReplyDepth, logger),
		entities: &entities{store: store, cache: cache},
		opts:     opts,
		logger:   logger,
	}
}

// accumulator collects per-entity score/count increments for one run. The
// run's sequential message loop is the only writer.
type accumulator struct {
	guild      domain.Snowflake
	guildDelta domain.Delta
	newUsers   int64
	channels   map[domain.Snowflake]*domain.Delta
	users      map[domain.Snowflake]*domain.Delta
}

func newAccumulator(guild domain.Snowflake) *accumulator {
	return &accumulator{
		guild:    guild,
		channels: make(map[domain.Snowflake]*domain.Delta),
		users:    make(map[domain.Snowflake]*domain.Delta),
	}
}

func (a *accumulator) addMessage(channel, author domain.Snowflake, score float64) {
	a.guildDelta.Score += score
	a.guildDelta.Count++

	ch, ok := a.channels[channel]
	if !ok {
		ch = &domain.Delta{}
		a.channels[channel] = ch
	}

	ch.Score += score
	ch.Count++

	u, ok := a.users[author]
	if !ok {
		u = &domain.Delta{}
		a.users[author] = u
	}

	u.Score += score
	u.Count++
}

func (a *accumulator) addUser() {
	a.newUsers++
}

// Ingest runs the full pipeline for one guild. With reset set, the guild's
// persisted state is destroyed first (cascading to channels, users, and
// messages) and re-ingested from scratch.
func (c *Coordinator) Ingest(ctx context.Context, guild domain.GuildRef, channels []domain.ChannelRef, reset bool, progress ProgressFunc) (*domain.IngestionReport, error) {
	start := time.Now()
	runID := uuid.NewString()

	logger := c.logger.With().Str("run_id", runID).Str("guild", guild.ID.String()).Logger()

	if reset {
		logger.Warn().Msg("resetting guild state before ingestion")

		if err := c.store.DeleteGuild(ctx, guild.ID); err != nil {
			observability.IngestRuns.WithLabelValues("error").Inc()

			return nil, fmt.Errorf("reset guild %s: %w", guild.ID, err)
		}

		// Cached presence now lies about deleted rows; start cold.
		c.cache.Reset()
	}

	backlog := c.collect(ctx, channels, &logger)

	// Rolling windows observe send order within a single run only; a
	// carried-over window would mis-score re-ingested content as spam.
	sc := scorer.New()
	acc := newAccumulator(guild.ID)

	report, err := c.process(ctx, guild, channels, backlog, acc, sc, &logger, progress)
	if err != nil {
		observability.IngestRuns.WithLabelValues("error").Inc()

		return report, err
	}

	if reset {
		c.auditAggregates(ctx, acc, &logger)
	}

	report.RunID = runID
	report.Channels = len(channels)
	report.Elapsed = time.Since(start)

	observability.IngestRuns.WithLabelValues("ok").Inc()
	observability.IngestDurationSeconds.Observe(report.Elapsed.Seconds())

	logger.Info().
		Int("messages", report.MessageCount).
		Int("skipped", report.Skipped).
		Dur("elapsed", report.Elapsed).
		Msg("ingestion run complete")

	return report, nil
}

// collect drains one paginator per channel under a bounded worker pool. A
// channel whose history cannot be fully read contributes nothing; the
// idempotent re-run picks it up later.
func (c *Coordinator) collect(ctx context.Context, channels []domain.ChannelRef, logger *zerolog.Logger) []domain.SourceMessage {
	var (
		mu      sync.Mutex
		backlog []domain.SourceMessage
		wg      sync.WaitGroup
	)

	sem := make(chan struct{}, c.opts.Workers)

	for _, ch := range channels {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)

		go func(ch domain.ChannelRef) {
			defer wg.Done()
			// A panicking fetch must not leak past the WaitGroup.
			defer worker.RecoverPanic(logger, "channel history collection")

			sem <- struct{}{}
			defer func() { <-sem }()

			p := NewPaginator(c.source, ch.ID, 0, c.opts.MaxPerChannel, c.opts.PageLimit, logger)

			msgs, err := p.Drain(ctx)
			if err != nil {
				logger.Error().Err(err).Str("channel", ch.ID.String()).Msg("channel history aborted, dropping its contribution")

				return
			}

			mu.Lock()
			backlog = append(backlog, msgs...)
			mu.Unlock()
		}(ch)
	}

	wg.Wait()

	return backlog
}

// process walks the merged backlog in snowflake order and ingests each
// message. Per-message failures are contained; only the final flush and
// context cancellation propagate.
func (c *Coordinator) process(ctx context.Context, guild domain.GuildRef, channels []domain.ChannelRef, backlog []domain.SourceMessage, acc *accumulator, sc *scorer.Scorer, logger *zerolog.Logger, progress ProgressFunc) (*domain.IngestionReport, error) {
	report := &domain.IngestionReport{}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	sort.Slice(backlog, func(i, j int) bool { return backlog[i].ID < backlog[j].ID })

	channelNames := make(map[domain.Snowflake]string, len(channels))
	for _, ch := range channels {
		channelNames[ch.ID] = ch.Name
	}

	for i := range backlog {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		msg := &backlog[i]

		if c.ingestOne(ctx, acc, sc, guild, channelNames[msg.Channel], msg, logger) {
			report.MessageCount++
			observability.MessagesIngested.WithLabelValues(msg.Channel.String()).Inc()
		} else {
			report.Skipped++
		}

		if progress != nil && (i+1)%progressEvery == 0 {
			progress(i+1, len(backlog))
		}
	}

	if progress != nil {
		progress(len(backlog), len(backlog))
	}

	if err := c.flush(ctx, acc, logger); err != nil {
		return report, err
	}

	return report, nil
}

// ingestOne processes a single message, reporting whether it was inserted.
func (c *Coordinator) ingestOne(ctx context.Context, acc *accumulator, sc *scorer.Scorer, guild domain.GuildRef, channelName string, msg *domain.SourceMessage, logger *zerolog.Logger) bool {
	if msg.AuthorBot {
		observability.MessagesSkipped.WithLabelValues("bot").Inc()

		return false
	}

	if c.cache.Contains(domain.KindMessage, msg.ID) {
		observability.MessagesSkipped.WithLabelValues("duplicate").Inc()

		return false
	}

	exists, err := c.store.MessageExists(ctx, msg.ID)
	if err != nil {
		logger.Error().Err(err).Str("message", msg.ID.String()).Msg("duplicate check failed, skipping message")
		observability.MessagesSkipped.WithLabelValues("storage").Inc()

		return false
	}

	if exists {
		c.cache.MarkPresent(domain.KindMessage, msg.ID)
		observability.MessagesSkipped.WithLabelValues("duplicate").Inc()

		return false
	}

	if !c.ensureRows(ctx, acc, guild, channelName, msg, logger) {
		return false
	}

	score := sc.Score(msg.Author, msg.Content)
	replyTo := c.resolver.Resolve(ctx, acc, msg)

	if err := c.store.InsertMessage(ctx, &domain.Message{
		Snowflake: msg.ID,
		Content:   msg.Content,
		Score:     score,
		Author:    msg.Author,
		Channel:   msg.Channel,
		ReplyTo:   replyTo,
		SentAt:    msg.SentAt,
	}); err != nil {
		if cerrors.Is(err, cerrors.ErrDuplicate) {
			c.cache.MarkPresent(domain.KindMessage, msg.ID)
			observability.MessagesSkipped.WithLabelValues("duplicate").Inc()

			return false
		}

		logger.Error().Err(err).Str("message", msg.ID.String()).Msg("message insert failed, skipping")
		observability.MessagesSkipped.WithLabelValues("storage").Inc()

		return false
	}

	c.cache.MarkPresent(domain.KindMessage, msg.ID)
	acc.addMessage(msg.Channel, msg.Author, score)

	return true
}

func (c *Coordinator) ensureRows(ctx context.Context, acc *accumulator, guild domain.GuildRef, channelName string, msg *domain.SourceMessage, logger *zerolog.Logger) bool {
	if _, err := c.entities.ensureGuild(ctx, guild); err != nil {
		logger.Error().Err(err).Msg("ensure guild failed, skipping message")
		observability.MessagesSkipped.WithLabelValues("storage").Inc()

		return false
	}

	if _, err := c.entities.ensureChannel(ctx, guild.ID, msg.Channel, channelName); err != nil {
		logger.Error().Err(err).Str("channel", msg.Channel.String()).Msg("ensure channel failed, skipping message")
		observability.MessagesSkipped.WithLabelValues("storage").Inc()

		return false
	}

	created, err := c.entities.ensureUser(ctx, guild.ID, msg.Author, msg.AuthorName)
	if err != nil {
		logger.Error().Err(err).Str("user", msg.Author.String()).Msg("ensure user failed, skipping message")
		observability.MessagesSkipped.WithLabelValues("storage").Inc()

		return false
	}

	if created {
		acc.addUser()
	}

	return true
}

// flush applies every accumulated delta as one upsert per entity, each
// independently retried. Failures are collected rather than aborting the
// remaining upserts; any left unapplied makes the run fail, since aggregates
// would otherwise drift from message rows.
func (c *Coordinator) flush(ctx context.Context, acc *accumulator, logger *zerolog.Logger) error {
	failed := 0

	if acc.guildDelta.Count > 0 || acc.newUsers > 0 {
		if err := c.retryUpsert(ctx, func(ctx context.Context) error {
			return c.store.ApplyGuildDelta(ctx, acc.guild, acc.guildDelta.Score, acc.guildDelta.Count, acc.newUsers)
		}); err != nil {
			logger.Error().Err(err).Str("guild", acc.guild.String()).Msg("guild delta flush failed")
			observability.FlushFailures.WithLabelValues(string(domain.KindGuild)).Inc()

			failed++
		}
	}

	failed += c.flushKind(ctx, domain.KindChannel, acc.channels, logger)
	failed += c.flushKind(ctx, domain.KindUser, acc.users, logger)

	if failed > 0 {
		return fmt.Errorf("flush aggregates: %d upserts failed", failed)
	}

	return nil
}

func (c *Coordinator) flushKind(ctx context.Context, kind domain.EntityKind, deltas map[domain.Snowflake]*domain.Delta, logger *zerolog.Logger) int {
	failed := 0

	for id, d := range deltas {
		if err := c.retryUpsert(ctx, func(ctx context.Context) error {
			return c.store.ApplyDelta(ctx, kind, id, d.Score, d.Count)
		}); err != nil {
			logger.Error().Err(err).Str(string(kind), id.String()).Msg("delta flush failed")
			observability.FlushFailures.WithLabelValues(string(kind)).Inc()

			failed++
		}
	}

	return failed
}

// scoreDriftEpsilon absorbs float addition-order differences between the
// accumulator and the SUM over message rows.
const scoreDriftEpsilon = 1e-6

// auditAggregates cross-checks each channel's flushed score against the sum
// over its message rows and returns the number of drifting channels. Only
// meaningful after a reset run, where both start from zero.
func (c *Coordinator) auditAggregates(ctx context.Context, acc *accumulator, logger *zerolog.Logger) int {
	drifted := 0

	for id, d := range acc.channels {
		sum, err := c.store.ChannelScoreSum(ctx, id)
		if err != nil {
			logger.Error().Err(err).Str("channel", id.String()).Msg("aggregate audit query failed")

			continue
		}

		if math.Abs(sum-d.Score) > scoreDriftEpsilon {
			logger.Warn().
				Str("channel", id.String()).
				Float64("aggregate", d.Score).
				Float64("row_sum", sum).
				Msg("channel aggregate drifts from message rows")

			drifted++
		}
	}

	return drifted
}

func (c *Coordinator) retryUpsert(ctx context.Context, op func(ctx context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.opts.FlushMaxAttempts-1)),
		ctx,
	)

	return backoff.RetryNotify(
		func() error { return op(ctx) },
		policy,
		func(_ error, _ time.Duration) { observability.FlushRetries.Inc() },
	)
}
