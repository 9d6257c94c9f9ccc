package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
	cerrors "github.com/veylan/discord-rank-bot/internal/core/errors"
	"github.com/veylan/discord-rank-bot/internal/observability"
	"github.com/veylan/discord-rank-bot/internal/presence"
	"github.com/veylan/discord-rank-bot/internal/scorer"
)

// Resolver turns a message's reply reference into the persisted snowflake of
// the referenced message, fetching and inserting missing ancestors on demand.
// Resolution failures are contained: a reply that cannot be resolved links to
// nothing, it never fails the referring message's ingestion.
type Resolver struct {
	source   Source
	store    Store
	cache    presence.Cache
	entities *entities
	maxDepth int
	logger   *zerolog.Logger
}

func NewResolver(source Source, store Store, cache presence.Cache, maxDepth int, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		source:   source,
		store:    store,
		cache:    cache,
		entities: &entities{store: store, cache: cache},
		maxDepth: maxDepth,
		logger:   logger,
	}
}

// Resolve walks the reply chain of msg. Ancestors inserted along the way
// have their scores and counts accumulated into acc, so the final flush
// stays consistent with the message rows. Returns nil when msg is not a
// reply or the referenced message is unreachable.
func (r *Resolver) Resolve(ctx context.Context, acc *accumulator, msg *domain.SourceMessage) *domain.Snowflake {
	if !msg.HasReference {
		return nil
	}

	if msg.ReplyTo == 0 {
		r.logger.Warn().Str("message", msg.ID.String()).Msg("reply marker without a referenced message id")
		observability.ReplyFetches.WithLabelValues("unknown_id").Inc()

		return nil
	}

	visited := map[domain.Snowflake]struct{}{msg.ID: {}}

	depth := 0
	id := r.resolve(ctx, acc, msg.ReplyTo, msg.ReplyChannel, r.maxDepth, visited, &depth)

	observability.ReplyChainDepth.Observe(float64(depth))

	return id
}

func (r *Resolver) resolve(ctx context.Context, acc *accumulator, id, channel domain.Snowflake, budget int, visited map[domain.Snowflake]struct{}, depth *int) *domain.Snowflake {
	if r.cache.Contains(domain.KindMessage, id) {
		observability.ReplyFetches.WithLabelValues("cached").Inc()

		return &id
	}

	persisted, err := r.store.FindMessage(ctx, id)

	switch {
	case err == nil:
		r.cache.MarkPresent(domain.KindMessage, id)
		observability.ReplyFetches.WithLabelValues("persisted").Inc()

		return &persisted.Snowflake
	case !cerrors.Is(err, cerrors.ErrNotFound):
		r.logger.Error().Err(err).Str("message", id.String()).Msg("reply target lookup failed")
		observability.ReplyFetches.WithLabelValues("storage_error").Inc()

		return nil
	}

	if budget <= 0 {
		r.logger.Error().Err(cerrors.ErrDepthExceeded).Str("message", id.String()).Msg("reply chain exceeded depth budget")
		observability.ReplyFetches.WithLabelValues("depth_exceeded").Inc()

		return nil
	}

	if _, seen := visited[id]; seen {
		r.logger.Error().Str("message", id.String()).Msg("reply chain cycle detected")
		observability.ReplyFetches.WithLabelValues("cycle").Inc()

		return nil
	}

	visited[id] = struct{}{}
	*depth++

	fetched, err := r.source.FetchMessage(ctx, channel, id)
	if err != nil {
		r.logger.Warn().Err(err).Str("message", id.String()).Str("channel", channel.String()).Msg("reply target unreachable")
		observability.ReplyFetches.WithLabelValues("fetch_failed").Inc()

		return nil
	}

	// The ancestor's own reply chain resolves first: its insert needs the
	// resolved link, and the chain only points at older messages.
	var replyTo *domain.Snowflake
	if fetched.HasReference && fetched.ReplyTo != 0 {
		replyTo = r.resolve(ctx, acc, fetched.ReplyTo, fetched.ReplyChannel, budget-1, visited, depth)
	}

	if inserted := r.insertAncestor(ctx, acc, fetched, replyTo); !inserted {
		return nil
	}

	observability.ReplyFetches.WithLabelValues("fetched").Inc()

	return &fetched.ID
}

// insertAncestor persists a fetched reply target with a windowless content
// score. The anti-spam window only reflects send order within the run, which
// an ancestor fetched out of band does not participate in.
func (r *Resolver) insertAncestor(ctx context.Context, acc *accumulator, msg *domain.SourceMessage, replyTo *domain.Snowflake) bool {
	if _, err := r.entities.ensureChannel(ctx, acc.guild, msg.Channel, ""); err != nil {
		r.logger.Error().Err(err).Str("channel", msg.Channel.String()).Msg("ensure ancestor channel failed")

		return false
	}

	created, err := r.entities.ensureUser(ctx, acc.guild, msg.Author, msg.AuthorName)
	if err != nil {
		r.logger.Error().Err(err).Str("user", msg.Author.String()).Msg("ensure ancestor author failed")

		return false
	}

	if created {
		acc.addUser()
	}

	score := scorer.ScoreContent(msg.Content)

	if err := r.store.InsertMessage(ctx, &domain.Message{
		Snowflake: msg.ID,
		Content:   msg.Content,
		Score:     score,
		Author:    msg.Author,
		Channel:   msg.Channel,
		ReplyTo:   replyTo,
		SentAt:    msg.SentAt,
	}); err != nil {
		// A lost race with another chain inserting the same ancestor is
		// equivalent to finding it persisted.
		if cerrors.Is(err, cerrors.ErrDuplicate) {
			r.cache.MarkPresent(domain.KindMessage, msg.ID)

			return true
		}

		r.logger.Error().Err(err).Str("message", msg.ID.String()).Msg("insert ancestor failed")

		return false
	}

	r.cache.MarkPresent(domain.KindMessage, msg.ID)
	acc.addMessage(msg.Channel, msg.Author, score)

	return true
}
