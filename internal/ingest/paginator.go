package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
	"github.com/veylan/discord-rank-bot/internal/observability"
)

// remotePageLimit is the source API's page-size cap.
const remotePageLimit = 100

// Paginator walks one channel's history backwards from the head (or from a
// caller-supplied cursor), hiding the remote page-size cap. It is a lazy,
// finite, single-use sequence: each instance serves exactly one channel walk.
type Paginator struct {
	source  Source
	channel domain.Snowflake
	logger  *zerolog.Logger

	// cursor is the snowflake of the last returned message; the next page
	// request asks for messages strictly older than it. Zero means start
	// from the channel head.
	cursor    domain.Snowflake
	pageLimit int
	// remaining is the retrieval quota; negative means unbounded.
	remaining int

	buffer  []domain.SourceMessage
	fetched bool
	done    bool
}

// NewPaginator configures a history walk over channel. maxTotal bounds the
// number of messages returned; zero or negative means unbounded. A non-zero
// before cursor starts the walk below that snowflake.
func NewPaginator(source Source, channel, before domain.Snowflake, maxTotal, pageLimit int, logger *zerolog.Logger) *Paginator {
	if pageLimit <= 0 || pageLimit > remotePageLimit {
		pageLimit = remotePageLimit
	}

	remaining := maxTotal
	if maxTotal <= 0 {
		remaining = -1
	}

	return &Paginator{
		source:    source,
		channel:   channel,
		logger:    logger,
		cursor:    before,
		pageLimit: pageLimit,
		remaining: remaining,
	}
}

// Next returns the next message in the walk, or (nil, nil) when the sequence
// is exhausted. A fetch failure on the very first page degrades to an empty
// sequence; a failure on a later page propagates, because silently dropping
// the tail of a history would desynchronize aggregates from message rows.
func (p *Paginator) Next(ctx context.Context) (*domain.SourceMessage, error) {
	if len(p.buffer) == 0 && !p.done {
		if err := p.fetch(ctx); err != nil {
			if !p.fetched {
				p.logger.Warn().Err(err).Str("channel", p.channel.String()).Msg("initial history fetch failed, treating channel as empty")
				p.done = true

				return nil, nil
			}

			return nil, err
		}
	}

	if len(p.buffer) == 0 {
		return nil, nil
	}

	msg := p.buffer[0]
	p.buffer = p.buffer[1:]
	p.cursor = msg.ID

	return &msg, nil
}

// Drain pulls the remaining sequence into a slice.
func (p *Paginator) Drain(ctx context.Context) ([]domain.SourceMessage, error) {
	var out []domain.SourceMessage

	for {
		msg, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}

		if msg == nil {
			return out, nil
		}

		out = append(out, *msg)
	}
}

func (p *Paginator) fetch(ctx context.Context) error {
	limit := p.pageLimit
	if p.remaining >= 0 && p.remaining < limit {
		limit = p.remaining
	}

	if limit == 0 {
		p.done = true

		return nil
	}

	page, err := p.source.FetchPage(ctx, p.channel, p.cursor, limit)
	if err != nil {
		return fmt.Errorf("fetch history page: %w", err)
	}

	p.fetched = true

	observability.PagesFetched.WithLabelValues(p.channel.String()).Inc()

	if len(page) == 0 {
		p.done = true

		return nil
	}

	if p.remaining >= 0 {
		p.remaining -= len(page)
		if p.remaining <= 0 {
			// The source may overfill the request; trim to the quota.
			if p.remaining < 0 {
				page = page[:len(page)+p.remaining]
				p.remaining = 0
			}

			p.done = true
		}
	}

	p.buffer = page

	return nil
}
