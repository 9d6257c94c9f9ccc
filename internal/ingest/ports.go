// Package ingest implements the incremental ingestion pipeline: per-channel
// history pagination, per-message scoring and reply resolution, and the final
// aggregate delta flush.
package ingest

import (
	"context"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
)

// Source is the remote message API boundary the pipeline consumes.
type Source interface {
	// FetchPage returns up to limit messages older than the before cursor,
	// newest first. An empty page signals end of history.
	FetchPage(ctx context.Context, channelID, before domain.Snowflake, limit int) ([]domain.SourceMessage, error)
	// FetchMessage returns a single message, or ErrMessageNotFound /
	// ErrForbidden when it is deleted or inaccessible.
	FetchMessage(ctx context.Context, channelID, messageID domain.Snowflake) (*domain.SourceMessage, error)
}

// Store is the persistence boundary the pipeline consumes. *storage.DB
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	MessageExists(ctx context.Context, id domain.Snowflake) (bool, error)
	FindMessage(ctx context.Context, id domain.Snowflake) (*domain.Message, error)
	InsertMessage(ctx context.Context, m *domain.Message) error
	ChannelScoreSum(ctx context.Context, channel domain.Snowflake) (float64, error)

	EntityExists(ctx context.Context, kind domain.EntityKind, id domain.Snowflake) (bool, error)
	InsertGuild(ctx context.Context, g *domain.Guild) error
	InsertChannel(ctx context.Context, c *domain.Channel) error
	InsertUser(ctx context.Context, u *domain.User) error

	ApplyGuildDelta(ctx context.Context, id domain.Snowflake, score float64, msgCount, userCount int64) error
	ApplyDelta(ctx context.Context, kind domain.EntityKind, id domain.Snowflake, score float64, count int64) error

	DeleteGuild(ctx context.Context, id domain.Snowflake) error
}
