package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
)

// FindMessage looks a message up by its snowflake. Returns ErrNotFound when
// no row matches.
func (db *DB) FindMessage(ctx context.Context, id domain.Snowflake) (*domain.Message, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT snowflake, content, score, author_snowflake, channel_snowflake, reply_to_snowflake, sent_at
		 FROM messages WHERE snowflake = $1`, id.Int64())

	var (
		m       domain.Message
		replyTo sql.NullInt64
	)

	if err := row.Scan(&m.Snowflake, &m.Content, &m.Score, &m.Author, &m.Channel, &replyTo, &m.SentAt); err != nil {
		return nil, fmt.Errorf("find message %d: %w", id.Int64(), mapError(err))
	}

	if replyTo.Valid {
		r := domain.Snowflake(replyTo.Int64)
		m.ReplyTo = &r
	}

	return &m, nil
}

// MessageExists reports whether a message snowflake is already persisted.
func (db *DB) MessageExists(ctx context.Context, id domain.Snowflake) (bool, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE snowflake = $1)`, id.Int64()).Scan(&exists); err != nil {
		return false, fmt.Errorf("message exists %d: %w", id.Int64(), err)
	}

	return exists, nil
}

// InsertMessage persists a message row. The snowflake is the natural primary
// key; inserting the same snowflake twice returns ErrDuplicate.
func (db *DB) InsertMessage(ctx context.Context, m *domain.Message) error {
	var replyTo sql.NullInt64
	if m.ReplyTo != nil {
		replyTo = sql.NullInt64{Int64: m.ReplyTo.Int64(), Valid: true}
	}

	if _, err := db.Pool.Exec(ctx,
		`INSERT INTO messages (snowflake, content, score, author_snowflake, channel_snowflake, reply_to_snowflake, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.Snowflake.Int64(), sanitizeUTF8(m.Content), m.Score,
		m.Author.Int64(), m.Channel.Int64(), replyTo, m.SentAt); err != nil {
		return fmt.Errorf("insert message %d: %w", m.Snowflake.Int64(), mapError(err))
	}

	return nil
}

// ChannelScoreSum returns the sum of per-message scores in a channel; used
// to cross-check aggregate counters.
func (db *DB) ChannelScoreSum(ctx context.Context, channel domain.Snowflake) (float64, error) {
	var sum float64
	if err := db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(score), 0) FROM messages WHERE channel_snowflake = $1`,
		channel.Int64()).Scan(&sum); err != nil {
		return 0, fmt.Errorf("channel score sum %d: %w", channel.Int64(), err)
	}

	return sum, nil
}
