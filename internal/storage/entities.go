package storage

import (
	"context"
	"fmt"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
)

// entityTables maps aggregate entity kinds onto their tables. The three
// tables share the snowflake/name/score/message_count column shape, which
// keeps the existence check and delta upsert generic.
var entityTables = map[domain.EntityKind]string{
	domain.KindGuild:   "guilds",
	domain.KindChannel: "channels",
	domain.KindUser:    "users",
}

// EntityExists reports whether an entity row is already persisted.
func (db *DB) EntityExists(ctx context.Context, kind domain.EntityKind, id domain.Snowflake) (bool, error) {
	table, ok := entityTables[kind]
	if !ok {
		return false, fmt.Errorf("entity exists: unknown kind %q", kind)
	}

	var exists bool
	if err := db.Pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE snowflake = $1)`, table),
		id.Int64()).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s exists %d: %w", kind, id.Int64(), err)
	}

	return exists, nil
}

// InsertGuild creates a guild row with zeroed counters. Duplicate snowflakes
// return ErrDuplicate so callers can fall back to a re-read.
func (db *DB) InsertGuild(ctx context.Context, g *domain.Guild) error {
	if _, err := db.Pool.Exec(ctx,
		`INSERT INTO guilds (snowflake, name, score, message_count, user_count)
		 VALUES ($1, $2, $3, $4, $5)`,
		g.Snowflake.Int64(), sanitizeUTF8(g.Name), g.Score, g.MessageCount, g.UserCount); err != nil {
		return fmt.Errorf("insert guild %d: %w", g.Snowflake.Int64(), mapError(err))
	}

	return nil
}

func (db *DB) InsertChannel(ctx context.Context, c *domain.Channel) error {
	if _, err := db.Pool.Exec(ctx,
		`INSERT INTO channels (snowflake, name, score, message_count, guild_snowflake)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.Snowflake.Int64(), sanitizeUTF8(c.Name), c.Score, c.MessageCount, c.Guild.Int64()); err != nil {
		return fmt.Errorf("insert channel %d: %w", c.Snowflake.Int64(), mapError(err))
	}

	return nil
}

func (db *DB) InsertUser(ctx context.Context, u *domain.User) error {
	if _, err := db.Pool.Exec(ctx,
		`INSERT INTO users (snowflake, name, score, message_count, guild_snowflake)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.Snowflake.Int64(), sanitizeUTF8(u.Name), u.Score, u.MessageCount, u.Guild.Int64()); err != nil {
		return fmt.Errorf("insert user %d: %w", u.Snowflake.Int64(), mapError(err))
	}

	return nil
}

// ApplyGuildDelta adds accumulated score/count/user-count increments to a
// guild row. Counters are only ever increased by ingestion, never set.
func (db *DB) ApplyGuildDelta(ctx context.Context, id domain.Snowflake, score float64, msgCount, userCount int64) error {
	if _, err := db.Pool.Exec(ctx,
		`UPDATE guilds
		 SET score = score + $2, message_count = message_count + $3, user_count = user_count + $4
		 WHERE snowflake = $1`,
		id.Int64(), score, msgCount, userCount); err != nil {
		return fmt.Errorf("apply guild delta %d: %w", id.Int64(), err)
	}

	return nil
}

// ApplyDelta adds accumulated score/count increments to a channel or user
// row.
func (db *DB) ApplyDelta(ctx context.Context, kind domain.EntityKind, id domain.Snowflake, score float64, count int64) error {
	table, ok := entityTables[kind]
	if !ok || kind == domain.KindGuild {
		return fmt.Errorf("apply delta: unsupported kind %q", kind)
	}

	if _, err := db.Pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET score = score + $2, message_count = message_count + $3 WHERE snowflake = $1`, table),
		id.Int64(), score, count); err != nil {
		return fmt.Errorf("apply %s delta %d: %w", kind, id.Int64(), err)
	}

	return nil
}

// DeleteGuild removes a guild and, through cascading foreign keys, all of
// its channels, users, and messages. Destructive; only the explicit reset
// path calls it.
func (db *DB) DeleteGuild(ctx context.Context, id domain.Snowflake) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM guilds WHERE snowflake = $1`, id.Int64()); err != nil {
		return fmt.Errorf("delete guild %d: %w", id.Int64(), err)
	}

	return nil
}
