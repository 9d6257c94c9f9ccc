package ingest

import (
	"context"
	"fmt"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
	cerrors "github.com/veylan/discord-rank-bot/internal/core/errors"
	"github.com/veylan/discord-rank-bot/internal/presence"
)

// entities centralizes the lazy exists-or-create pattern shared by the
// coordinator and the reply resolver. The read-then-write race under
// concurrent ingestion is settled by the unique key: a duplicate insert is
// treated the same as a lost existence race and folded into "already
// present".
type entities struct {
	store Store
	cache presence.Cache
}

// ensure makes sure the entity row exists, creating it via insert when
// missing. Returns true when this call created the row.
func (e *entities) ensure(ctx context.Context, kind domain.EntityKind, id domain.Snowflake, insert func(ctx context.Context) error) (bool, error) {
	if e.cache.Contains(kind, id) {
		return false, nil
	}

	exists, err := e.store.EntityExists(ctx, kind, id)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", kind, id, err)
	}

	if exists {
		e.cache.MarkPresent(kind, id)

		return false, nil
	}

	if err := insert(ctx); err != nil {
		if cerrors.Is(err, cerrors.ErrDuplicate) {
			e.cache.MarkPresent(kind, id)

			return false, nil
		}

		return false, fmt.Errorf("create %s %s: %w", kind, id, err)
	}

	e.cache.MarkPresent(kind, id)

	return true, nil
}

func (e *entities) ensureGuild(ctx context.Context, ref domain.GuildRef) (bool, error) {
	return e.ensure(ctx, domain.KindGuild, ref.ID, func(ctx context.Context) error {
		return e.store.InsertGuild(ctx, &domain.Guild{Snowflake: ref.ID, Name: ref.Name})
	})
}

func (e *entities) ensureChannel(ctx context.Context, guild, id domain.Snowflake, name string) (bool, error) {
	return e.ensure(ctx, domain.KindChannel, id, func(ctx context.Context) error {
		return e.store.InsertChannel(ctx, &domain.Channel{Snowflake: id, Name: name, Guild: guild})
	})
}

func (e *entities) ensureUser(ctx context.Context, guild, id domain.Snowflake, name string) (bool, error) {
	return e.ensure(ctx, domain.KindUser, id, func(ctx context.Context) error {
		return e.store.InsertUser(ctx, &domain.User{Snowflake: id, Name: name, Guild: guild})
	})
}
