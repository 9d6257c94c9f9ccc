package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
	cerrors "github.com/veylan/discord-rank-bot/internal/core/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := zerolog.Nop()

	return NewClient(Config{BaseURL: srv.URL, Token: "secret", RPS: 1000}, &logger)
}

func TestClient_FetchPage(t *testing.T) {
	var gotPath, gotQuery, gotAuth string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")

		fmt.Fprint(w, `[
			{"id":"300","channel_id":"10","content":"newest","timestamp":"2024-05-01T12:00:00.000000+00:00","author":{"id":"20","username":"alice"}},
			{"id":"200","channel_id":"10","content":"older","timestamp":"2024-05-01T11:00:00.000000+00:00","author":{"id":"21","username":"bob","bot":true}}
		]`)
	})

	msgs, err := c.FetchPage(context.Background(), 10, 400, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "/channels/10/messages", gotPath)
	assert.Contains(t, gotQuery, "limit=50")
	assert.Contains(t, gotQuery, "before=400")
	assert.Equal(t, "Bot secret", gotAuth)

	assert.Equal(t, domain.Snowflake(300), msgs[0].ID)
	assert.Equal(t, "alice", msgs[0].AuthorName)
	assert.False(t, msgs[0].AuthorBot)
	assert.False(t, msgs[0].SentAt.IsZero())
	assert.True(t, msgs[1].AuthorBot)
}

func TestClient_FetchPage_NoCursorOmitsBefore(t *testing.T) {
	var gotQuery string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `[]`)
	})

	msgs, err := c.FetchPage(context.Background(), 10, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NotContains(t, gotQuery, "before")
}

func TestClient_FetchMessage_Reply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/10/messages/200", r.URL.Path)
		fmt.Fprint(w, `{"id":"200","channel_id":"10","content":"re","timestamp":"2024-05-01T11:00:00.000000+00:00",
			"author":{"id":"21","username":"bob"},
			"message_reference":{"message_id":"100","channel_id":"10"}}`)
	})

	msg, err := c.FetchMessage(context.Background(), 10, 200)
	require.NoError(t, err)

	assert.True(t, msg.HasReference)
	assert.Equal(t, domain.Snowflake(100), msg.ReplyTo)
	assert.Equal(t, domain.Snowflake(10), msg.ReplyChannel)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "forbidden", status: http.StatusForbidden, want: cerrors.ErrForbidden},
		{name: "not found", status: http.StatusNotFound, want: cerrors.ErrMessageNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := c.FetchMessage(context.Background(), 10, 200)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_RetriesAfterThrottle(t *testing.T) {
	calls := 0

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"retry_after":0.01}`)

			return
		}

		fmt.Fprint(w, `[]`)
	})

	_, err := c.FetchPage(context.Background(), 10, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestClient_UnboundedThrottleSurfacesRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"retry_after":3600}`)
	})

	_, err := c.FetchPage(context.Background(), 10, 0, 100)
	assert.ErrorIs(t, err, cerrors.ErrRateLimited)
}

func TestClient_GetGuild(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/guilds/1", r.URL.Path)
		fmt.Fprint(w, `{"id":"1","name":"test guild"}`)
	})

	guild, err := c.GetGuild(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Snowflake(1), guild.ID)
	assert.Equal(t, "test guild", guild.Name)
}

func TestClient_ListGuildChannels_FiltersNonText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[
			{"id":"10","name":"general","type":0},
			{"id":"11","name":"voice","type":2},
			{"id":"12","name":"news","type":5},
			{"id":"13","name":"dev","type":0}
		]`)
	})

	channels, err := c.ListGuildChannels(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "general", channels[0].Name)
	assert.Equal(t, "dev", channels[1].Name)
}
