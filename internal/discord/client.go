// Package discord is the REST client for the remote message source. It
// exposes exactly the boundary the ingestion pipeline consumes: paged
// channel history, single-message fetch, and guild/channel enumeration.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
	cerrors "github.com/veylan/discord-rank-bot/internal/core/errors"
	"github.com/veylan/discord-rank-bot/internal/observability"
)

const (
	defaultTimeout = 30 * time.Second

	// MaxPageSize is the remote API's hard cap on history page size.
	MaxPageSize = 100

	// maxRateLimitWait bounds how long a single request honors a
	// retry_after hint before surfacing ErrRateLimited.
	maxRateLimitWait = 60 * time.Second

	headerAuthorization = "Authorization"
)

type Config struct {
	BaseURL string
	Token   string
	// RPS throttles all requests through one shared limiter so concurrent
	// channel fetchers respect the remote budget collectively.
	RPS     float64
	Timeout time.Duration
}

type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *zerolog.Logger
}

func NewClient(cfg Config, logger *zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:      logger,
	}
}

// FetchPage retrieves up to limit messages older than the before cursor
// (newest first, as the API orders them). A zero cursor fetches from the
// channel head. An empty result signals end of history.
func (c *Client) FetchPage(ctx context.Context, channelID, before domain.Snowflake, limit int) ([]domain.SourceMessage, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	if before != 0 {
		params.Set("before", before.String())
	}

	endpoint := fmt.Sprintf("%s/channels/%s/messages?%s", c.baseURL, channelID, params.Encode())

	body, err := c.get(ctx, endpoint, cerrors.ErrChannelNotFound)
	if err != nil {
		observability.SourceRequests.WithLabelValues("page", "error").Inc()

		return nil, fmt.Errorf("fetch page for channel %s: %w", channelID, err)
	}

	var wire []wireMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse history page: %w", err)
	}

	observability.SourceRequests.WithLabelValues("page", "ok").Inc()

	msgs := make([]domain.SourceMessage, 0, len(wire))

	for i := range wire {
		if m, ok := wire[i].toDomain(c.logger); ok {
			msgs = append(msgs, m)
		}
	}

	return msgs, nil
}

// FetchMessage retrieves a single message by (channel, id). Deleted or
// inaccessible messages surface as ErrMessageNotFound / ErrForbidden.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID domain.Snowflake) (*domain.SourceMessage, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/messages/%s", c.baseURL, channelID, messageID)

	body, err := c.get(ctx, endpoint, cerrors.ErrMessageNotFound)
	if err != nil {
		observability.SourceRequests.WithLabelValues("message", "error").Inc()

		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}

	var wire wireMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	observability.SourceRequests.WithLabelValues("message", "ok").Inc()

	m, ok := wire.toDomain(c.logger)
	if !ok {
		return nil, cerrors.ErrMalformedReference
	}

	return &m, nil
}

// GetGuild fetches the guild handle (id + display name).
func (c *Client) GetGuild(ctx context.Context, guildID domain.Snowflake) (domain.GuildRef, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/guilds/%s", c.baseURL, guildID), cerrors.ErrNotFound)
	if err != nil {
		return domain.GuildRef{}, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}

	var wire wireGuild
	if err := json.Unmarshal(body, &wire); err != nil {
		return domain.GuildRef{}, fmt.Errorf("parse guild: %w", err)
	}

	id, err := domain.ParseSnowflake(wire.ID)
	if err != nil {
		return domain.GuildRef{}, fmt.Errorf("parse guild id %q: %w", wire.ID, err)
	}

	return domain.GuildRef{ID: id, Name: wire.Name}, nil
}

// ListGuildChannels enumerates the guild's text channels.
func (c *Client) ListGuildChannels(ctx context.Context, guildID domain.Snowflake) ([]domain.ChannelRef, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/guilds/%s/channels", c.baseURL, guildID), cerrors.ErrNotFound)
	if err != nil {
		return nil, fmt.Errorf("list channels for guild %s: %w", guildID, err)
	}

	var wire []wireChannel
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse channel list: %w", err)
	}

	channels := make([]domain.ChannelRef, 0, len(wire))

	for _, ch := range wire {
		if ch.Type != channelTypeGuildText {
			continue
		}

		id, err := domain.ParseSnowflake(ch.ID)
		if err != nil {
			c.logger.Warn().Str("channel_id", ch.ID).Msg("unparseable channel id, skipping")
			continue
		}

		channels = append(channels, domain.ChannelRef{ID: id, Name: ch.Name})
	}

	return channels, nil
}

// get performs one authenticated GET, waiting on the shared limiter first
// and honoring retry_after hints on throttled responses. notFound is the
// sentinel a 404 maps to, since it depends on what the endpoint addresses.
func (c *Client) get(ctx context.Context, endpoint string, notFound error) ([]byte, error) {
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		req.Header.Set(headerAuthorization, "Bot "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("read response: %w", readErr)
			}

			return body, nil

		case http.StatusTooManyRequests:
			wait := retryAfter(body)
			if wait <= 0 || wait > maxRateLimitWait {
				return nil, fmt.Errorf("%w: retry_after %s", cerrors.ErrRateLimited, wait)
			}

			observability.SourceRateLimited.Inc()
			c.logger.Warn().Dur("retry_after", wait).Msg("throttled by remote API")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

		case http.StatusForbidden:
			return nil, cerrors.ErrForbidden

		case http.StatusNotFound:
			return nil, notFound

		default:
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}
}

// retryAfter extracts the throttle hint from a 429 body.
func retryAfter(body []byte) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return 0
	}

	return time.Duration(payload.RetryAfter * float64(time.Second))
}
