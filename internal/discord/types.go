package discord

import (
	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
)

// Wire types for the subset of the REST API this client consumes.
// Snowflakes arrive as decimal strings, timestamps as ISO-8601.

type wireUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type wireReference struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
}

type wireMessage struct {
	ID        string         `json:"id"`
	ChannelID string         `json:"channel_id"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Author    wireUser       `json:"author"`
	Reference *wireReference `json:"message_reference,omitempty"`
}

type wireGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

// channelTypeGuildText is the API discriminator for plain text channels.
const channelTypeGuildText = 0

// toDomain converts a wire message, dropping unparseable IDs rather than
// failing the page. A reply marker without a message ID (system messages,
// crossposts) keeps HasReference set with a zero ReplyTo.
func (m *wireMessage) toDomain(logger *zerolog.Logger) (domain.SourceMessage, bool) {
	id, err := domain.ParseSnowflake(m.ID)
	if err != nil {
		logger.Warn().Str("id", m.ID).Msg("unparseable message id, skipping")
		return domain.SourceMessage{}, false
	}

	channel, err := domain.ParseSnowflake(m.ChannelID)
	if err != nil {
		logger.Warn().Str("id", m.ID).Str("channel_id", m.ChannelID).Msg("unparseable channel id, skipping")
		return domain.SourceMessage{}, false
	}

	author, err := domain.ParseSnowflake(m.Author.ID)
	if err != nil {
		logger.Warn().Str("id", m.ID).Str("author_id", m.Author.ID).Msg("unparseable author id, skipping")
		return domain.SourceMessage{}, false
	}

	out := domain.SourceMessage{
		ID:         id,
		Channel:    channel,
		Author:     author,
		AuthorName: m.Author.Username,
		AuthorBot:  m.Author.Bot,
		Content:    m.Content,
	}

	if m.Timestamp != "" {
		if ts, err := dateparse.ParseAny(m.Timestamp); err == nil {
			out.SentAt = ts
		} else {
			logger.Warn().Str("id", m.ID).Str("timestamp", m.Timestamp).Msg("unparseable timestamp")
		}
	}

	if m.Reference != nil {
		out.HasReference = true

		if m.Reference.MessageID != "" {
			if replyTo, err := domain.ParseSnowflake(m.Reference.MessageID); err == nil {
				out.ReplyTo = replyTo
			}
		}

		if m.Reference.ChannelID != "" {
			if replyChan, err := domain.ParseSnowflake(m.Reference.ChannelID); err == nil {
				out.ReplyChannel = replyChan
			}
		}

		// A reference whose channel is unstated points into the same channel.
		if out.ReplyChannel == 0 {
			out.ReplyChannel = channel
		}
	}

	return out, true
}
