package discord

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
)

func TestWireMessage_ToDomain(t *testing.T) {
	logger := zerolog.Nop()

	m := wireMessage{
		ID:        "300",
		ChannelID: "10",
		Content:   "hi",
		Timestamp: "2024-05-01T12:00:00.000000+00:00",
		Author:    wireUser{ID: "20", Username: "alice"},
	}

	got, ok := m.toDomain(&logger)
	require.True(t, ok)
	assert.Equal(t, domain.Snowflake(300), got.ID)
	assert.False(t, got.HasReference)
	assert.False(t, got.SentAt.IsZero())
}

func TestWireMessage_ToDomain_UnparseableIDDropped(t *testing.T) {
	logger := zerolog.Nop()

	m := wireMessage{
		ID:        "not-a-snowflake",
		ChannelID: "10",
		Author:    wireUser{ID: "20"},
	}

	_, ok := m.toDomain(&logger)
	assert.False(t, ok)
}

func TestWireMessage_ToDomain_SystemReference(t *testing.T) {
	logger := zerolog.Nop()

	// A reply marker without a message id (crosspost, system message)
	// keeps the marker but names no target.
	m := wireMessage{
		ID:        "300",
		ChannelID: "10",
		Author:    wireUser{ID: "20"},
		Reference: &wireReference{ChannelID: "10"},
	}

	got, ok := m.toDomain(&logger)
	require.True(t, ok)
	assert.True(t, got.HasReference)
	assert.Zero(t, got.ReplyTo)
}

func TestWireMessage_ToDomain_ReferenceDefaultsToSameChannel(t *testing.T) {
	logger := zerolog.Nop()

	m := wireMessage{
		ID:        "300",
		ChannelID: "10",
		Author:    wireUser{ID: "20"},
		Reference: &wireReference{MessageID: "100"},
	}

	got, ok := m.toDomain(&logger)
	require.True(t, ok)
	assert.Equal(t, domain.Snowflake(100), got.ReplyTo)
	assert.Equal(t, domain.Snowflake(10), got.ReplyChannel)
}
