// Package domain holds the core entity types shared across storage, the
// remote source client, and the ingestion pipeline.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Snowflake is an externally-assigned 64-bit identifier. Snowflakes are
// time-ordered and globally unique within their entity kind, which makes
// them usable both as primary keys and as pagination cursors.
type Snowflake int64

// ParseSnowflake parses the decimal wire representation of a snowflake.
func ParseSnowflake(s string) (Snowflake, error) {
	id, err := snowflake.ParseString(s)
	if err != nil {
		return 0, err
	}

	return Snowflake(id), nil
}

func (s Snowflake) String() string {
	return snowflake.ID(s).String()
}

// Int64 returns the raw value for storage as BIGINT.
func (s Snowflake) Int64() int64 {
	return int64(s)
}

// EntityKind discriminates the aggregate entity kinds tracked by the
// presence cache and the delta maps.
type EntityKind string

const (
	KindGuild   EntityKind = "guild"
	KindChannel EntityKind = "channel"
	KindUser    EntityKind = "user"
	KindMessage EntityKind = "message"
)

// Guild is the root aggregate. Counters only ever grow during ingestion.
type Guild struct {
	Snowflake    Snowflake
	Name         string
	Score        float64
	MessageCount int64
	UserCount    int64
}

// Channel belongs to exactly one guild; deleting the guild cascades.
type Channel struct {
	Snowflake    Snowflake
	Name         string
	Score        float64
	MessageCount int64
	Guild        Snowflake
}

// User is keyed by the author snowflake. The guild field records the first
// guild that observed the author ("home" guild).
type User struct {
	Snowflake    Snowflake
	Name         string
	Score        float64
	MessageCount int64
	Guild        Snowflake
}

// Message is immutable after insertion; the score is fixed at ingestion time.
// ReplyTo is nil when the message is not a reply or when the referenced
// message could not be fetched.
type Message struct {
	Snowflake Snowflake
	Content   string
	Score     float64
	Author    Snowflake
	Channel   Snowflake
	ReplyTo   *Snowflake
	SentAt    time.Time
}

// SourceMessage is a message as delivered by the remote API, before scoring
// and persistence.
type SourceMessage struct {
	ID         Snowflake
	Channel    Snowflake
	Author     Snowflake
	AuthorName string
	AuthorBot  bool
	Content    string
	SentAt     time.Time

	// HasReference is set when the message carries a reply marker at all;
	// ReplyTo/ReplyChannel stay zero for system references that do not
	// name a concrete message.
	HasReference bool
	ReplyTo      Snowflake
	ReplyChannel Snowflake
}

// GuildRef and ChannelRef are the caller-supplied handles for an ingestion
// run; names are needed for lazy row creation.
type GuildRef struct {
	ID   Snowflake
	Name string
}

type ChannelRef struct {
	ID   Snowflake
	Name string
}

// Delta accumulates score and count increments for one entity during a run.
type Delta struct {
	Score float64
	Count int64
}

// IngestionReport summarizes a completed ingestion run for the caller.
type IngestionReport struct {
	RunID        string
	MessageCount int
	Skipped      int
	Channels     int
	Elapsed      time.Duration
}
