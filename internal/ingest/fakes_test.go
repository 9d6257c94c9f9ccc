package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
	cerrors "github.com/veylan/discord-rank-bot/internal/core/errors"
	"github.com/veylan/discord-rank-bot/internal/presence"
)

// memStore is an in-memory Store used across the package tests.
type memStore struct {
	mu       sync.Mutex
	guilds   map[domain.Snowflake]*domain.Guild
	channels map[domain.Snowflake]*domain.Channel
	users    map[domain.Snowflake]*domain.User
	messages map[domain.Snowflake]*domain.Message

	// failGuildDeltas / failDeltas make the first N delta upserts of their
	// kind fail with a transient error.
	failGuildDeltas int
	failDeltas      int
}

func newMemStore() *memStore {
	return &memStore{
		guilds:   make(map[domain.Snowflake]*domain.Guild),
		channels: make(map[domain.Snowflake]*domain.Channel),
		users:    make(map[domain.Snowflake]*domain.User),
		messages: make(map[domain.Snowflake]*domain.Message),
	}
}

func (s *memStore) MessageExists(_ context.Context, id domain.Snowflake) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.messages[id]

	return ok, nil
}

func (s *memStore) FindMessage(_ context.Context, id domain.Snowflake) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, cerrors.ErrNotFound
	}

	clone := *m

	return &clone, nil
}

func (s *memStore) InsertMessage(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[m.Snowflake]; ok {
		return cerrors.ErrDuplicate
	}

	clone := *m
	s.messages[m.Snowflake] = &clone

	return nil
}

func (s *memStore) EntityExists(_ context.Context, kind domain.EntityKind, id domain.Snowflake) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case domain.KindGuild:
		_, ok := s.guilds[id]
		return ok, nil
	case domain.KindChannel:
		_, ok := s.channels[id]
		return ok, nil
	case domain.KindUser:
		_, ok := s.users[id]
		return ok, nil
	default:
		return false, nil
	}
}

func (s *memStore) InsertGuild(_ context.Context, g *domain.Guild) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.guilds[g.Snowflake]; ok {
		return cerrors.ErrDuplicate
	}

	clone := *g
	s.guilds[g.Snowflake] = &clone

	return nil
}

func (s *memStore) InsertChannel(_ context.Context, c *domain.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[c.Snowflake]; ok {
		return cerrors.ErrDuplicate
	}

	clone := *c
	s.channels[c.Snowflake] = &clone

	return nil
}

func (s *memStore) InsertUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Snowflake]; ok {
		return cerrors.ErrDuplicate
	}

	clone := *u
	s.users[u.Snowflake] = &clone

	return nil
}

func (s *memStore) ApplyGuildDelta(_ context.Context, id domain.Snowflake, score float64, msgCount, userCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failGuildDeltas > 0 {
		s.failGuildDeltas--
		return errTransient
	}

	g, ok := s.guilds[id]
	if !ok {
		return cerrors.ErrNotFound
	}

	g.Score += score
	g.MessageCount += msgCount
	g.UserCount += userCount

	return nil
}

func (s *memStore) ApplyDelta(_ context.Context, kind domain.EntityKind, id domain.Snowflake, score float64, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failDeltas > 0 {
		s.failDeltas--
		return errTransient
	}

	switch kind {
	case domain.KindChannel:
		c, ok := s.channels[id]
		if !ok {
			return cerrors.ErrNotFound
		}

		c.Score += score
		c.MessageCount += count
	case domain.KindUser:
		u, ok := s.users[id]
		if !ok {
			return cerrors.ErrNotFound
		}

		u.Score += score
		u.MessageCount += count
	}

	return nil
}

func (s *memStore) DeleteGuild(_ context.Context, id domain.Snowflake) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.guilds, id)

	for cid, c := range s.channels {
		if c.Guild != id {
			continue
		}

		for mid, m := range s.messages {
			if m.Channel == cid {
				delete(s.messages, mid)
			}
		}

		delete(s.channels, cid)
	}

	for uid, u := range s.users {
		if u.Guild == id {
			delete(s.users, uid)
		}
	}

	return nil
}

func (s *memStore) ChannelScoreSum(_ context.Context, channel domain.Snowflake) (float64, error) {
	return s.messageScoreSum(channel), nil
}

func (s *memStore) messageScoreSum(channel domain.Snowflake) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := 0.0

	for _, m := range s.messages {
		if m.Channel == channel {
			sum += m.Score
		}
	}

	return sum
}

var errTransient = &transientError{}

type transientError struct{}

func (*transientError) Error() string { return "transient storage error" }

// fakeSource serves channel histories from memory with the remote API's
// newest-first, before-cursor paging contract.
type fakeSource struct {
	mu sync.Mutex
	// histories holds each channel's messages; served newest first.
	histories map[domain.Snowflake][]domain.SourceMessage
	// singles answers FetchMessage lookups, keyed by message ID.
	singles map[domain.Snowflake]domain.SourceMessage

	pageCalls  int
	pageLimits []int
	// failPageCall makes the Nth FetchPage call (1-based) fail; zero
	// disables. failChannels fails every page fetch for the listed channels.
	// panicChannels makes page fetches for the listed channels panic.
	failPageCall  int
	failChannels  map[domain.Snowflake]bool
	panicChannels map[domain.Snowflake]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		histories:     make(map[domain.Snowflake][]domain.SourceMessage),
		singles:       make(map[domain.Snowflake]domain.SourceMessage),
		failChannels:  make(map[domain.Snowflake]bool),
		panicChannels: make(map[domain.Snowflake]bool),
	}
}

func (f *fakeSource) addHistory(channel domain.Snowflake, msgs ...domain.SourceMessage) {
	f.histories[channel] = append(f.histories[channel], msgs...)
	sort.Slice(f.histories[channel], func(i, j int) bool {
		return f.histories[channel][i].ID > f.histories[channel][j].ID
	})
}

func (f *fakeSource) addSingle(msg domain.SourceMessage) {
	f.singles[msg.ID] = msg
}

func (f *fakeSource) FetchPage(_ context.Context, channelID, before domain.Snowflake, limit int) ([]domain.SourceMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pageCalls++
	f.pageLimits = append(f.pageLimits, limit)

	if f.panicChannels[channelID] {
		panic("history fetch blew up")
	}

	if f.failChannels[channelID] || f.pageCalls == f.failPageCall {
		return nil, errTransient
	}

	var page []domain.SourceMessage

	for _, m := range f.histories[channelID] {
		if before != 0 && m.ID >= before {
			continue
		}

		page = append(page, m)
		if len(page) == limit {
			break
		}
	}

	return page, nil
}

func (f *fakeSource) FetchMessage(_ context.Context, _, messageID domain.Snowflake) (*domain.SourceMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.singles[messageID]
	if !ok {
		return nil, cerrors.ErrMessageNotFound
	}

	return &m, nil
}

func sourceMsg(id, channel, author domain.Snowflake, content string) domain.SourceMessage {
	return domain.SourceMessage{
		ID:         id,
		Channel:    channel,
		Author:     author,
		AuthorName: "author",
		Content:    content,
		SentAt:     time.Unix(int64(id), 0),
	}
}

func replyMsg(id, channel, author domain.Snowflake, content string, replyTo domain.Snowflake) domain.SourceMessage {
	m := sourceMsg(id, channel, author, content)
	m.HasReference = true
	m.ReplyTo = replyTo
	m.ReplyChannel = channel

	return m
}

func mustCache(entries int) presence.Cache {
	cache, err := presence.NewCache(entries)
	if err != nil {
		panic(err)
	}

	return cache
}
