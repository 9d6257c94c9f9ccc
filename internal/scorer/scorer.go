// Package scorer assigns each message a numeric score rewarding substantive,
// non-repetitive content, with a per-author anti-spam window.
package scorer

import (
	"math"
	"strings"
	"sync"

	"github.com/veylan/discord-rank-bot/internal/core/domain"
)

const (
	// windowSize is the number of recent contents kept per author for
	// duplicate detection.
	windowSize = 5

	diversityWeight = 0.7
	lengthWeight    = 0.3
	componentScale  = 50
)

// Scorer computes message scores. Authors are independent; calls for the
// same author must observe true send order, so each author's window is
// guarded by its own lock.
type Scorer struct {
	mu      sync.Mutex
	windows map[domain.Snowflake]*authorWindow
}

type authorWindow struct {
	mu     sync.Mutex
	recent []string
}

func New() *Scorer {
	return &Scorer{
		windows: make(map[domain.Snowflake]*authorWindow),
	}
}

// Score computes the score for content against the author's rolling window.
// An exact duplicate of any windowed entry scores zero; either way the
// content is pushed onto the window, evicting the oldest past capacity.
func (s *Scorer) Score(author domain.Snowflake, content string) float64 {
	w := s.window(author)

	w.mu.Lock()
	defer w.mu.Unlock()

	duplicate := false

	for _, prev := range w.recent {
		if prev == content {
			duplicate = true
			break
		}
	}

	w.recent = append(w.recent, content)
	if len(w.recent) > windowSize {
		w.recent = w.recent[1:]
	}

	if duplicate {
		return 0
	}

	return ScoreContent(content)
}

// ScoreContent computes the windowless content score. Used directly for
// reply ancestors fetched out of send order, where the anti-spam window
// would compare against the wrong neighborhood.
func ScoreContent(content string) float64 {
	words := strings.Fields(content)
	total := len(words)

	diversity := 0.0

	if total > 0 {
		unique := make(map[string]struct{}, total)
		for _, w := range words {
			unique[w] = struct{}{}
		}

		diversity = float64(len(unique)) / float64(total) * componentScale
	}

	length := math.Sqrt(float64(len(content))) * componentScale

	score := diversityWeight*diversity + lengthWeight*length

	if math.IsNaN(score) || score < 0 {
		return 0
	}

	return score
}

func (s *Scorer) window(author domain.Snowflake) *authorWindow {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[author]
	if !ok {
		w = &authorWindow{}
		s.windows[author] = w
	}

	return w
}
