// Package session holds the per-client state a recording needs: the design
// system audits run against and the candidate keys already seen.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/glimpse/internal/audit"
	"github.com/raysh454/glimpse/internal/journey"
	"github.com/raysh454/glimpse/internal/logging"
)

var (
	ErrNotFound = errors.New("session: not found")
	ErrClosed   = errors.New("session: closed")
)

// Session is one client's recording context.
type Session struct {
	ID         string
	Name       string
	Design     audit.DesignSystem
	Candidates *journey.CandidateSet
	CreatedAt  time.Time

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Info is the serialisable view of a session.
type Info struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	Design     audit.DesignSystem `json:"design_system"`
	Candidates int                `json:"candidates"`
	CreatedAt  time.Time          `json:"created_at"`
	LastUsed   time.Time          `json:"last_used"`
}

func (s *Session) Info() Info {
	return Info{
		ID:         s.ID,
		Name:       s.Name,
		Design:     s.Design,
		Candidates: s.Candidates.Len(),
		CreatedAt:  s.CreatedAt,
		LastUsed:   s.LastUsed(),
	}
}

// Registry tracks open sessions. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	logger   logging.Logger
}

func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
		logger:   logger.With(logging.Field{Key: "component", Value: "sessions"}),
	}
}

// Open starts a session. The design system is normalised and validated.
func (r *Registry) Open(name string, ds audit.DesignSystem) (*Session, error) {
	ds = ds.Normalize()
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	now := r.now()
	s := &Session{
		ID:         uuid.NewString(),
		Name:       name,
		Design:     ds,
		Candidates: journey.NewCandidateSet(),
		CreatedAt:  now,
		lastUsed:   now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.logger.Info("session opened", logging.Field{Key: "session", Value: s.ID})
	return s, nil
}

// Get returns an open session and marks it used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.touch(r.now())
	return s, nil
}

func (r *Registry) Close(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.logger.Info("session closed", logging.Field{Key: "session", Value: id})
	return nil
}

// List returns open sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Expire closes sessions idle for longer than maxIdle and returns how many
// were closed.
func (r *Registry) Expire(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		r.logger.Info("expired idle sessions", logging.Field{Key: "count", Value: n})
	}
	return n
}
