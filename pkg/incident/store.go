package incident

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Option configures a Store.
type Option func(*Store)

// WithCap sets the retention cap. Non-positive values keep DefaultCap.
func WithCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cap = n
		}
	}
}

// WithRepository persists every mutation through repo.
func WithRepository(repo Repository) Option {
	return func(s *Store) { s.repo = repo }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the bounded incident list. Iteration order is insertion order,
// newest first, regardless of incident timestamps.
type Store struct {
	mu     sync.RWMutex
	items  []Incident
	cap    int
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		cap:    DefaultCap,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory list with the repository's newest incidents.
// Without a repository it does nothing.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	recent, err := s.repo.Recent(ctx, s.cap)
	if err != nil {
		return fmt.Errorf("incident: load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]Incident, 0, len(recent))
	for _, inc := range recent {
		if inc.Notes == nil {
			inc.Notes = []Note{}
		}
		s.items = append(s.items, inc)
	}
	s.logger.Info("incidents loaded", "count", len(s.items))
	return nil
}

// Add records a new incident and returns it.
func (s *Store) Add(ctx context.Context, d Draft) (Incident, error) {
	inc := Incident{
		ID:         uuid.NewString(),
		Timestamp:  s.now(),
		WorkerID:   d.WorkerID,
		Type:       d.Verdict.Type,
		Severity:   d.Verdict.Severity,
		Confidence: d.Verdict.Confidence,
		Details:    d.Verdict.Details,
		Notes:      []Note{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Insert(ctx, inc); err != nil {
			return Incident{}, fmt.Errorf("incident: add: %w", err)
		}
	}

	s.items = append(s.items, Incident{})
	copy(s.items[1:], s.items)
	s.items[0] = inc
	if len(s.items) > s.cap {
		s.items = s.items[:s.cap]
	}
	return inc.clone(), nil
}

// Resolve marks an incident acknowledged. Unknown ids and incidents already
// acknowledged are left alone.
func (s *Store) Resolve(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || s.items[i].Acknowledged {
		return nil
	}
	if s.repo != nil {
		if err := s.repo.Acknowledge(ctx, id); err != nil {
			return fmt.Errorf("incident: resolve %s: %w", id, err)
		}
	}
	s.items[i].Acknowledged = true
	return nil
}

// Delete removes an incident. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			return fmt.Errorf("incident: delete %s: %w", id, err)
		}
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

// AddNote appends an operator note to an incident.
func (s *Store) AddNote(ctx context.Context, id, content string) (Note, error) {
	if strings.TrimSpace(content) == "" {
		return Note{}, &ValidationError{Field: "note", Reason: "content is empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Note{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	note := Note{Timestamp: s.now(), Content: content}
	if s.repo != nil {
		if err := s.repo.AppendNote(ctx, id, note); err != nil {
			return Note{}, fmt.Errorf("incident: add note %s: %w", id, err)
		}
	}
	s.items[i].Notes = append(s.items[i].Notes, note)
	return note, nil
}

// Get returns a copy of one incident.
func (s *Store) Get(id string) (Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return Incident{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.items[i].clone(), nil
}

// List returns a copy of all incidents, newest first.
func (s *Store) List() []Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Incident, len(s.items))
	for i, inc := range s.items {
		out[i] = inc.clone()
	}
	return out
}

// Len returns the number of retained incidents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Unacknowledged counts incidents no operator has resolved yet.
func (s *Store) Unacknowledged() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, inc := range s.items {
		if !inc.Acknowledged {
			n++
		}
	}
	return n
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
