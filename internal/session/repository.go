package session

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Repository defines the concurrency-safe contract for the set of sessions
// owned by a Service.
type Repository interface {
	// Add stores a new session. Adding an id twice returns ErrSessionExists.
	Add(s *Session) error

	// AddBelow is Add that first checks, under the same lock, that fewer
	// than limit sessions are active. A limit <= 0 means no limit.
	AddBelow(s *Session, limit int) error

	// Get returns the session with the given id, ended or not.
	Get(id ID) (*Session, bool)

	// End marks the session ended and returns it. Ending an ended session
	// returns it again without error.
	End(id ID) (*Session, error)

	// Purge deletes every ended session and returns how many were removed.
	Purge() int

	// List returns all session ids in ascending order.
	List() []ID

	// ActiveSessionCount returns the number of sessions that are not ended.
	// Used for metrics.
	ActiveSessionCount() int
}

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when adding a session id twice.
	ErrSessionExists = errors.New("session already exists")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// It uses a Store for persistence; by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// Add implements Repository.Add.
func (r *InMemoryRepository) Add(s *Session) error {
	return r.AddBelow(s, 0)
}

// AddBelow implements Repository.AddBelow.
func (r *InMemoryRepository) AddBelow(s *Session, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit > 0 && r.activeLocked() >= limit {
		return ErrTooManySessions
	}
	if _, exists := r.store.GetSession(s.ID); exists {
		return errors.Wrapf(ErrSessionExists, "id %s", s.ID)
	}
	r.store.SetSession(s)
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id ID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.store.GetSession(id)
}

// End implements Repository.End.
func (r *InMemoryRepository) End(id ID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.store.GetSession(id)
	if !exists {
		return nil, ErrSessionNotFound
	}
	s.markEnded()
	return s, nil
}

// Purge implements Repository.Purge.
func (r *InMemoryRepository) Purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, id := range r.store.ListSessionIDs() {
		if s, ok := r.store.GetSession(id); ok && s.Ended() {
			r.store.DeleteSession(id)
			n++
		}
	}
	return n
}

// List implements Repository.List.
func (r *InMemoryRepository) List() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.store.ListSessionIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.activeLocked()
}

// activeLocked counts sessions that are not ended.
// Caller must hold r.mu.
func (r *InMemoryRepository) activeLocked() int {
	n := 0
	for _, id := range r.store.ListSessionIDs() {
		if s, ok := r.store.GetSession(id); ok && !s.Ended() {
			n++
		}
	}
	return n
}
