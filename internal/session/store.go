package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry holds one session's state. Passes on the same session are
// serialized through Lock and Unlock.
type Entry struct {
	id      string
	mu      sync.Mutex
	state   *State
	element *list.Element

	// Guarded by the store mutex.
	lastUsed time.Time
	busy     int
}

// ID returns the session id.
func (e *Entry) ID() string { return e.id }

// Lock acquires exclusive access to the session.
func (e *Entry) Lock() { e.mu.Lock() }

// Unlock releases the session.
func (e *Entry) Unlock() { e.mu.Unlock() }

// Snapshot returns a deep copy of the state. Callers must hold the lock.
func (e *Entry) Snapshot() *State { return e.state.Clone() }

// Commit replaces the stored state. Callers must hold the lock.
func (e *Entry) Commit(s *State) { e.state = s }

// Options configures a Store.
type Options struct {
	// TTL evicts sessions idle longer than this. Zero disables expiry.
	TTL time.Duration
	// Capacity bounds the number of live sessions. Zero means unbounded.
	Capacity int
	Logger   *zap.Logger
	// OnChange, when set, receives the live session count after every
	// insertion or eviction.
	OnChange func(active int)
}

// Store is an in-process session registry with TTL and LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   *list.List // front = most recently used
	opts    Options
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[string]*Entry),
		order:   list.New(),
		opts:    opts,
		now:     time.Now,
	}
}

// New allocates a session with a fresh random id.
func (s *Store) New() *Entry {
	return s.GetOrCreate(uuid.NewString())
}

// GetOrCreate returns the entry for id, allocating an empty state for
// unknown ids. It never fails. The returned entry is pinned against
// eviction until Release is called.
func (s *Store) GetOrCreate(id string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[id]; ok {
		e.lastUsed = now
		e.busy++
		s.order.MoveToFront(e.element)
		return e
	}

	e := &Entry{id: id, state: NewState(id, now), lastUsed: now, busy: 1}
	e.element = s.order.PushFront(e)
	s.entries[id] = e
	s.evictOverCapacity()
	s.changed()
	return e
}

// Release unpins an entry returned by GetOrCreate or New.
func (s *Store) Release(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.busy > 0 {
		e.busy--
	}
	e.lastUsed = s.now()
}

// Get returns the entry for id without creating it.
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// Reset applies the exercise reset to the session id. The new exercise
// starts after the existing history. Unknown ids are created first.
func (s *Store) Reset(id string) {
	e := s.GetOrCreate(id)
	defer s.Release(e)

	e.Lock()
	defer e.Unlock()

	st := e.Snapshot()
	st.ResetExercise(len(st.Messages))
	st.UpdatedAt = s.now()
	e.Commit(st)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes every idle entry whose TTL has elapsed and returns how many
// were removed.
func (s *Store) Sweep() int {
	if s.opts.TTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.opts.TTL)
	removed := 0
	for el := s.order.Back(); el != nil; {
		e := el.Value.(*Entry)
		prev := el.Prev()
		if e.busy == 0 && e.lastUsed.Before(cutoff) {
			s.remove(e)
			removed++
		}
		el = prev
	}
	if removed > 0 {
		s.opts.Logger.Debug("expired sessions", zap.Int("count", removed))
		s.changed()
	}
	return removed
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.opts.TTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// evictOverCapacity drops least recently used idle entries. Must be
// called with the lock held.
func (s *Store) evictOverCapacity() {
	if s.opts.Capacity <= 0 {
		return
	}
	for el := s.order.Back(); el != nil && len(s.entries) > s.opts.Capacity; {
		e := el.Value.(*Entry)
		prev := el.Prev()
		if e.busy == 0 {
			s.remove(e)
			s.opts.Logger.Debug("evicted session", zap.String("session_id", e.id))
		}
		el = prev
	}
}

// remove must be called with the lock held.
func (s *Store) remove(e *Entry) {
	s.order.Remove(e.element)
	delete(s.entries, e.id)
}

func (s *Store) changed() {
	if s.opts.OnChange != nil {
		s.opts.OnChange(len(s.entries))
	}
}
