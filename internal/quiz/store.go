package quiz

import (
	"context"
	"sync"
	"time"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 2 * time.Hour

// Store holds sessions keyed by id. Get returns a copy; the only way to
// change a stored session is Update.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error

	// Update runs fn on a copy of the session with exclusive access to that
	// id and stores the result only if fn returns nil. Calls for different
	// ids never block each other.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
}

// clone copies the mutable parts of s. Questions are immutable and shared.
func clone(s *Session) *Session {
	c := *s
	c.UserAnswers = make(map[int]UserAnswer, len(s.UserAnswers))
	for k, v := range s.UserAnswers {
		c.UserAnswers[k] = v
	}
	return &c
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

type memoryEntry struct {
	mu         sync.Mutex
	session    *Session
	lastAccess time.Time
	deleted    bool
}

// MemoryStore keeps sessions in process memory with a per-session lock.
// Sessions idle for longer than the TTL are removed by Sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{entries: make(map[string]*memoryEntry), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) entry(id string) (*memoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	e, ok := m.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}
	e.lastAccess = m.now()
	return clone(e.session), nil
}

func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	e := &memoryEntry{session: clone(s), lastAccess: m.now()}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entries[s.ID]; ok {
		old.mu.Lock()
		old.deleted = true
		old.mu.Unlock()
	}
	m.entries[s.ID] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	e, ok := m.entry(id)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}

	// fn works on a copy so a failed update leaves nothing half-written.
	next := clone(e.session)
	if err := fn(next); err != nil {
		return nil, err
	}
	e.session = next
	e.lastAccess = m.now()
	return clone(next), nil
}

// Sweep removes sessions idle since before now-TTL and returns how many
// were removed.
func (m *MemoryStore) Sweep(now time.Time) int {
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.entries {
		e.mu.Lock()
		if e.lastAccess.Before(cutoff) {
			e.deleted = true
			delete(m.entries, id)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Len reports how many sessions are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Janitor calls Sweep every interval until ctx is done.
func (m *MemoryStore) Janitor(ctx context.Context, interval time.Duration, onSweep func(removed int)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}
