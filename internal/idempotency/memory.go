package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec     Record
	expires time.Time
}

// MemoryStore keeps records in process. It is used when no Redis address is configured.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	opts  options
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryEntry), opts: defaults(opts)}
}

// get returns the live entry for k. Callers hold s.mu.
func (s *MemoryStore) get(k string) (memoryEntry, bool) {
	e, ok := s.items[k]
	if ok && !s.opts.now().Before(e.expires) {
		delete(s.items, k)
		return memoryEntry{}, false
	}
	return e, ok
}

func (s *MemoryStore) Lookup(_ context.Context, scope, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(storageKey(scope, key))
	if !ok {
		return nil, nil
	}
	rec := e.rec
	return &rec, nil
}

func (s *MemoryStore) Claim(_ context.Context, scope, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storageKey(scope, key)
	if _, ok := s.get(k); ok {
		return false, nil
	}
	s.items[k] = memoryEntry{rec: Record{State: StatePending}, expires: s.opts.now().Add(s.opts.ttl)}
	return true, nil
}

func (s *MemoryStore) Complete(_ context.Context, scope, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.State = StateDone
	s.items[storageKey(scope, key)] = memoryEntry{rec: rec, expires: s.opts.now().Add(s.opts.ttl)}
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, storageKey(scope, key))
	return nil
}
