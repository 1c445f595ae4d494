package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Key addresses one query result: a resource kind plus the tournament it
// belongs to (0 for tournament-independent resources).
type Key struct {
	Kind         string
	TournamentID int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.TournamentID)
}

type entry struct {
	value     any
	fetchedAt time.Time
	ttl       time.Duration
}

func (e *entry) fresh(now time.Time) bool {
	return !e.fetchedAt.IsZero() && now.Sub(e.fetchedAt) < e.ttl
}

// Store is a process-wide observable query cache. Reads within a key's
// freshness window return the cached value, concurrent misses share one
// fetch, and every write publishes to that key's subscribers.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry
	subs    map[Key]map[int]func(Key)
	nextSub int
	group   singleflight.Group
	logger  zerolog.Logger
}

func New(logger zerolog.Logger) *Store {
	return &Store{
		entries: make(map[Key]*entry),
		subs:    make(map[Key]map[int]func(Key)),
		logger:  logger,
	}
}

// Get returns the cached value for key when it is still fresh; otherwise it
// fetches, joining an already in-flight fetch for the same key instead of
// issuing a duplicate.
func (s *Store) Get(ctx context.Context, key Key, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && e.fresh(time.Now()) {
		v := e.value
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(key.String(), func() (any, error) {
		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.Put(key, fetched, ttl)
		return fetched, nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("fetch failed")
		return nil, err
	}
	return v, nil
}

// Peek returns the cached value without fetching, fresh or not.
func (s *Store) Peek(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Put stores a value fetched now and publishes the write.
func (s *Store) Put(key Key, value any, ttl time.Duration) {
	s.mu.Lock()
	s.entries[key] = &entry{value: value, fetchedAt: time.Now(), ttl: ttl}
	subs := s.subscribers(key)
	s.mu.Unlock()
	publish(key, subs)
}

// Seed stores a value as of fetchedAt, typically loaded from persistence on
// boot. A seed older than its ttl is served by Peek but refetched by Get.
func (s *Store) Seed(key Key, value any, fetchedAt time.Time, ttl time.Duration) {
	s.mu.Lock()
	if _, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return
	}
	s.entries[key] = &entry{value: value, fetchedAt: fetchedAt, ttl: ttl}
	subs := s.subscribers(key)
	s.mu.Unlock()
	publish(key, subs)
}

// Update applies a pure prev→next transform under the store lock and
// publishes the result. The transform must not block; back-to-back writes to
// the same key therefore never lose an update. The entry is considered fresh
// as of the write, matching push semantics: a push is newer than any poll.
func (s *Store) Update(key Key, ttl time.Duration, transform func(prev any, ok bool) any) {
	s.mu.Lock()
	e, ok := s.entries[key]
	var prev any
	if ok {
		prev = e.value
	}
	next := transform(prev, ok)
	s.entries[key] = &entry{value: next, fetchedAt: time.Now(), ttl: ttl}
	subs := s.subscribers(key)
	s.mu.Unlock()
	publish(key, subs)
}

// Invalidate marks the key stale while keeping its value, so Peek still
// serves the old data but the next Get refetches.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.fetchedAt = time.Time{}
	subs := s.subscribers(key)
	s.mu.Unlock()
	publish(key, subs)
}

// Subscribe registers fn to run after every write to key. The returned func
// unsubscribes and is safe to call more than once.
func (s *Store) Subscribe(key Key, fn func(Key)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(Key))
	}
	s.subs[key][id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs[key], id)
		s.mu.Unlock()
	}
}

func (s *Store) subscribers(key Key) []func(Key) {
	fns := make([]func(Key), 0, len(s.subs[key]))
	for _, fn := range s.subs[key] {
		fns = append(fns, fn)
	}
	return fns
}

func publish(key Key, subs []func(Key)) {
	for _, fn := range subs {
		fn(key)
	}
}
