package ratelimit

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store maps actor keys to their State.
type Store interface {
	// Get returns the state for key; ok is false for keys never recorded.
	Get(key string) (st *State, ok bool, err error)
	// GetOrCreate returns the state for key, storing create() if absent.
	// Concurrent callers for one key receive the same *State.
	GetOrCreate(key string, create func() *State) (*State, error)
}

// LRUStore keeps at most size actor states in memory, evicting the least
// recently used. An evicted actor simply starts again from zero usage.
// A caller still holding an evicted *State may count into it after a fresh
// one has replaced it; those counts are lost, which errs on admitting.
type LRUStore struct {
	cache *lru.Cache[string, *State]
}

func NewLRUStore(size int) (*LRUStore, error) {
	cache, err := lru.New[string, *State](size)
	if err != nil {
		return nil, fmt.Errorf("rate limit cache: %w", err)
	}
	return &LRUStore{cache: cache}, nil
}

func (s *LRUStore) Get(key string) (*State, bool, error) {
	st, ok := s.cache.Get(key)
	return st, ok, nil
}

func (s *LRUStore) GetOrCreate(key string, create func() *State) (*State, error) {
	if st, ok := s.cache.Get(key); ok {
		return st, nil
	}
	st := create()
	if prev, ok, _ := s.cache.PeekOrAdd(key, st); ok {
		return prev, nil
	}
	return st, nil
}

func (s *LRUStore) Len() int { return s.cache.Len() }
