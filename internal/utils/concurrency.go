// internal/utils/concurrency.go
package utils

import (
	"context"
	"hash/fnv"
	"sync"

	"golang.org/x/time/rate"
)

// WorkerPool bounds concurrent pipeline units with a semaphore and an
// optional rate limiter pacing job starts.
type WorkerPool struct {
	maxWorkers int
	limiter    *rate.Limiter
	semaphore  chan struct{}
	wg         sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool with the given concurrency. A nil
// limiter disables pacing.
func NewWorkerPool(maxWorkers int, limiter *rate.Limiter) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		limiter:    limiter,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Submit blocks until a worker slot is free, then runs job on its own
// goroutine. When ctx is done before a slot opens, the job is not started
// and ctx.Err() is returned so the caller can defer the unit to a later
// cycle.
func (wp *WorkerPool) Submit(ctx context.Context, job func()) error {
	select {
	case wp.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		if wp.limiter != nil {
			if err := wp.limiter.Wait(ctx); err != nil {
				return
			}
		}
		job()
	}()
	return nil
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// KeyedMutex serializes writers per string key using striped locks, so
// concurrent detections for the same entity pair never race on the
// idempotent upsert.
type KeyedMutex struct {
	stripes []sync.Mutex
}

// NewKeyedMutex creates a KeyedMutex with the given stripe count.
func NewKeyedMutex(stripes int) *KeyedMutex {
	if stripes < 1 {
		stripes = 64
	}
	return &KeyedMutex{stripes: make([]sync.Mutex, stripes)}
}

func (k *KeyedMutex) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &k.stripes[h.Sum32()%uint32(len(k.stripes))]
}

// Lock acquires the stripe owning key.
func (k *KeyedMutex) Lock(key string) {
	k.stripe(key).Lock()
}

// Unlock releases the stripe owning key.
func (k *KeyedMutex) Unlock(key string) {
	k.stripe(key).Unlock()
}

// StringSet is a thread-safe set for tracking pair keys already scored
// within a cycle.
type StringSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewStringSet creates an empty StringSet.
func NewStringSet() *StringSet {
	return &StringSet{seen: make(map[string]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *StringSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Contains returns true if the key has already been added.
func (s *StringSet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[key]
	return exists
}

// Size returns the number of unique keys tracked.
func (s *StringSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
