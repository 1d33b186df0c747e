package limiter

import (
	"sync"
)

// KeyLimiter allows at most one in-flight operation per key
type KeyLimiter struct {
	mu          sync.Mutex
	active      map[string]struct{}
	maxGlobal   int
	globalCount int
}

// NewKeyLimiter creates a new key limiter.
// maxGlobalConcurrent of 0 means unlimited global concurrent operations.
func NewKeyLimiter(maxGlobalConcurrent int) *KeyLimiter {
	return &KeyLimiter{
		active:    make(map[string]struct{}),
		maxGlobal: maxGlobalConcurrent,
	}
}

// TryAcquire attempts to acquire the slot for key.
// Returns false if key is already held or the global limit is reached.
func (l *KeyLimiter) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.active[key]; exists {
		return false
	}

	// 0 means unlimited
	if l.maxGlobal > 0 && l.globalCount >= l.maxGlobal {
		return false
	}

	l.active[key] = struct{}{}
	l.globalCount++
	return true
}

// Release releases the slot for key
func (l *KeyLimiter) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.active[key]; exists {
		delete(l.active, key)
		l.globalCount--
	}
}

// ActiveCount returns the number of held keys
func (l *KeyLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.globalCount
}

// IsActive checks if key is currently held
func (l *KeyLimiter) IsActive(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.active[key]
	return exists
}
