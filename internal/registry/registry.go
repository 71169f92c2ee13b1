package registry

import (
	"fmt"
	"sync"
)

// Registry is a concurrency-safe map whose owner decides when entries come
// and go. A key can be held by at most one value at a time.
type Registry[K comparable, V any] interface {
	Get(key K) (value V, err error)
	Register(key K, value V) (success bool)
	Remove(key K)
	Range(fn func(key K, value V) bool)
	Values() []V
	Len() int
}

type registry[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

var (
	ErrNotFound = fmt.Errorf("entry not found")
)

func NewRegistry[K comparable, V any]() Registry[K, V] {
	return &registry[K, V]{
		items: make(map[K]V),
	}
}

func (r *registry[K, V]) Get(key K) (value V, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.items[key]
	if !ok {
		return value, ErrNotFound
	}
	return value, nil
}

func (r *registry[K, V]) Register(key K, value V) (success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[key]; exists {
		return false
	}

	r.items[key] = value
	return true
}

func (r *registry[K, V]) Remove(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, key)
}

// Range calls fn on a snapshot, so fn may call back into the registry.
func (r *registry[K, V]) Range(fn func(key K, value V) bool) {
	r.mu.RLock()
	keys := make([]K, 0, len(r.items))
	values := make([]V, 0, len(r.items))
	for k, v := range r.items {
		keys = append(keys, k)
		values = append(values, v)
	}
	r.mu.RUnlock()

	for i := range keys {
		if !fn(keys[i], values[i]) {
			return
		}
	}
}

func (r *registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.items) == 0 {
		return []V{}
	}

	values := make([]V, 0, len(r.items))
	for _, v := range r.items {
		values = append(values, v)
	}
	return values
}

func (r *registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
