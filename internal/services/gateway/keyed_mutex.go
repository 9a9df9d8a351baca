package gateway

import (
	"context"
	"sync"
)

// keyedMutex serialises work per key. Waiters on a key are granted the lock in the order
// they called Lock. Entries are removed once no caller holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyQueue
}

// keyQueue exists only while its key is held. Ownership passes by closing the head waiter.
type keyQueue struct {
	waiters []chan struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyQueue)}
}

// Lock blocks until key is free or ctx is done and returns the matching unlock
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	queue, held := k.locks[key]
	if !held {
		k.locks[key] = &keyQueue{}
		k.mu.Unlock()
		return k.releaser(key), nil
	}

	ready := make(chan struct{})
	queue.waiters = append(queue.waiters, ready)
	k.mu.Unlock()

	select {
	case <-ready:
		return k.releaser(key), nil
	case <-ctx.Done():
	}

	k.mu.Lock()
	for i, w := range queue.waiters {
		if w == ready {
			queue.waiters = append(queue.waiters[:i], queue.waiters[i+1:]...)
			k.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	k.mu.Unlock()

	// ownership was handed over while ctx was being cancelled
	k.release(key)
	return nil, ctx.Err()
}

func (k *keyedMutex) releaser(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { k.release(key) })
	}
}

func (k *keyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	queue := k.locks[key]
	if len(queue.waiters) == 0 {
		delete(k.locks, key)
		return
	}

	next := queue.waiters[0]
	queue.waiters = queue.waiters[1:]
	close(next)
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
