package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (k *keyedMutex) waiting(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if queue, ok := k.locks[key]; ok {
		return len(queue.waiters)
	}
	return 0
}

func TestKeyedMutexGrantsInArrivalOrder(t *testing.T) {
	k := newKeyedMutex()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, "u1")
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release, err := k.Lock(ctx, "u1")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			release()
		}(i)

		// queue each waiter before starting the next
		require.Eventually(t, func() bool {
			return k.waiting("u1") == i+1
		}, time.Second, time.Millisecond)
	}

	unlock()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutexCancelledWaiter(t *testing.T) {
	k := newKeyedMutex()

	unlock, err := k.Lock(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := k.Lock(ctx, "u1")
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return k.waiting("u1") == 1
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled Lock() did not return")
	}

	assert.Equal(t, 0, k.waiting("u1"))

	unlock()
	assert.Equal(t, 0, k.size())

	// the key is free again after the cancelled waiter left the queue
	again, err := k.Lock(context.Background(), "u1")
	require.NoError(t, err)
	again()
}

func TestKeyedMutexUnlockIsIdempotent(t *testing.T) {
	k := newKeyedMutex()

	unlock, err := k.Lock(context.Background(), "u1")
	require.NoError(t, err)

	unlock()
	unlock()

	assert.Equal(t, 0, k.size())
}

func TestAskCancelledWhileQueued(t *testing.T) {
	completer := &scriptedCompleter{verdict: "YES"}
	gw, store := newGateway(completer, nil, Options{})

	unlock, err := gw.locks.Lock(context.Background(), "u1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = gw.Ask(ctx, "hello", "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	turns, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, turns)
	assert.Empty(t, completer.answerCalls())
}
