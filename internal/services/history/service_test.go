package history

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/internal/infrastructure/redis"
)

func newRedisService(t *testing.T) (*redis.Service, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	svc, err := redis.NewService(context.Background(), redis.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return svc, mr
}

// backends returns a fresh service per backend so every test runs against both stores
func backends(t *testing.T, maxTurns int) map[string]*Service {
	t.Helper()

	redisService, _ := newRedisService(t)

	return map[string]*Service{
		"memory": NewService(nil, maxTurns),
		"redis":  NewService(redisService, maxTurns),
	}
}

func TestNewServiceBackend(t *testing.T) {
	redisService, _ := newRedisService(t)

	assert.Equal(t, "memory", NewService(nil, 0).Backend())
	assert.Equal(t, "redis", NewService(redisService, 0).Backend())
}

func TestNewServiceFallsBackWhenRedisDown(t *testing.T) {
	redisService, mr := newRedisService(t)
	mr.Close()

	assert.Equal(t, "memory", NewService(redisService, 0).Backend())
}

func TestHistoryUnknownUser(t *testing.T) {
	for name, svc := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			turns, err := svc.Get(context.Background(), "nobody")
			require.NoError(t, err)
			assert.NotNil(t, turns)
			assert.Empty(t, turns)
		})
	}
}

func TestHistoryOrdering(t *testing.T) {
	for name, svc := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, svc.Append(ctx, "u1", models.UserTurn("q1"), models.AssistantTurn("a1")))
			require.NoError(t, svc.Append(ctx, "u1", models.UserTurn("q2"), models.AssistantTurn("a2")))

			turns, err := svc.Get(ctx, "u1")
			require.NoError(t, err)

			assert.Equal(t, []models.Turn{
				models.UserTurn("q1"),
				models.AssistantTurn("a1"),
				models.UserTurn("q2"),
				models.AssistantTurn("a2"),
			}, turns)
		})
	}
}

func TestHistoryIsolation(t *testing.T) {
	for name, svc := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, svc.Append(ctx, "alice", models.UserTurn("alice question")))
			require.NoError(t, svc.Append(ctx, "bob", models.UserTurn("bob question")))
			require.NoError(t, svc.Reset(ctx, "bob"))

			alice, err := svc.Get(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, []models.Turn{models.UserTurn("alice question")}, alice)

			bob, err := svc.Get(ctx, "bob")
			require.NoError(t, err)
			assert.Empty(t, bob)
		})
	}
}

func TestHistoryResetIdempotent(t *testing.T) {
	for name, svc := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, svc.Append(ctx, "u1", models.UserTurn("q")))
			require.NoError(t, svc.Reset(ctx, "u1"))
			require.NoError(t, svc.Reset(ctx, "u1"))
			require.NoError(t, svc.Reset(ctx, "never-seen"))

			turns, err := svc.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Empty(t, turns)
		})
	}
}

func TestHistoryMaxTurns(t *testing.T) {
	tests := []struct {
		name     string
		maxTurns int
		appends  int
		want     []string
	}{
		{name: "unbounded", maxTurns: 0, appends: 3, want: []string{"q0", "a0", "q1", "a1", "q2", "a2"}},
		{name: "trims oldest", maxTurns: 4, appends: 3, want: []string{"q1", "a1", "q2", "a2"}},
		{name: "under cap", maxTurns: 10, appends: 2, want: []string{"q0", "a0", "q1", "a1"}},
	}

	for _, tt := range tests {
		for name, svc := range backends(t, tt.maxTurns) {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				ctx := context.Background()

				for i := 0; i < tt.appends; i++ {
					require.NoError(t, svc.Append(ctx, "u1",
						models.UserTurn(fmt.Sprintf("q%d", i)),
						models.AssistantTurn(fmt.Sprintf("a%d", i)),
					))
				}

				turns, err := svc.Get(ctx, "u1")
				require.NoError(t, err)

				got := make([]string, 0, len(turns))
				for _, turn := range turns {
					got = append(got, turn.Text)
				}
				assert.Equal(t, tt.want, got)
			})
		}
	}
}

func TestMemoryStoreReturnsCopy(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", models.UserTurn("original")))

	turns, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	turns[0].Text = "mutated"

	again, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
}

func TestMemoryStoreConcurrentUsers(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", u)
			for i := 0; i < 50; i++ {
				store.Append(ctx, userID, models.UserTurn(fmt.Sprintf("%d", i)))
			}
		}(u)
	}
	wg.Wait()

	for u := 0; u < 8; u++ {
		turns, err := store.Get(ctx, fmt.Sprintf("user-%d", u))
		require.NoError(t, err)
		require.Len(t, turns, 50)
		for i, turn := range turns {
			assert.Equal(t, fmt.Sprintf("%d", i), turn.Text)
		}
	}
}
