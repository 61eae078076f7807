package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/manifold/pkg/adapters/redis"
	"github.com/aretw0/manifold/pkg/domain"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return mr, client
}

func readStream(t *testing.T, mr *miniredis.Miniredis, stream string) []backend.XMessage {
	t.Helper()
	reader := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer reader.Close()
	msgs, err := reader.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)
	return msgs
}

func TestPublisher_Hooks(t *testing.T) {
	mr, client := setup(t)
	pub := redis.NewFromClient(client, redis.WithStream("test:events"))
	require.NoError(t, pub.Ping(context.Background()))

	hooks := pub.Hooks()
	ctx := context.Background()
	hooks.OnSpawn(ctx, &domain.ProcessEvent{
		EventBase: domain.EventBase{Type: domain.EventSpawn},
		NodeID:    2,
		Command:   "cat",
	})
	hooks.OnExit(ctx, &domain.ProcessEvent{
		EventBase: domain.EventBase{Type: domain.EventExit},
		NodeID:    2,
		Exit:      &domain.ExitStatus{Code: 1},
	})
	hooks.OnShutdown(ctx, &domain.ShutdownEvent{
		EventBase: domain.EventBase{Type: domain.EventShutdown},
		Cause:     "shutdown requested",
	})

	// Close drains the queue before returning.
	require.NoError(t, pub.Close(context.Background()))

	msgs := readStream(t, mr, "test:events")
	require.Len(t, msgs, 3)
	assert.Equal(t, "spawn", msgs[0].Values["type"])
	assert.Equal(t, "2", msgs[0].Values["node"])
	assert.Equal(t, "exit", msgs[1].Values["type"])
	assert.Equal(t, "shutdown", msgs[2].Values["type"])
	assert.Equal(t, "1", msgs[2].Values["node"])

	var exit domain.ProcessEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[1].Values["event"].(string)), &exit))
	require.NotNil(t, exit.Exit)
	assert.Equal(t, 1, exit.Exit.Code)
}

func TestPublisher_Publish(t *testing.T) {
	mr, client := setup(t)
	pub := redis.NewFromClient(client)

	err := pub.Publish(context.Background(), domain.EventRespawn, 3, &domain.ProcessEvent{NodeID: 3, Restarts: 2})
	require.NoError(t, err)

	msgs := readStream(t, mr, domain.DefaultEventStream)
	require.Len(t, msgs, 1)
	assert.Equal(t, "respawn", msgs[0].Values["type"])

	require.NoError(t, pub.Close(context.Background()))
	err = pub.Publish(context.Background(), domain.EventRespawn, 3, nil)
	assert.ErrorIs(t, err, redis.ErrPublisherClosed)
	assert.NoError(t, pub.Close(context.Background()), "close is idempotent")
}

func TestPublisher_MaxLen(t *testing.T) {
	mr, client := setup(t)
	pub := redis.NewFromClient(client, redis.WithMaxLen(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Publish(ctx, domain.EventSpawn, domain.NodeID(i+1), map[string]int{"i": i}))
	}
	require.NoError(t, pub.Close(ctx))

	msgs := readStream(t, mr, domain.DefaultEventStream)
	require.Len(t, msgs, 2)
	assert.Equal(t, "5", msgs[1].Values["node"])
}

func TestPublisher_HooksAfterCloseAreIgnored(t *testing.T) {
	mr, client := setup(t)
	pub := redis.NewFromClient(client)
	require.NoError(t, pub.Close(context.Background()))

	assert.NotPanics(t, func() {
		pub.Hooks().OnSpawn(context.Background(), &domain.ProcessEvent{EventBase: domain.EventBase{Type: domain.EventSpawn}})
	})
	assert.False(t, mr.Exists(domain.DefaultEventStream))
}

func TestPublisher_UnreachableServerDoesNotBlock(t *testing.T) {
	mr, client := setup(t)
	mr.Close()

	pub := redis.NewFromClient(client, redis.WithBuffer(1))
	hooks := pub.Hooks()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hooks.OnSpawn(context.Background(), &domain.ProcessEvent{EventBase: domain.EventBase{Type: domain.EventSpawn}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hooks blocked on an unreachable redis")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = pub.Close(ctx)
}
