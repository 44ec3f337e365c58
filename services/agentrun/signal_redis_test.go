package agentrun

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"openpaws/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newRedisClient connects to TEST_REDIS_ADDR and skips the test when no
// server is reachable there.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis at %s unavailable: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func uniqueRunID(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

func receive(t *testing.T, sub Subscription) Signal {
	t.Helper()
	select {
	case sig := <-sub.C():
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("no signal received")
		return Signal{}
	}
}

func TestRedisBusPublishRightAfterSubscribe(t *testing.T) {
	bus := NewRedisBus(newRedisClient(t))
	ctx := context.Background()
	runID := uniqueRunID(t)

	delivered, err := bus.Publish(ctx, runID, Signal{Kind: SignalApprove})
	require.NoError(t, err)
	require.False(t, delivered, "nobody is parked yet")

	sub, err := bus.Subscribe(ctx, runID)
	require.NoError(t, err)
	defer sub.Close()

	// the subscription is confirmed before Subscribe returns
	delivered, err = bus.Publish(ctx, runID, Signal{Kind: SignalApprove, Reviewer: "u1"})
	require.NoError(t, err)
	require.True(t, delivered)
	require.Equal(t, Signal{Kind: SignalApprove, Reviewer: "u1"}, receive(t, sub))
}

func TestRedisBusDropsMalformedPayload(t *testing.T) {
	client := newRedisClient(t)
	bus := NewRedisBus(client)
	ctx := context.Background()
	runID := uniqueRunID(t)

	sub, err := bus.Subscribe(ctx, runID)
	require.NoError(t, err)
	defer sub.Close()

	n, err := client.Publish(ctx, rediskey.BuildAgentRunSignalKey(runID), "{not json").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = bus.Publish(ctx, runID, Signal{Kind: SignalCancel})
	require.NoError(t, err)
	require.Equal(t, SignalCancel, receive(t, sub).Kind)
}

func TestRedisBusCountsSubscribersAcrossInstances(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	runID := uniqueRunID(t)

	first, err := NewRedisBus(client).Subscribe(ctx, runID)
	require.NoError(t, err)
	second, err := NewRedisBus(client).Subscribe(ctx, runID)
	require.NoError(t, err)
	defer second.Close()

	publisher := NewRedisBus(client)
	delivered, err := publisher.Publish(ctx, runID, Signal{Kind: SignalApprove})
	require.NoError(t, err)
	require.True(t, delivered)
	require.Equal(t, SignalApprove, receive(t, first).Kind)
	require.Equal(t, SignalApprove, receive(t, second).Kind)

	require.NoError(t, first.Close())
	require.NoError(t, second.Close())
	require.Eventually(t, func() bool {
		delivered, err := publisher.Publish(ctx, runID, Signal{Kind: SignalCancel})
		return err == nil && !delivered
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRedisSubForwardSkipsMalformedPayload(t *testing.T) {
	sub := &redisSub{ch: make(chan Signal, 1), done: make(chan struct{})}
	msgs := make(chan *redis.Message, 3)
	msgs <- &redis.Message{Payload: "{not json"}
	msgs <- &redis.Message{Payload: `{"kind":"approve","reviewer":"u1"}`}
	msgs <- &redis.Message{Payload: `{"kind":"cancel"}`}
	close(msgs)

	sub.forward("run-1", msgs)

	// the buffer holds one signal; the overflow is dropped, not blocked on
	require.Equal(t, Signal{Kind: SignalApprove, Reviewer: "u1"}, <-sub.C())
	select {
	case sig := <-sub.C():
		t.Fatalf("unexpected signal %+v", sig)
	default:
	}
}

func TestRedisSubForwardStopsWhenClosed(t *testing.T) {
	sub := &redisSub{ch: make(chan Signal), done: make(chan struct{})}
	close(sub.done)
	msgs := make(chan *redis.Message, 1)
	msgs <- &redis.Message{Payload: `{"kind":"approve"}`}

	returned := make(chan struct{})
	go func() {
		sub.forward("run-1", msgs)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("forward kept running after close")
	}
}
