package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to TEST_REDIS_ADDR or skips the test
func newTestClient(t *testing.T) *RedisClient {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis integration test")
	}
	client, err := NewClient(&Config{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClient_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping dial timeout test in short mode")
	}
	_, err := NewClient(&Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisClient_PublishEvent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	stream := "test-stream-" + uuid.NewString()
	t.Cleanup(func() { client.Delete(ctx, stream) })

	id, err := client.PublishEvent(ctx, stream, map[string]interface{}{"type": "subscribed", "peer": "0xabc"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	length, err := client.GetStreamLength(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestRedisClient_JSON(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	key := "test-key-" + uuid.NewString()
	t.Cleanup(func() { client.Delete(ctx, key) })

	var out map[string]string
	assert.ErrorIs(t, client.GetJSON(ctx, key, &out), ErrCacheMiss)

	require.NoError(t, client.SetJSON(ctx, key, map[string]string{"name": "alice.eth"}, time.Minute))
	require.NoError(t, client.GetJSON(ctx, key, &out))
	assert.Equal(t, "alice.eth", out["name"])
}

func TestRedisClient_HealthCheck(t *testing.T) {
	client := newTestClient(t)
	assert.NoError(t, client.HealthCheck(context.Background()))
}
