package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsClientRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	var kv KV = NewMetricsClient(client)
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsNil(err))

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, kv.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))

	// get/miss, set/ok, get/ok, delete/ok
	assert.GreaterOrEqual(t, testutil.CollectAndCount(commandDuration), 4)
}
