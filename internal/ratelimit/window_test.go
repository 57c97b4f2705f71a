package ratelimit_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/ratelimit"
)

func TestWindowSlides(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	w := ratelimit.Window{Client: client, Prefix: "test", Window: time.Minute, Max: 2, Now: func() time.Time { return now }}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := w.Allow(ctx, "coupon:abc")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 1-i, d.Remaining)
	}
	d, err := w.Allow(ctx, "coupon:abc")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)

	d, err = w.Allow(ctx, "coupon:other")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	now = now.Add(2 * time.Minute)
	d, err = w.Allow(ctx, "coupon:abc")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestWindowDisabled(t *testing.T) {
	d, err := ratelimit.Window{}.Allow(context.Background(), "any")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
