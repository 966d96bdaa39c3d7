package printercache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/printlink/tunnel/internal/broker"
	brokerredis "github.com/printlink/tunnel/internal/broker/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := brokerredis.Open(context.Background(), broker.Config{URL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	c, err := New(client)
	require.NoError(t, err)
	return c, mr
}

func TestCache_StatusDropsNil(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	err := c.SetStatus(ctx, 3, map[string]*string{
		"state":    strPtr("Printing"),
		"progress": nil,
	}, 2*time.Minute)
	require.NoError(t, err)

	status, err := c.GetStatus(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"state": "Printing"}, status)
	assert.Equal(t, 2*time.Minute, mr.TTL("printer:3:status"))

	val, ok, err := c.GetField(ctx, 3, KindStatus, "state")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Printing", val)

	require.NoError(t, c.DeleteStatus(ctx, 3))
	status, err = c.GetStatus(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestCache_SettingsWithoutExpiry(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetSettings(ctx, 8, map[string]*string{"webcam_flipV": strPtr("true")}, 0))
	assert.Equal(t, time.Duration(0), mr.TTL("printer:8:settings"))

	settings, err := c.GetSettings(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, "true", settings["webcam_flipV"])
}

func TestCache_Pic(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetPic(ctx, 1, map[string]*string{"img_url": strPtr("https://x/y.jpg")}, time.Hour))

	pic, err := c.GetPic(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.jpg", pic["img_url"])

	mr.FastForward(time.Hour + time.Second)
	pic, err = c.GetPic(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, pic)
}
