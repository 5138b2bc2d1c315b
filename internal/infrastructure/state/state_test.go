package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivIntel/internal/ports"
)

func sampleState() ports.MonitorState {
	checked := time.Date(2024, time.May, 2, 9, 30, 0, 0, time.UTC)
	return ports.MonitorState{
		LastSeenItemID: "https://nitter.net/someone/status/123",
		LastCheckedAt:  &checked,
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "last-seen.json")
	store := NewFileStore(path)
	ctx := context.Background()

	empty, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, ports.MonitorState{}, empty)

	want := sampleState()
	require.NoError(t, store.SaveState(ctx, want))

	got, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.LastSeenItemID, got.LastSeenItemID)
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, want.LastCheckedAt.Equal(*got.LastCheckedAt))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"lastSeenTweetId"`)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-seen.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := NewFileStore(path).LoadState(context.Background())
	assert.Error(t, err)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "")
	ctx := context.Background()

	empty, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, ports.MonitorState{}, empty)

	want := sampleState()
	require.NoError(t, store.SaveState(ctx, want))
	assert.True(t, mr.Exists(DefaultRedisKey))

	got, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.LastSeenItemID, got.LastSeenItemID)
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, want.LastCheckedAt.Equal(*got.LastCheckedAt))
}

func TestRedisStoreCustomKeyAndCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set("custom:key", "{oops"))

	_, err := NewRedisStore(client, "custom:key").LoadState(context.Background())
	assert.Error(t, err)
}

func TestRedisStoreSurfacesClientErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectGet(DefaultRedisKey).SetErr(assert.AnError)

	_, err := NewRedisStore(client, "").LoadState(context.Background())

	require.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
