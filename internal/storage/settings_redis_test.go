package storage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

func newRedisStore(t *testing.T, mr *miniredis.Miniredis) *RedisSettingsStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSettingsStore(client, "settings", "settings.changed", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRedisSettingsStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newRedisStore(t, mr)
	ctx := context.Background()

	s, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrSettingsNotFound)
	assert.Equal(t, data.DefaultSettings(), s)

	want := data.Settings{SpikeThreshold: 75, DurationThreshold: 20}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := mr.Get("settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"spikeThreshold":75,"durationThreshold":20}`, raw)

	require.NoError(t, mr.Set("settings", "not json"))
	s, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrSettingsMalformed)
	assert.Equal(t, data.DefaultSettings(), s)
}

func TestRedisSettingsStoreWatch(t *testing.T) {
	mr := miniredis.RunT(t)
	local := newRedisStore(t, mr)
	remote := newRedisStore(t, mr)

	var (
		mu      sync.Mutex
		applied []data.Settings
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- local.Watch(ctx, func(s data.Settings) {
			mu.Lock()
			defer mu.Unlock()
			applied = append(applied, s)
		})
	}()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("settings.changed")["settings.changed"] == 1
	}, 2*time.Second, 5*time.Millisecond)

	own := data.Settings{SpikeThreshold: 10, DurationThreshold: 1}
	other := data.Settings{SpikeThreshold: 90, DurationThreshold: 30}
	require.NoError(t, local.Save(context.Background(), own))
	require.NoError(t, remote.Save(context.Background(), other))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) > 0
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []data.Settings{other}, applied, "own saves are skipped, remote ones applied")
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
