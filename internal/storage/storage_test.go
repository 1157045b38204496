package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

func TestMemoryStoreEvictsOldest(t *testing.T) {
	s := NewMemoryStore(3)
	for i := 0; i < 5; i++ {
		s.Add(data.Event{Kind: data.EventStateUpdated, State: data.SimulationState{EfficiencyScore: i}})
	}

	all := s.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].State.EfficiencyScore)
	assert.Equal(t, 4, all[2].State.EfficiencyScore)

	recent := s.GetRecent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, 3, recent[0].State.EfficiencyScore)
	assert.Equal(t, 3, s.Len())
}

func TestDecodeSettings(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		s, err := DecodeSettings([]byte(`{"spikeThreshold":55,"durationThreshold":12}`))
		require.NoError(t, err)
		assert.Equal(t, data.Settings{SpikeThreshold: 55, DurationThreshold: 12}, s)
	})

	t.Run("partial keeps defaults", func(t *testing.T) {
		s, err := DecodeSettings([]byte(`{"spikeThreshold":70}`))
		require.NoError(t, err)
		assert.Equal(t, data.Settings{SpikeThreshold: 70, DurationThreshold: 30}, s)
	})

	t.Run("malformed falls back", func(t *testing.T) {
		s, err := DecodeSettings([]byte(`{"spikeThreshold":`))
		assert.ErrorIs(t, err, ErrSettingsMalformed)
		assert.Equal(t, data.DefaultSettings(), s)
	})
}

func TestFileSettingsStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	store := NewFileSettingsStore(path)
	ctx := context.Background()

	s, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrSettingsNotFound)
	assert.Equal(t, data.DefaultSettings(), s)

	want := data.Settings{SpikeThreshold: -5, DurationThreshold: 999}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]int
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, map[string]int{"spikeThreshold": -5, "durationThreshold": 999}, onDisk)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileSettingsStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s, err := NewFileSettingsStore(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrSettingsMalformed)
	assert.Equal(t, data.DefaultSettings(), s)
}

func TestFileSettingsStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFileSettingsStore(filepath.Join(t.TempDir(), "s.json")).Save(ctx, data.DefaultSettings())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisSettingsNoticeOrigin(t *testing.T) {
	local := NewRedisSettingsStore(nil, "", "", nil)
	other := NewRedisSettingsStore(nil, "", "", nil)
	want := data.Settings{SpikeThreshold: 60, DurationThreshold: 5}

	raw, err := json.Marshal(settingsNotice{Origin: other.origin, Settings: want})
	require.NoError(t, err)

	got, remote, err := local.decodeNotice(raw)
	require.NoError(t, err)
	assert.True(t, remote)
	assert.Equal(t, want, got)

	_, remote, err = other.decodeNotice(raw)
	require.NoError(t, err)
	assert.False(t, remote, "own saves are not mirrored back")

	_, _, err = local.decodeNotice([]byte("{"))
	assert.ErrorIs(t, err, ErrSettingsMalformed)
	assert.Equal(t, SettingsKey, local.key)
}
