package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30, cfg.VideoQueueCapacity)
	assert.Equal(t, 128, cfg.RingBufferKB)
	assert.Equal(t, 1500, cfg.PrerollTimeoutMs)
	assert.Equal(t, [4]uint8{0, 0, 0, 255}, cfg.Background)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")

	cfg := Default()
	cfg.VideoQueueCapacity = 60
	cfg.LogLevel = "debug"
	cfg.Background = [4]uint8{10, 20, 30, 255}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	// no stray tmp file left behind
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFillsZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.yml")
	require.NoError(t, os.WriteFile(path, []byte("video_queue_capacity: 5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.VideoQueueCapacity)
	// unspecified fields fall back to defaults
	assert.Equal(t, 100, cfg.AudioQueueCapacity)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestSaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "settings.yml")
	require.NoError(t, Save(path, Default()))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
