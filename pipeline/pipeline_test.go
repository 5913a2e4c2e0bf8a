package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opencine/playkit/media"
)

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "buffering", StateBuffering.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "seeking", StateSeeking.String())
	assert.Equal(t, "error", StateError.String())
}

func TestEventTypeStrings(t *testing.T) {
	assert.Equal(t, "buffering-complete", EventBufferingComplete.String())
	assert.Equal(t, "seek-complete", EventSeekComplete.String())
	assert.Equal(t, "end-of-file", EventEndOfFile.String())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultPrerollTimeout, cfg.PrerollTimeout)
	assert.Equal(t, 30, cfg.VideoQueueCapacity)
	assert.Equal(t, 100, cfg.AudioQueueCapacity)
}

func TestPlayWithoutOpen(t *testing.T) {
	p := New(DefaultConfig(), nil, nil)
	assert.ErrorIs(t, p.Play(), media.ErrNotInitialized)
	assert.Equal(t, StateStopped, p.State())
}

func TestSeekWithoutOpen(t *testing.T) {
	p := New(DefaultConfig(), nil, nil)
	assert.ErrorIs(t, p.Seek(0), media.ErrNotInitialized)
}

func TestSpeedClamping(t *testing.T) {
	p := New(DefaultConfig(), nil, nil)
	p.SetPlaybackSpeed(0.001)
	assert.Equal(t, 0.1, p.PlaybackSpeed())
	p.SetPlaybackSpeed(50)
	assert.Equal(t, 8.0, p.PlaybackSpeed())
}

func TestSerialStartsAtZero(t *testing.T) {
	p := New(DefaultConfig(), nil, nil)
	assert.Equal(t, uint64(0), p.Serial())
}

func TestLoopingFlag(t *testing.T) {
	p := New(DefaultConfig(), nil, nil)
	assert.False(t, p.IsLooping())
	p.SetLooping(true)
	assert.True(t, p.IsLooping())
}

func TestInOutPoints(t *testing.T) {
	p := New(DefaultConfig(), nil, nil)
	p.SetInPoint(100)
	p.SetOutPoint(200)
	assert.Equal(t, media.Timestamp(100), p.InPoint())
	assert.Equal(t, media.Timestamp(200), p.OutPoint())
}
