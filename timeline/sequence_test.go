package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencine/playkit/media"
)

func TestNewSequenceDefaults(t *testing.T) {
	s := NewSequence("test")
	assert.Equal(t, 1, len(s.VideoTracks()))
	assert.Equal(t, 1, len(s.AudioTracks()))
	assert.Equal(t, 1920, s.Settings.Width)
	assert.Equal(t, 48000, s.Settings.SampleRate)
	assert.InDelta(t, 33366, s.Settings.FrameDuration(), 1)
}

func TestSequenceDuration(t *testing.T) {
	s := NewSequence("test")
	assert.Zero(t, s.Duration())

	require.NoError(t, s.VideoTrack(0).AddClip(clipAt(0, 2_000_000)))
	require.NoError(t, s.AudioTrack(0).AddClip(clipAt(0, 3_000_000)))

	// duration is the max clip end across every track
	assert.Equal(t, media.Duration(3_000_000), s.Duration())
}

func TestSequenceTrackManagement(t *testing.T) {
	s := NewSequence("test")
	v2 := s.AddVideoTrack()
	assert.Equal(t, 1, v2.Index)
	assert.Equal(t, 2, len(s.VideoTracks()))

	removed := s.RemoveTrack(s.VideoTrack(0).ID)
	assert.True(t, removed)
	assert.Equal(t, 0, v2.Index, "indices compact after removal")

	assert.True(t, s.RemoveTrack(v2.ID))
	assert.False(t, s.RemoveTrack(v2.ID), "second removal fails")
}

func TestVisibleClipsAt(t *testing.T) {
	s := NewSequence("test")
	bottom := s.VideoTrack(0)
	top := s.AddVideoTrack()

	a := clipAt(0, 1_000_000)
	b := clipAt(0, 1_000_000)
	require.NoError(t, bottom.AddClip(a))
	require.NoError(t, top.AddClip(b))

	vis := s.VisibleClipsAt(500_000)
	require.Len(t, vis, 2)
	assert.Equal(t, a.ID, vis[0].ID, "bottom to top order")
	assert.Equal(t, b.ID, vis[1].ID)

	// hidden track drops out
	bottom.Hidden = true
	vis = s.VisibleClipsAt(500_000)
	require.Len(t, vis, 1)
	assert.Equal(t, b.ID, vis[0].ID)

	// disabled clip drops out
	b.Disabled = true
	assert.Empty(t, s.VisibleClipsAt(500_000))
}

func TestClipLookup(t *testing.T) {
	s := NewSequence("test")
	c := clipAt(0, 100)
	require.NoError(t, s.VideoTrack(0).AddClip(c))

	assert.Equal(t, c, s.Clip(c.ID))
	assert.NotNil(t, s.Track(s.VideoTrack(0).ID))
}

func TestFrameCount(t *testing.T) {
	s := NewSequence("test")
	s.Settings.FrameRate = media.NewRational(30, 1)
	require.NoError(t, s.VideoTrack(0).AddClip(clipAt(0, 1_000_000)))
	assert.Equal(t, int64(30), s.FrameCount())
}

func TestPlayheadAndPoints(t *testing.T) {
	s := NewSequence("test")
	var moved media.Timestamp
	s.PlayheadMoved.Connect(func(tm media.Timestamp) { moved = tm })

	s.SetPlayhead(123)
	assert.Equal(t, media.Timestamp(123), s.Playhead())
	assert.Equal(t, media.Timestamp(123), moved)

	s.SetInPoint(100)
	s.SetOutPoint(200)
	assert.True(t, s.HasInOutRange())
}
