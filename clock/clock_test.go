package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencine/playkit/media"
)

func TestClockAdvances(t *testing.T) {
	c := NewMasterClock()
	c.Update(0)

	t0 := c.Now()
	time.Sleep(20 * time.Millisecond)
	t1 := c.Now()

	assert.Greater(t, t1, t0)
	// roughly wall-clock paced
	assert.InDelta(t, 20_000, t1-t0, 15_000)
}

func TestClockMonotonicBetweenUpdates(t *testing.T) {
	c := NewMasterClock()
	c.Update(1_000_000)

	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		require.GreaterOrEqual(t, now, prev)
		prev = now
	}
}

func TestClockPauseFreezes(t *testing.T) {
	c := NewMasterClock()
	c.Update(500_000)
	c.Pause()

	frozen := c.Now()
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, frozen, c.Now())
	assert.True(t, c.IsPaused())
}

func TestClockPauseResumeRoundTrip(t *testing.T) {
	c := NewMasterClock()
	c.Update(0)

	time.Sleep(10 * time.Millisecond)
	c.Pause()
	atPause := c.Now()
	time.Sleep(30 * time.Millisecond)
	c.Resume()

	// resumes from the pause point, not from wall time
	resumed := c.Now()
	assert.GreaterOrEqual(t, resumed, atPause)
	assert.Less(t, resumed-atPause, int64(20_000))
}

func TestClockSeek(t *testing.T) {
	c := NewMasterClock()
	c.Update(0)
	c.Pause()
	c.Seek(5_000_000)

	// paused clock reports the target immediately
	assert.Equal(t, media.Timestamp(5_000_000), c.Now())

	c.Resume()
	assert.InDelta(t, 5_000_000, c.Now(), 10_000)
}

func TestShouldPresent(t *testing.T) {
	c := NewMasterClock()
	c.Update(1_000_000)

	tests := []struct {
		name string
		pts  media.Timestamp
		want SyncAction
	}{
		{"far future", 1_000_000 + 600_000, SyncWait},
		{"slightly early", 1_000_000 + 200_000, SyncWait},
		{"on time", 1_000_000, SyncPresent},
		{"rush band", 1_000_000 - 50_000, SyncPresent},
		{"too late", 1_000_000 - 200_000, SyncDrop},
		{"no timestamp", media.NoTimestamp, SyncPresent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ShouldPresent(tt.pts))
		})
	}
}

func TestWallClockMode(t *testing.T) {
	c := NewMasterClock()
	assert.False(t, c.IsWallClockMode())
	c.UseWallClock()
	assert.True(t, c.IsWallClockMode())
	// idempotent
	c.UseWallClock()
	assert.True(t, c.IsWallClockMode())
}

func TestAudioSourceFlag(t *testing.T) {
	c := NewMasterClock()
	c.SetAudioSource(true)
	assert.True(t, c.HasAudioSource())
	c.SetAudioSource(false)
	assert.False(t, c.HasAudioSource())
}

func TestClockReset(t *testing.T) {
	c := NewMasterClock()
	c.Update(9_000_000)
	c.Pause()
	c.UseWallClock()
	c.Reset()

	assert.False(t, c.IsPaused())
	assert.False(t, c.IsWallClockMode())
	assert.Equal(t, media.Timestamp(0), c.BaseTime())
}

func TestClockRate(t *testing.T) {
	c := NewMasterClock()
	c.Update(0)
	c.SetRate(2.0)

	time.Sleep(20 * time.Millisecond)
	now := c.Now()
	// double speed: ~40ms of media time for ~20ms of wall time
	assert.Greater(t, now, int64(25_000))
}

func TestClockConcurrentReaders(t *testing.T) {
	c := NewMasterClock()
	c.Update(0)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// single writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		tm := media.Timestamp(0)
		for {
			select {
			case <-stop:
				return
			default:
				tm += 1000
				c.Update(tm)
			}
		}
	}()

	// many readers: no torn reads, values only from published bases
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10000; j++ {
				now := c.Now()
				require.GreaterOrEqual(t, now, int64(0))
			}
		}()
	}

	time.Sleep(30 * time.Millisecond)
	close(stop)
	wg.Wait()
}
