package timeline

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/opencine/playkit/media"
)

func newTestClip(in, out, srcIn, srcOut media.Timestamp, speed float64) *Clip {
	c := NewClip(uuid.New())
	c.TimelineIn = in
	c.TimelineOut = out
	c.SourceIn = srcIn
	c.SourceOut = srcOut
	c.Speed = speed
	return c
}

func TestMapToSourceEndpoints(t *testing.T) {
	c := newTestClip(1_000_000, 3_000_000, 500_000, 4_500_000, 2.0)

	// mapToSource(timelineIn) == sourceIn
	assert.Equal(t, media.Timestamp(500_000), c.MapToSource(1_000_000))
	// mapToSource(timelineOut) == sourceIn + (out-in)*speed
	assert.Equal(t, media.Timestamp(500_000+4_000_000), c.MapToSource(3_000_000))
	// midpoint
	assert.Equal(t, media.Timestamp(500_000+2_000_000), c.MapToSource(2_000_000))
}

func TestMapToSourceClamped(t *testing.T) {
	c := newTestClip(1_000_000, 2_000_000, 0, 1_000_000, 1.0)

	assert.Equal(t, c.MapToSource(1_000_000), c.MapToSource(500_000), "before the clip clamps to in")
	assert.Equal(t, c.MapToSource(2_000_000), c.MapToSource(9_000_000), "after the clip clamps to out")
}

func TestMapToSourceReversed(t *testing.T) {
	c := newTestClip(0, 1_000_000, 2_000_000, 3_000_000, 1.0)
	c.Reversed = true

	assert.Equal(t, media.Timestamp(3_000_000), c.MapToSource(0))
	assert.Equal(t, media.Timestamp(2_000_000), c.MapToSource(1_000_000))
	assert.Equal(t, media.Timestamp(2_500_000), c.MapToSource(500_000))
}

func TestContainsTime(t *testing.T) {
	c := newTestClip(100, 200, 0, 100, 1.0)
	assert.True(t, c.ContainsTime(100), "in is inclusive")
	assert.True(t, c.ContainsTime(199))
	assert.False(t, c.ContainsTime(200), "out is exclusive")
	assert.False(t, c.ContainsTime(99))
}

func TestClipValidate(t *testing.T) {
	good := newTestClip(0, 100, 0, 100, 1.0)
	assert.NoError(t, good.Validate())

	bad := newTestClip(100, 100, 0, 100, 1.0)
	assert.Error(t, bad.Validate(), "zero timeline duration")

	bad = newTestClip(0, 100, 50, 50, 1.0)
	assert.Error(t, bad.Validate(), "zero source duration")

	bad = newTestClip(0, 100, 0, 100, 0)
	assert.Error(t, bad.Validate(), "non-positive speed")

	bad = newTestClip(0, 100, 0, 100, 1.0)
	bad.Opacity = 1.5
	assert.Error(t, bad.Validate())
}

func TestMapToSourceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.Int64Range(0, 1<<30).Draw(t, "in")
		dur := rapid.Int64Range(1, 1<<30).Draw(t, "dur")
		srcIn := rapid.Int64Range(0, 1<<30).Draw(t, "srcIn")
		speed := rapid.Float64Range(0.1, 8.0).Draw(t, "speed")

		srcDur := media.Duration(float64(dur) * speed)
		if srcDur <= 0 {
			srcDur = 1
		}
		c := newTestClip(in, in+dur, srcIn, srcIn+srcDur+1, speed)

		tm := rapid.Int64Range(in, in+dur).Draw(t, "t")
		src := c.MapToSource(tm)

		// mapped time stays within the source window
		assert.GreaterOrEqual(t, src, c.SourceIn)
		assert.LessOrEqual(t, src, c.SourceOut)
	})
}
