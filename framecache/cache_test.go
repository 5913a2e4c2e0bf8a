package framecache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencine/playkit/media"
)

func rgbaFrame(w, h int, fill byte) media.VideoFrame {
	buf := make([]byte, w*h*4)
	for i := range buf {
		buf[i] = fill
	}
	return media.VideoFrame{
		Width:  w,
		Height: h,
		Format: media.PixelFormatRGBA,
		SW:     media.NewSoftwareVideo(buf, w*4, nil),
	}
}

func TestPutGetIdentical(t *testing.T) {
	c := New(10, 64)
	clip := uuid.New()

	f := rgbaFrame(4, 4, 0xAB)
	c.Put(clip, 1000, f)

	got, ok := c.Get(clip, 1000)
	require.True(t, ok)
	assert.Equal(t, f.SW.Planes[0], got.SW.Planes[0], "cached bytes identical")
	got.Release()

	_, ok = c.Get(clip, 2000)
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.InDelta(t, 0.5, st.HitRate(), 0.001)
}

func TestLRUEvictionByCount(t *testing.T) {
	c := New(3, 1024)
	clip := uuid.New()

	for i := 0; i < 3; i++ {
		c.Put(clip, media.Timestamp(i), rgbaFrame(2, 2, byte(i)))
	}
	// touch 0 so 1 becomes the LRU victim
	if f, ok := c.Get(clip, 0); ok {
		f.Release()
	}

	c.Put(clip, 99, rgbaFrame(2, 2, 9))

	assert.Equal(t, 3, c.Len())
	assert.True(t, c.Contains(clip, 0))
	assert.False(t, c.Contains(clip, 1), "least recently used evicted")
	assert.True(t, c.Contains(clip, 2))
	assert.True(t, c.Contains(clip, 99))
}

func TestEvictionByMemory(t *testing.T) {
	// 1 MiB budget, each 256x256 RGBA frame is 256KiB
	c := New(100, 1)
	clip := uuid.New()

	for i := 0; i < 6; i++ {
		c.Put(clip, media.Timestamp(i), rgbaFrame(256, 256, 1))
	}

	assert.LessOrEqual(t, c.MemoryUsage(), int64(1024*1024))
	assert.Less(t, c.Len(), 6, "memory bound forces eviction")
}

func TestPutReplace(t *testing.T) {
	c := New(10, 64)
	clip := uuid.New()

	c.Put(clip, 0, rgbaFrame(2, 2, 1))
	c.Put(clip, 0, rgbaFrame(2, 2, 2))

	assert.Equal(t, 1, c.Len())
	got, ok := c.Get(clip, 0)
	require.True(t, ok)
	assert.Equal(t, byte(2), got.SW.Planes[0][0])
	got.Release()
}

func TestRemoveClip(t *testing.T) {
	c := New(10, 64)
	a, b := uuid.New(), uuid.New()

	c.Put(a, 0, rgbaFrame(2, 2, 1))
	c.Put(a, 1, rgbaFrame(2, 2, 1))
	c.Put(b, 0, rgbaFrame(2, 2, 1))

	c.RemoveClip(a)

	assert.False(t, c.Contains(a, 0))
	assert.False(t, c.Contains(a, 1))
	assert.True(t, c.Contains(b, 0))
	assert.Equal(t, 1, c.Len())
}

func TestClear(t *testing.T) {
	c := New(10, 64)
	clip := uuid.New()
	c.Put(clip, 0, rgbaFrame(2, 2, 1))
	c.Clear()
	assert.Zero(t, c.Len())
	assert.Zero(t, c.MemoryUsage())
}

func TestPrefetchRange(t *testing.T) {
	c := New(100, 64)
	clip := uuid.New()
	const frameDur = 33_333

	// cache frames 0 and 2 of the grid
	c.Put(clip, 0, rgbaFrame(2, 2, 1))
	c.Put(clip, 2*frameDur, rgbaFrame(2, 2, 1))

	missing := c.PrefetchRange(clip, 0, frameDur, 5)
	assert.Equal(t, []media.Timestamp{
		1 * frameDur,
		3 * frameDur,
		4 * frameDur,
	}, missing)

	// everything cached: nothing to prefetch
	for i := 0; i < 5; i++ {
		c.Put(clip, media.Timestamp(i*frameDur), rgbaFrame(2, 2, 1))
	}
	assert.Empty(t, c.PrefetchRange(clip, 0, frameDur, 5))
}

func TestIgnoresEmptyFrames(t *testing.T) {
	c := New(10, 64)
	c.Put(uuid.New(), 0, media.VideoFrame{})
	assert.Zero(t, c.Len())
}
