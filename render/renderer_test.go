package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencine/playkit/media"
)

func testFrame(fill byte) media.VideoFrame {
	buf := make([]byte, 4*4*4)
	for i := range buf {
		buf[i] = fill
	}
	return media.VideoFrame{
		Width: 4, Height: 4,
		Format: media.PixelFormatRGBA,
		SW:     media.NewSoftwareVideo(buf, 16, nil),
	}
}

func TestOffscreenDrawPresent(t *testing.T) {
	o := NewOffscreen()
	require.NoError(t, o.Init(4, 4, "test"))

	_, ok := o.LastFrame()
	assert.False(t, ok)

	f := testFrame(0x7F)
	require.NoError(t, o.Draw(&f))
	o.Present()

	got, ok := o.LastFrame()
	require.True(t, ok)
	assert.Equal(t, f.SW.Planes[0], got.SW.Planes[0])
	got.Release()

	assert.Equal(t, uint64(1), o.Draws())
	assert.Equal(t, uint64(1), o.Presents())
}

func TestOffscreenKeepsLatest(t *testing.T) {
	o := NewOffscreen()
	require.NoError(t, o.Init(4, 4, ""))

	a := testFrame(1)
	b := testFrame(2)
	require.NoError(t, o.Draw(&a))
	require.NoError(t, o.Draw(&b))

	got, ok := o.LastFrame()
	require.True(t, ok)
	assert.Equal(t, byte(2), got.SW.Planes[0][0])
	got.Release()
}

func TestOffscreenRejectsEmpty(t *testing.T) {
	o := NewOffscreen()
	f := media.VideoFrame{}
	assert.ErrorIs(t, o.Draw(&f), media.ErrInvalidArg)
	assert.Error(t, o.Draw(nil))
}

func TestOffscreenShutdown(t *testing.T) {
	o := NewOffscreen()
	f := testFrame(3)
	require.NoError(t, o.Draw(&f))
	o.Shutdown()
	_, ok := o.LastFrame()
	assert.False(t, ok)
}
