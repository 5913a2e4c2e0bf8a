package compositor

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencine/playkit/media"
	"github.com/opencine/playkit/timeline"
)

func solidFrame(w, h int, r, g, b, a uint8) media.VideoFrame {
	buf := make([]byte, w*h*4)
	for i := 0; i < len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = r, g, b, a
	}
	return media.VideoFrame{
		Width:  w,
		Height: h,
		Format: media.PixelFormatRGBA,
		SW:     media.NewSoftwareVideo(buf, w*4, nil),
	}
}

// seqWithLayers builds a sequence with one full-length clip per layer
// and a decode callback serving the given frames by track index.
func seqWithLayers(frames []media.VideoFrame) (*timeline.Sequence, DecodeFunc, []*timeline.Clip) {
	seq := timeline.NewSequence("t")
	var clips []*timeline.Clip
	for i := range frames {
		var tr *timeline.Track
		if i == 0 {
			tr = seq.VideoTrack(0)
		} else {
			tr = seq.AddVideoTrack()
		}
		c := timeline.NewClip(uuid.New())
		c.TimelineIn = 0
		c.TimelineOut = 1_000_000
		c.SourceIn = 0
		c.SourceOut = 1_000_000
		if err := tr.AddClip(c); err != nil {
			panic(err)
		}
		clips = append(clips, c)
	}
	decode := func(req FrameRequest) (media.VideoFrame, bool) {
		return frames[req.TrackIndex].Retain(), true
	}
	return seq, decode, clips
}

func TestComposeEmptyIsBackground(t *testing.T) {
	c := New(4, 4)
	c.SetBackgroundColor(10, 20, 30, 255)
	c.SetSequence(timeline.NewSequence("empty"))
	c.SetDecodeFunc(func(FrameRequest) (media.VideoFrame, bool) {
		return media.VideoFrame{}, false
	})

	out := c.Compose(0)
	defer out.Release()

	require.True(t, out.HasData())
	px := out.SW.Planes[0]
	assert.Equal(t, []byte{10, 20, 30, 255}, []byte(px[:4]))
}

func TestComposeSingleOpaquePassThrough(t *testing.T) {
	frame := solidFrame(4, 4, 200, 100, 50, 255)
	seq, decode, _ := seqWithLayers([]media.VideoFrame{frame})

	c := New(4, 4)
	c.SetSequence(seq)
	c.SetDecodeFunc(decode)

	out := c.Compose(500_000)
	defer out.Release()

	// bit-exact pass-through: the layer's own payload comes back
	assert.Equal(t, frame.SW.Planes[0], out.SW.Planes[0])
}

func TestComposeNormalBlend(t *testing.T) {
	// bottom opaque red, top half-transparent green
	bottom := solidFrame(4, 4, 255, 0, 0, 255)
	top := solidFrame(4, 4, 0, 255, 0, 255)
	seq, decode, clips := seqWithLayers([]media.VideoFrame{bottom, top})
	clips[1].Opacity = 0.5

	c := New(4, 4)
	c.SetSequence(seq)
	c.SetDecodeFunc(decode)

	out := c.Compose(500_000)
	defer out.Release()

	px := out.SW.Planes[0]
	assert.InDelta(t, 128, px[0], 1, "red halves")
	assert.InDelta(t, 128, px[1], 1, "green halves")
	assert.InDelta(t, 0, px[2], 1)
	assert.Equal(t, byte(255), px[3])
}

func TestComposeAddBlend(t *testing.T) {
	bottom := solidFrame(2, 2, 100, 100, 100, 255)
	top := solidFrame(2, 2, 200, 200, 200, 255)
	seq, decode, clips := seqWithLayers([]media.VideoFrame{bottom, top})
	clips[1].Blend = timeline.BlendAdd

	c := New(2, 2)
	c.SetSequence(seq)
	c.SetDecodeFunc(decode)

	out := c.Compose(0)
	defer out.Release()

	// 100 + 200 clamps at 255
	assert.Equal(t, byte(255), out.SW.Planes[0][0])
}

func TestComposeMultiplyBlend(t *testing.T) {
	bottom := solidFrame(2, 2, 128, 128, 128, 255)
	top := solidFrame(2, 2, 128, 128, 128, 255)
	seq, decode, clips := seqWithLayers([]media.VideoFrame{bottom, top})
	clips[1].Blend = timeline.BlendMultiply

	c := New(2, 2)
	c.SetSequence(seq)
	c.SetDecodeFunc(decode)

	out := c.Compose(0)
	defer out.Release()

	// 0.502 * 0.502 ≈ 0.252 → ~64
	assert.InDelta(t, 64, out.SW.Planes[0][0], 2)
}

func TestComposeDifferenceBlend(t *testing.T) {
	bottom := solidFrame(2, 2, 200, 0, 0, 255)
	top := solidFrame(2, 2, 50, 0, 0, 255)
	seq, decode, clips := seqWithLayers([]media.VideoFrame{bottom, top})
	clips[1].Blend = timeline.BlendDifference

	c := New(2, 2)
	c.SetSequence(seq)
	c.SetDecodeFunc(decode)

	out := c.Compose(0)
	defer out.Release()

	assert.InDelta(t, 150, out.SW.Planes[0][0], 1)
}

func TestComposeSkipsHiddenAndDisabled(t *testing.T) {
	frame := solidFrame(2, 2, 9, 9, 9, 255)
	seq, decode, clips := seqWithLayers([]media.VideoFrame{frame})
	clips[0].Disabled = true

	c := New(2, 2)
	c.SetBackgroundColor(0, 0, 0, 255)
	c.SetSequence(seq)
	c.SetDecodeFunc(decode)

	out := c.Compose(0)
	defer out.Release()
	assert.Equal(t, byte(0), out.SW.Planes[0][0], "disabled clip renders background")

	clips[0].Disabled = false
	seq.VideoTrack(0).Hidden = true
	hidden := c.Compose(0)
	defer hidden.Release()
	assert.Equal(t, byte(0), hidden.SW.Planes[0][0], "hidden track renders background")
}

func TestVisibleClips(t *testing.T) {
	f := solidFrame(2, 2, 1, 1, 1, 255)
	seq, _, clips := seqWithLayers([]media.VideoFrame{f, f})

	c := New(2, 2)
	c.SetSequence(seq)

	reqs := c.VisibleClips(500_000)
	require.Len(t, reqs, 2)
	assert.Equal(t, clips[0].ID, reqs[0].ClipID)
	assert.Equal(t, 0, reqs[0].TrackIndex)
	assert.Equal(t, 1, reqs[1].TrackIndex)
	assert.Equal(t, media.Timestamp(500_000), reqs[0].SourceTime)

	assert.Empty(t, c.VisibleClips(5_000_000), "no clip past the end")
}
