package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketSentinels(t *testing.T) {
	p := EOFPacket(KindVideo, 7)
	assert.True(t, p.IsEOF())
	assert.Equal(t, uint64(7), p.Serial)
	assert.Equal(t, KindVideo, p.Kind)
	assert.Equal(t, NoTimestamp, p.PTS)
	assert.Zero(t, p.Size())

	d := Packet{Data: []byte{1, 2, 3}, Kind: KindAudio}
	assert.False(t, d.IsEOF())
	assert.Equal(t, 3, d.Size())
}

func TestVideoFrameSentinels(t *testing.T) {
	eof := EOFVideoFrame(3)
	assert.True(t, eof.IsEOF())
	assert.False(t, eof.IsError())
	assert.False(t, eof.HasData())

	errF := ErrorVideoFrame(ErrDecoder, 3)
	assert.True(t, errF.IsError())
	assert.ErrorIs(t, errF.Err(), ErrDecoder)
	assert.False(t, errF.IsEOF())
}

func TestAudioFrameSentinels(t *testing.T) {
	eof := EOFAudioFrame(1)
	assert.True(t, eof.IsEOF())
	assert.False(t, eof.HasData())

	f := AudioFrame{Data: [][]byte{make([]byte, 8)}}
	assert.True(t, f.HasData())
}

func TestSampleFormat(t *testing.T) {
	assert.True(t, SampleFormatS16P.IsPlanar())
	assert.True(t, SampleFormatF32P.IsPlanar())
	assert.False(t, SampleFormatS16.IsPlanar())
	assert.Equal(t, 2, SampleFormatS16.BytesPerSample())
	assert.Equal(t, 4, SampleFormatF32.BytesPerSample())
	assert.Equal(t, 1, SampleFormatU8.BytesPerSample())
}

func TestSoftwareVideoRefcount(t *testing.T) {
	pool := NewFramePool(4)
	buf := pool.Get(16)
	sw := NewSoftwareVideo(buf, 16, pool)

	f := VideoFrame{Width: 2, Height: 2, Format: PixelFormatRGBA, SW: sw}
	require.True(t, f.HasData())

	// a second holder keeps the payload alive past the first release
	g := f.Retain()
	f.Release()
	assert.NotNil(t, g.SW.Planes)

	g.Release()
	// final release hands the buffer back to the pool
	_, reuses, releases := pool.Stats()
	assert.Equal(t, uint64(1), releases)
	_ = reuses

	again := pool.Get(16)
	_, reuses2, _ := pool.Stats()
	assert.Equal(t, uint64(1), reuses2, "released buffer should be reused")
	_ = again
}

func TestFramePoolGrowth(t *testing.T) {
	pool := NewFramePool(2)
	small := pool.Get(8)
	pool.Put(small)

	// requesting more than any retained buffer allocates fresh
	big := pool.Get(64)
	assert.Len(t, big, 64)
}
