package ringbuf

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCapacityClampAndPow2(t *testing.T) {
	assert.Equal(t, MinCapacity, New(1).Capacity())
	assert.Equal(t, MaxCapacity, New(1<<30).Capacity())
	assert.Equal(t, 131072, New(DefaultCapacity).Capacity())
	// rounds up to power of two
	assert.Equal(t, 32768, New(20000).Capacity())
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(MinCapacity)
	in := []byte("the quick brown fox jumps over the lazy dog")

	n := b.Write(in)
	require.Equal(t, len(in), n)
	assert.Equal(t, len(in), b.AvailableRead())

	out := make([]byte, len(in))
	n = b.Read(out)
	require.Equal(t, len(in), n)
	assert.Equal(t, in, out)
	assert.True(t, b.Empty())
}

func TestConservation(t *testing.T) {
	b := New(MinCapacity)
	assert.Equal(t, b.Capacity(), b.AvailableRead()+b.AvailableWrite())

	b.Write(make([]byte, 1000))
	assert.Equal(t, b.Capacity(), b.AvailableRead()+b.AvailableWrite())

	b.Read(make([]byte, 300))
	assert.Equal(t, b.Capacity(), b.AvailableRead()+b.AvailableWrite())
}

func TestWrapAround(t *testing.T) {
	b := New(MinCapacity)
	cap := b.Capacity()

	// push the positions near the end so the next write wraps
	chunk := make([]byte, cap-100)
	require.Equal(t, len(chunk), b.Write(chunk))
	require.Equal(t, len(chunk), b.Read(make([]byte, len(chunk))))

	in := make([]byte, 300)
	for i := range in {
		in[i] = byte(i)
	}
	require.Equal(t, len(in), b.Write(in))

	out := make([]byte, 300)
	require.Equal(t, len(out), b.Read(out))
	assert.True(t, bytes.Equal(in, out), "data must survive the wrap")
}

func TestPartialWriteWhenFull(t *testing.T) {
	b := New(MinCapacity)
	cap := b.Capacity()

	n := b.Write(make([]byte, cap+500))
	assert.Equal(t, cap, n, "write clips at capacity")
	assert.True(t, b.Full())
	assert.Zero(t, b.Write([]byte{1}))
}

func TestReadEmpty(t *testing.T) {
	b := New(MinCapacity)
	assert.Zero(t, b.Read(make([]byte, 10)))
	assert.Zero(t, b.Read(nil))
}

func TestPeekAndSkip(t *testing.T) {
	b := New(MinCapacity)
	b.Write([]byte{1, 2, 3, 4, 5})

	peeked := make([]byte, 3)
	require.Equal(t, 3, b.Peek(peeked))
	assert.Equal(t, []byte{1, 2, 3}, peeked)
	assert.Equal(t, 5, b.AvailableRead(), "peek does not consume")

	assert.Equal(t, 2, b.Skip(2))
	out := make([]byte, 3)
	require.Equal(t, 3, b.Read(out))
	assert.Equal(t, []byte{3, 4, 5}, out)

	assert.Equal(t, 0, b.Skip(10))
}

func TestClear(t *testing.T) {
	b := New(MinCapacity)
	b.Write(make([]byte, 500))
	b.Clear()
	assert.True(t, b.Empty())
	assert.Equal(t, b.Capacity(), b.AvailableWrite())
}

func TestFillRatio(t *testing.T) {
	b := New(MinCapacity)
	assert.Zero(t, b.FillRatio())
	b.Write(make([]byte, b.Capacity()/2))
	assert.InDelta(t, 0.5, b.FillRatio(), 0.01)
}

func TestSizeFor(t *testing.T) {
	// 500ms at 48kHz stereo 16-bit
	assert.Equal(t, 96000, SizeFor(48000, 2, 2, 500))
}

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New(MinCapacity)
		var written, read []byte

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "write") {
				chunk := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "chunk")
				n := b.Write(chunk)
				written = append(written, chunk[:n]...)
			} else {
				out := make([]byte, rapid.IntRange(0, 4096).Draw(t, "rd"))
				n := b.Read(out)
				read = append(read, out[:n]...)
			}
			if b.Capacity() != b.AvailableRead()+b.AvailableWrite() {
				t.Fatalf("conservation violated")
			}
		}

		// drain the rest
		rest := make([]byte, b.AvailableRead())
		b.Read(rest)
		read = append(read, rest...)

		assert.Equal(t, written, read, "bytes come out exactly as they went in")
	})
}

func TestSPSCConcurrent(t *testing.T) {
	b := New(MinCapacity)
	const total = 1 << 20

	src := make([]byte, total)
	for i := range src {
		src[i] = byte(i * 31)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		off := 0
		for off < total {
			off += b.Write(src[off:min(off+1024, total)])
		}
	}()

	dst := make([]byte, 0, total)
	go func() {
		defer wg.Done()
		buf := make([]byte, 1024)
		for len(dst) < total {
			n := b.Read(buf)
			dst = append(dst, buf[:n]...)
		}
	}()

	wg.Wait()
	assert.True(t, bytes.Equal(src, dst))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
