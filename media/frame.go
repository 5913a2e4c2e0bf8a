/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * PlayKit
 * Copyright (C) 2026 OpenCine
 *
 * This file is part of PlayKit.
 *
 * PlayKit is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * PlayKit is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with PlayKit.  If not, see <https://www.gnu.org/licenses/>.
 */
package media

import "sync/atomic"

//
// =============================
// Decoded frame model (C6 data)
// =============================
//

// PixelFormat identifies the layout of a software video payload.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatRGBA                // packed, 4 bytes/px, one plane
	PixelFormatBGRA
	PixelFormatYUV420P // three planes
	PixelFormatNV12    // two planes
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGBA:
		return "rgba"
	case PixelFormatBGRA:
		return "bgra"
	case PixelFormatYUV420P:
		return "yuv420p"
	case PixelFormatNV12:
		return "nv12"
	}
	return "unknown"
}

// HWAccel tags a hardware frame handle with its API.
type HWAccel int

const (
	HWAccelNone HWAccel = iota
	HWAccelVideoToolbox
	HWAccelVAAPI
	HWAccelNVDEC
)

// SoftwareVideo holds decoded planes. The plane storage is shared and
// reference counted; each stage that keeps the frame calls Retain and
// pairs it with Release. When the count hits zero the buffer goes back
// to its pool.
type SoftwareVideo struct {
	Planes  [][]byte
	Strides []int

	refs *atomic.Int32
	pool *FramePool
	buf  []byte // backing allocation, returned to pool on final release
}

// NewSoftwareVideo wraps a single packed buffer (stride*height bytes).
func NewSoftwareVideo(buf []byte, stride int, pool *FramePool) *SoftwareVideo {
	refs := &atomic.Int32{}
	refs.Store(1)
	return &SoftwareVideo{
		Planes:  [][]byte{buf},
		Strides: []int{stride},
		refs:    refs,
		pool:    pool,
		buf:     buf,
	}
}

// NewPlanarVideo wraps an already-sliced plane set backed by one buffer.
func NewPlanarVideo(buf []byte, planes [][]byte, strides []int, pool *FramePool) *SoftwareVideo {
	refs := &atomic.Int32{}
	refs.Store(1)
	return &SoftwareVideo{Planes: planes, Strides: strides, refs: refs, pool: pool, buf: buf}
}

func (s *SoftwareVideo) Retain() *SoftwareVideo {
	if s != nil {
		s.refs.Add(1)
	}
	return s
}

func (s *SoftwareVideo) Release() {
	if s == nil {
		return
	}
	if s.refs.Add(-1) == 0 && s.pool != nil && s.buf != nil {
		s.pool.Put(s.buf)
		s.buf = nil
		s.Planes = nil
	}
}

// HardwareVideo is an opaque device-side frame handle. No decoder in
// this module produces one; decoded pictures are software RGBA.
type HardwareVideo struct {
	Accel  HWAccel
	Handle uintptr
}

// VideoFrame is one decoded picture, or an EOF/error sentinel in place
// of a payload.
type VideoFrame struct {
	Width  int
	Height int
	Format PixelFormat

	PTS    Timestamp
	Dur    Duration
	Serial uint64

	SW *SoftwareVideo
	HW *HardwareVideo

	eof bool
	err error
}

func EOFVideoFrame(serial uint64) VideoFrame {
	return VideoFrame{PTS: NoTimestamp, Serial: serial, eof: true}
}

func ErrorVideoFrame(err error, serial uint64) VideoFrame {
	return VideoFrame{PTS: NoTimestamp, Serial: serial, err: err}
}

func (f *VideoFrame) IsEOF() bool { return f.eof }
func (f *VideoFrame) IsError() bool { return f.err != nil }
func (f *VideoFrame) Err() error { return f.err }

// HasData reports whether the frame carries a decodable payload.
func (f *VideoFrame) HasData() bool { return f.SW != nil || f.HW != nil }

// Retain bumps the payload refcount and returns a shallow copy.
func (f *VideoFrame) Retain() VideoFrame {
	out := *f
	out.SW = f.SW.Retain()
	return out
}

// Release drops this holder's payload reference.
func (f *VideoFrame) Release() {
	f.SW.Release()
	f.SW = nil
}

// SampleFormat describes audio sample encoding and layout.
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatU8
	SampleFormatS16 // interleaved signed 16-bit, the device target
	SampleFormatS16P
	SampleFormatS32
	SampleFormatF32
	SampleFormatF32P
)

// IsPlanar reports whether each channel lives in its own plane.
func (s SampleFormat) IsPlanar() bool {
	return s == SampleFormatS16P || s == SampleFormatF32P
}

// BytesPerSample for one channel.
func (s SampleFormat) BytesPerSample() int {
	switch s {
	case SampleFormatU8:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatF32, SampleFormatF32P:
		return 4
	}
	return 0
}

// AudioFrame is a block of decoded samples, or an EOF/error sentinel.
type AudioFrame struct {
	SampleRate int
	Channels   int
	NbSamples  int // per channel
	Format     SampleFormat

	PTS    Timestamp
	Dur    Duration
	Serial uint64

	// Data holds one plane for interleaved formats, one per channel
	// for planar ones.
	Data [][]byte

	eof bool
	err error
}

func EOFAudioFrame(serial uint64) AudioFrame {
	return AudioFrame{PTS: NoTimestamp, Serial: serial, eof: true}
}

func ErrorAudioFrame(err error, serial uint64) AudioFrame {
	return AudioFrame{PTS: NoTimestamp, Serial: serial, err: err}
}

func (f *AudioFrame) IsEOF() bool { return f.eof }
func (f *AudioFrame) IsError() bool { return f.err != nil }
func (f *AudioFrame) Err() error { return f.err }
func (f *AudioFrame) HasData() bool { return len(f.Data) > 0 }
