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
package decoder

import "github.com/opencine/playkit/media"

// AccessMode hints how the handle will be driven.
type AccessMode int

const (
	AccessSequential AccessMode = iota // playback order
	AccessRandom                       // scrubbing / compositor fetches
)

// Options configures a decoder handle.
type Options struct {
	Accel       media.HWAccel
	ThreadCount int // 0 = codec default
	Access      AccessMode
}

// Decoder is the offline decode abstraction: one handle per open file,
// driven by a single goroutine at a time. This is the stack the
// compositor and prefetcher use for frame fetching; live playback goes
// through the node graph instead.
type Decoder interface {
	// Seek positions the demuxer at or before pts (backward seek).
	Seek(pts media.Timestamp) error

	// DecodeNextVideoFrame returns the next video frame in decode
	// order, converted to packed RGBA. media.ErrEndOfFile at the end.
	DecodeNextVideoFrame() (media.VideoFrame, error)

	// DecodeNextAudioFrame returns the next audio frame.
	// media.ErrEndOfFile at the end.
	DecodeNextAudioFrame() (media.AudioFrame, error)

	Duration() media.Duration
	Width() int
	Height() int
	FrameRate() media.Rational
	SampleRate() int
	Channels() int
	HasVideo() bool
	HasAudio() bool

	Close()
}
