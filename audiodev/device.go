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
package audiodev

import "github.com/opencine/playkit/media"

// Callback fills out with exactly len(out) bytes of interleaved PCM.
// It runs on the audio thread: no locks, no allocation, no logging.
type Callback func(out []byte)

// Device is a playback endpoint. The core installs one callback and
// the device pulls from it at its own cadence.
type Device interface {
	Open(sampleRate, channels int, format media.SampleFormat, bufferSamples int) error
	SetCallback(cb Callback)
	Pause(paused bool)
	Close() error
}

// Target output format used by the audio sink.
const (
	TargetSampleRate     = 48000
	TargetChannels       = 2
	TargetBytesPerSample = 2
	TargetBufferSamples  = 2048
)

// TargetBytesPerSecond at the device format.
const TargetBytesPerSecond = TargetSampleRate * TargetChannels * TargetBytesPerSample
