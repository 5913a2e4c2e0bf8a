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
package clock

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/opencine/playkit/media"
)

//
// ==============================
// Master clock (SeqLock pattern)
// ==============================
//
// Single writer (the audio callback, or a timer in wall-clock mode),
// many lock-free readers (video sink, UI). Sequence is odd while a
// write is in flight; readers retry until they see the same even value
// before and after the field loads.
//

// SyncAction is the verdict for a frame at its presentation time.
type SyncAction int

const (
	SyncPresent SyncAction = iota
	SyncWait
	SyncDrop
)

// A/V sync thresholds, µs.
const (
	SyncWaitThreshold media.Duration = 500_000  // video early by more than this: sleep
	SyncDropThreshold media.Duration = -100_000 // video late by more than this: drop
	SyncRushThreshold media.Duration = -10_000  // slightly late: present without sleeping
)

// epoch anchors the process-local monotonic time source.
var epoch = time.Now()

func nowReal() int64 { return time.Since(epoch).Microseconds() }

// MasterClock maps real time to media time.
//
// Update/Seek/Pause/Resume/Start/Reset are single-writer. Now and
// ShouldPresent are lock-free and safe from any goroutine.
type MasterClock struct {
	seq       atomic.Uint64
	baseMedia atomic.Int64
	baseReal  atomic.Int64

	paused      atomic.Bool
	pausedMedia atomic.Int64

	hasAudio  atomic.Bool
	wallClock atomic.Bool

	// playback rate multiplier as float bits; 1.0 when unset
	rateBits atomic.Uint64
}

func NewMasterClock() *MasterClock {
	c := &MasterClock{}
	c.rateBits.Store(math.Float64bits(1.0))
	return c
}

// ========== writer side ==========

// Update publishes a new base point (mediaTime now). Called from the
// audio callback or a wall-clock timer.
func (c *MasterClock) Update(mediaTime media.Timestamp) {
	seq := c.seq.Load()
	c.seq.Store(seq + 1) // odd: write in progress
	c.baseMedia.Store(mediaTime)
	c.baseReal.Store(nowReal())
	c.seq.Store(seq + 2) // even again
}

// Start unpauses and republishes the current base.
func (c *MasterClock) Start() {
	c.paused.Store(false)
	c.Update(c.baseMedia.Load())
}

// Pause freezes Now at the current media time.
func (c *MasterClock) Pause() {
	if !c.paused.Swap(true) {
		c.pausedMedia.Store(c.nowUnpaused())
	}
}

// Resume continues from where Pause froze.
func (c *MasterClock) Resume() {
	if c.paused.Swap(false) {
		c.Update(c.pausedMedia.Load())
	}
}

// Seek repositions the clock. The paused snapshot moves with it so a
// paused clock reports the target immediately.
func (c *MasterClock) Seek(target media.Timestamp) {
	c.Update(target)
	c.pausedMedia.Store(target)
}

// SetRate sets the playback speed multiplier applied to interpolation.
func (c *MasterClock) SetRate(rate float64) {
	if rate <= 0 {
		rate = 1.0
	}
	// republish the base so already-elapsed time keeps the old rate
	c.Update(c.nowUnpaused())
	c.rateBits.Store(math.Float64bits(rate))
}

func (c *MasterClock) Rate() float64 {
	return math.Float64frombits(c.rateBits.Load())
}

// Reset returns the clock to its initial state.
func (c *MasterClock) Reset() {
	c.seq.Store(0)
	c.baseMedia.Store(0)
	c.baseReal.Store(nowReal())
	c.paused.Store(false)
	c.pausedMedia.Store(0)
	c.hasAudio.Store(false)
	c.wallClock.Store(false)
	c.rateBits.Store(math.Float64bits(1.0))
}

// ========== reader side ==========

// Now returns the current media time. Lock-free; spins only while a
// write is in flight.
func (c *MasterClock) Now() media.Timestamp {
	if c.paused.Load() {
		return c.pausedMedia.Load()
	}
	return c.nowUnpaused()
}

func (c *MasterClock) nowUnpaused() media.Timestamp {
	var mediaT, realT int64
	for {
		s1 := c.seq.Load()
		mediaT = c.baseMedia.Load()
		realT = c.baseReal.Load()
		s2 := c.seq.Load()
		if s1 == s2 && s1&1 == 0 {
			break
		}
	}
	elapsed := nowReal() - realT
	rate := math.Float64frombits(c.rateBits.Load())
	if rate != 1.0 {
		elapsed = int64(float64(elapsed) * rate)
	}
	return mediaT + elapsed
}

// UntilPresent returns how long until pts should hit the screen
// (negative when late).
func (c *MasterClock) UntilPresent(pts media.Timestamp) media.Duration {
	if pts == media.NoTimestamp {
		return 0
	}
	return pts - c.Now()
}

// ShouldPresent classifies a frame: drop it, sleep for it, or show it.
func (c *MasterClock) ShouldPresent(pts media.Timestamp) SyncAction {
	if pts == media.NoTimestamp {
		return SyncPresent
	}
	delay := c.UntilPresent(pts)
	switch {
	case delay > SyncWaitThreshold:
		return SyncWait
	case delay < SyncDropThreshold:
		return SyncDrop
	case delay < SyncRushThreshold:
		// slightly late; pushing it out now is better than dropping
		return SyncPresent
	case delay > 0:
		return SyncWait
	default:
		return SyncPresent
	}
}

// ========== audio source state ==========

func (c *MasterClock) SetAudioSource(has bool) { c.hasAudio.Store(has) }
func (c *MasterClock) HasAudioSource() bool { return c.hasAudio.Load() }

// UseWallClock switches to system-time driving (no audio). Idempotent.
func (c *MasterClock) UseWallClock() {
	if !c.wallClock.Swap(true) {
		c.Update(c.baseMedia.Load())
	}
}

func (c *MasterClock) IsWallClockMode() bool { return c.wallClock.Load() }

func (c *MasterClock) IsPaused() bool { return c.paused.Load() }

// BaseTime returns the last published base media time, uninterpolated.
func (c *MasterClock) BaseTime() media.Timestamp { return c.baseMedia.Load() }
