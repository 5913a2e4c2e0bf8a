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
package engine

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/opencine/playkit/clock"
	"github.com/opencine/playkit/compositor"
	"github.com/opencine/playkit/event"
	"github.com/opencine/playkit/framecache"
	"github.com/opencine/playkit/media"
	"github.com/opencine/playkit/timeline"
)

// PlaybackState mirrors the pipeline's state machine for timeline
// playback.
type PlaybackState int32

const (
	PlaybackStopped PlaybackState = iota
	PlaybackPlaying
	PlaybackPaused
	PlaybackSeeking
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackStopped:
		return "stopped"
	case PlaybackPlaying:
		return "playing"
	case PlaybackPaused:
		return "paused"
	case PlaybackSeeking:
		return "seeking"
	}
	return "unknown"
}

// FrameCallback receives each composed frame with its timeline pts.
// The engine releases the frame after the callback returns; retain it
// to keep it.
type FrameCallback func(frame *media.VideoFrame, pts media.Timestamp)

// Engine drives the compositor from its own monotonic timer when a
// sequence (not a single file) is playing. One frame advances per due
// frame duration; the wall clock, not decode completion, sets the
// pace.
type Engine struct {
	mu sync.Mutex

	seq  *timeline.Sequence
	comp *compositor.Compositor

	cache *framecache.Cache
	clk   *clock.MasterClock
	pre   *Prefetcher

	frameCb FrameCallback

	state    atomic.Int32
	current  atomic.Int64
	stopping atomic.Bool
	loopOn   atomic.Bool
	looping  atomic.Bool
	speed    atomic.Uint64 // float bits

	duration media.Duration
	frameDur media.Duration
	inPoint  atomic.Int64
	outPoint atomic.Int64

	wg sync.WaitGroup

	StateChanged    event.Signal[PlaybackState]
	PositionChanged event.Signal[media.Timestamp]
	PlaybackEnded   event.Signal[struct{}]

	logger *log.Logger
}

func New() *Engine {
	e := &Engine{
		cache:  framecache.New(0, 0),
		clk:    clock.NewMasterClock(),
		logger: log.WithPrefix("engine"),
	}
	e.speed.Store(math.Float64bits(1.0))
	e.frameDur = media.NewRational(30, 1).FrameDuration()
	return e
}

// ========== configuration ==========

// SetSequence swaps the sequence, pausing around the change when
// playing.
func (e *Engine) SetSequence(seq *timeline.Sequence) {
	wasPlaying := e.State() == PlaybackPlaying
	if wasPlaying {
		e.Pause()
	}

	e.mu.Lock()
	e.seq = seq
	if seq != nil {
		e.duration = seq.Duration()
		e.frameDur = seq.Settings.FrameDuration()
		e.outPoint.Store(e.duration)
	}
	e.mu.Unlock()

	if wasPlaying {
		e.Play()
	}
}

func (e *Engine) SetCompositor(c *compositor.Compositor) {
	e.mu.Lock()
	e.comp = c
	e.mu.Unlock()
}

// SetPrefetcher wires the background cache filler; optional.
func (e *Engine) SetPrefetcher(p *Prefetcher) {
	e.mu.Lock()
	e.pre = p
	e.mu.Unlock()
}

// OnFrame installs the frame-ready callback.
func (e *Engine) OnFrame(cb FrameCallback) {
	e.mu.Lock()
	e.frameCb = cb
	e.mu.Unlock()
}

// SetPlaybackSpeed clamps to [0.1, 8.0].
func (e *Engine) SetPlaybackSpeed(speed float64) {
	if speed < 0.1 {
		speed = 0.1
	}
	if speed > 8.0 {
		speed = 8.0
	}
	e.speed.Store(math.Float64bits(speed))
}

func (e *Engine) PlaybackSpeed() float64 { return math.Float64frombits(e.speed.Load()) }

func (e *Engine) SetLooping(loop bool) { e.looping.Store(loop) }
func (e *Engine) IsLooping() bool { return e.looping.Load() }

// ========== transport ==========

func (e *Engine) Play() {
	if !e.transition(PlaybackStopped, PlaybackPlaying) &&
		!e.transition(PlaybackPaused, PlaybackPlaying) {
		return
	}
	e.clk.Resume()
	e.startLoop()
	e.StateChanged.Emit(PlaybackPlaying)
}

func (e *Engine) Pause() {
	if !e.transition(PlaybackPlaying, PlaybackPaused) {
		return
	}
	e.clk.Pause()
	e.StateChanged.Emit(PlaybackPaused)
}

func (e *Engine) TogglePlayPause() {
	if e.State() == PlaybackPlaying {
		e.Pause()
	} else {
		e.Play()
	}
}

// Stop halts playback and rewinds to the start.
func (e *Engine) Stop() {
	e.stopping.Store(true)
	e.state.Store(int32(PlaybackStopped))
	e.wg.Wait()
	e.stopping.Store(false)

	e.Seek(0)
	e.StateChanged.Emit(PlaybackStopped)
}

// Seek jumps to a timeline position and delivers one composed frame
// there, even while paused.
func (e *Engine) Seek(t media.Timestamp) {
	if t < 0 {
		t = 0
	}
	e.mu.Lock()
	if t > e.duration {
		t = e.duration
	}
	comp := e.comp
	cb := e.frameCb
	pre := e.pre
	e.mu.Unlock()

	// while playing, just retime: the loop composes the new position
	// on its next tick
	if e.State() == PlaybackPlaying {
		e.current.Store(t)
		e.clk.Seek(t)
		if pre != nil {
			pre.Kick(t)
		}
		e.PositionChanged.Emit(t)
		return
	}

	prev := e.State()
	e.state.Store(int32(PlaybackSeeking))

	e.current.Store(t)
	e.clk.Seek(t)

	if comp != nil && cb != nil {
		frame := comp.Compose(t)
		cb(&frame, t)
		frame.Release()
	}
	if pre != nil {
		pre.Kick(t)
	}

	e.state.Store(int32(prev))
	e.PositionChanged.Emit(t)
}

// StepForward advances exactly one frame (pauses first).
func (e *Engine) StepForward() {
	if e.State() == PlaybackPlaying {
		e.Pause()
	}
	e.Seek(e.current.Load() + e.frameDur)
}

// StepBackward rewinds exactly one frame (pauses first).
func (e *Engine) StepBackward() {
	if e.State() == PlaybackPlaying {
		e.Pause()
	}
	t := e.current.Load() - e.frameDur
	if t < 0 {
		t = 0
	}
	e.Seek(t)
}

func (e *Engine) GoToStart() { e.Seek(0) }
func (e *Engine) GoToEnd() { e.Seek(e.duration) }

// ========== in/out points ==========

func (e *Engine) SetInPoint(t media.Timestamp) {
	if t < 0 {
		t = 0
	}
	if out := e.outPoint.Load(); t > out {
		t = out
	}
	e.inPoint.Store(t)
}

func (e *Engine) SetOutPoint(t media.Timestamp) {
	if in := e.inPoint.Load(); t < in {
		t = in
	}
	if t > e.duration {
		t = e.duration
	}
	e.outPoint.Store(t)
}

func (e *Engine) ClearInOutPoints() {
	e.inPoint.Store(0)
	e.outPoint.Store(e.duration)
}

// ========== queries ==========

func (e *Engine) State() PlaybackState { return PlaybackState(e.state.Load()) }
func (e *Engine) IsPlaying() bool { return e.State() == PlaybackPlaying }
func (e *Engine) IsPaused() bool { return e.State() == PlaybackPaused }
func (e *Engine) CurrentTime() media.Timestamp { return e.current.Load() }
func (e *Engine) Duration() media.Duration { return e.duration }
func (e *Engine) FrameDuration() media.Duration { return e.frameDur }
func (e *Engine) InPoint() media.Timestamp { return e.inPoint.Load() }
func (e *Engine) OutPoint() media.Timestamp { return e.outPoint.Load() }
func (e *Engine) Clock() *clock.MasterClock { return e.clk }
func (e *Engine) Cache() *framecache.Cache { return e.cache }

// ========== playback loop ==========

// startLoop spawns the playback goroutine if none is live. A live loop
// spans pause/resume and picks up state changes itself.
func (e *Engine) startLoop() {
	if e.loopOn.Swap(true) {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.playbackLoop()
		e.loopOn.Store(false)
		// a Play racing our exit must not be left without a loop
		if !e.stopping.Load() && e.State() == PlaybackPlaying {
			e.startLoop()
		}
	}()
}

func (e *Engine) playbackLoop() {
	last := time.Now()

	for !e.stopping.Load() {
		switch e.State() {
		case PlaybackPaused, PlaybackSeeking:
			time.Sleep(2 * time.Millisecond)
			last = time.Now()
			continue
		case PlaybackPlaying:
		default:
			return
		}

		now := time.Now()
		elapsed := now.Sub(last).Microseconds()

		// wall-clock pacing with the speed multiplier applied
		target := int64(float64(e.frameDur) / e.PlaybackSpeed())
		if target <= 0 {
			target = e.frameDur
		}

		if elapsed < target {
			naptime := time.Duration(target-elapsed) * time.Microsecond
			if naptime > time.Millisecond {
				time.Sleep(naptime / 2)
			} else {
				time.Sleep(100 * time.Microsecond)
			}
			continue
		}

		last = now
		t := e.current.Add(e.frameDur)

		// in/out points: loop back or finish
		if out := e.outPoint.Load(); t >= out && out > 0 {
			if e.looping.Load() {
				t = e.inPoint.Load()
				e.current.Store(t)
			} else {
				e.state.Store(int32(PlaybackStopped))
				e.PlaybackEnded.Emit(struct{}{})
				return
			}
		}

		e.clk.Update(t)

		e.mu.Lock()
		comp := e.comp
		cb := e.frameCb
		pre := e.pre
		e.mu.Unlock()

		if comp != nil && cb != nil {
			frame := comp.Compose(t)
			cb(&frame, t)
			frame.Release()
		}
		if pre != nil {
			pre.Kick(t)
		}

		e.PositionChanged.Emit(t)
	}
}

func (e *Engine) transition(from, to PlaybackState) bool {
	return e.state.CompareAndSwap(int32(from), int32(to))
}
