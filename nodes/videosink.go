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
package nodes

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/opencine/playkit/clock"
	"github.com/opencine/playkit/graph"
	"github.com/opencine/playkit/media"
	"github.com/opencine/playkit/render"
)

// presentation margin subtracted from sync sleeps
const presentMargin = 1 * time.Millisecond

// VideoSinkNode pulls frames, syncs them against the master clock and
// drives the renderer. The first in-serial frame after start or seek
// is presented immediately and fires the ready callback (pre-roll).
type VideoSinkNode struct {
	name   string
	logger *log.Logger

	In *graph.Pin[media.VideoFrame]

	renderer render.Renderer
	clk      *clock.MasterClock
	serial   *atomic.Uint64

	running atomic.Bool
	wg      sync.WaitGroup

	firstFrame bool

	onReady func()
	onEOF   func()
	onError func(string)

	consecutiveErrors int

	framesRendered atomic.Uint64
	framesDropped  atomic.Uint64
}

func NewVideoSinkNode(name string, capacity int, serial *atomic.Uint64) *VideoSinkNode {
	if capacity <= 0 {
		capacity = graph.DefaultVideoFrameCapacity
	}
	return &VideoSinkNode{
		name:   name,
		In:     graph.NewPin[media.VideoFrame](capacity),
		serial: serial,
		logger: log.WithPrefix(name),
	}
}

func (n *VideoSinkNode) Name() string { return n.name }

func (n *VideoSinkNode) SetRenderer(r render.Renderer) { n.renderer = r }
func (n *VideoSinkNode) SetClock(c *clock.MasterClock) { n.clk = c }
func (n *VideoSinkNode) SetReadyCallback(fn func()) { n.onReady = fn }
func (n *VideoSinkNode) SetEOFCallback(fn func()) { n.onEOF = fn }
func (n *VideoSinkNode) SetErrorCallback(fn func(string)) { n.onError = fn }

func (n *VideoSinkNode) Start() {
	if n.running.Swap(true) {
		return
	}
	n.firstFrame = true
	n.In.Reset()
	n.wg.Add(1)
	go n.workerLoop()
	n.logger.Debug("started")
}

func (n *VideoSinkNode) Stop() {
	if !n.running.Swap(false) {
		return
	}
	n.In.Stop()
	n.wg.Wait()
	n.logger.Info("stopped", "rendered", n.framesRendered.Load(), "dropped", n.framesDropped.Load())
}

// Flush discards queued frames and re-arms the pre-roll ready shot.
func (n *VideoSinkNode) Flush() {
	n.In.FlushWith(func(f media.VideoFrame) { f.Release() })
	n.firstFrame = true
}

// ResetReady re-arms the first-frame notification without flushing.
func (n *VideoSinkNode) ResetReady() { n.firstFrame = true }

func (n *VideoSinkNode) FramesRendered() uint64 { return n.framesRendered.Load() }
func (n *VideoSinkNode) FramesDropped() uint64 { return n.framesDropped.Load() }

func (n *VideoSinkNode) workerLoop() {
	defer n.wg.Done()

	for n.running.Load() {
		// short timeout so shutdown stays snappy
		frame, res := n.In.Pop(50 * time.Millisecond)
		switch res {
		case graph.PopTerminated:
			return
		case graph.PopTimeout:
			continue
		}
		if !n.running.Load() {
			frame.Release()
			return
		}
		n.consume(frame)
	}
}

func (n *VideoSinkNode) consume(frame media.VideoFrame) {
	if frame.IsEOF() {
		n.logger.Info("eof")
		if n.onEOF != nil {
			n.onEOF()
		}
		return
	}

	if frame.IsError() {
		n.consecutiveErrors++
		n.logger.Error("error frame", "consecutive", n.consecutiveErrors)
		if n.consecutiveErrors >= maxConsecutiveDecodeErrors && n.onError != nil {
			n.onError("too many consecutive decode errors")
		}
		return
	}
	n.consecutiveErrors = 0

	// stale frames from before a seek die here
	if frame.Serial != n.serial.Load() {
		n.framesDropped.Add(1)
		frame.Release()
		return
	}

	// pre-roll: hold nothing, show the first frame right away
	if n.firstFrame {
		n.firstFrame = false
		n.logger.Debug("first frame", "pts", frame.PTS)
		n.renderFrame(&frame)
		frame.Release()
		if n.onReady != nil {
			n.onReady()
		}
		return
	}

	if n.clk != nil {
		switch n.clk.ShouldPresent(frame.PTS) {
		case clock.SyncDrop:
			n.framesDropped.Add(1)
			frame.Release()
			return
		case clock.SyncWait:
			n.waitForPresentation(frame.PTS)
			// the world may have moved while we slept
			if frame.Serial != n.serial.Load() || !n.running.Load() {
				n.framesDropped.Add(1)
				frame.Release()
				return
			}
		case clock.SyncPresent:
		}
	}

	n.renderFrame(&frame)
	frame.Release()
}

func (n *VideoSinkNode) waitForPresentation(pts media.Timestamp) {
	delay := n.clk.UntilPresent(pts)
	for delay > 0 && n.running.Load() {
		sleep := media.ToStd(delay) - presentMargin
		if sleep <= 0 {
			return
		}
		// bounded naps so stop and seek stay responsive
		if sleep > 50*time.Millisecond {
			sleep = 50 * time.Millisecond
		}
		time.Sleep(sleep)
		delay = n.clk.UntilPresent(pts)
	}
}

func (n *VideoSinkNode) renderFrame(frame *media.VideoFrame) {
	if n.renderer == nil {
		return
	}
	if err := n.renderer.Draw(frame); err != nil {
		n.logger.Warn("render failed", "err", err)
		return
	}
	n.renderer.Present()
	n.framesRendered.Add(1)
}
