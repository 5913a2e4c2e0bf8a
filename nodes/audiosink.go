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

	"github.com/opencine/playkit/audiodev"
	"github.com/opencine/playkit/clock"
	"github.com/opencine/playkit/graph"
	"github.com/opencine/playkit/media"
	"github.com/opencine/playkit/ringbuf"
)

// AudioSinkNode feeds the audio device. Its worker pops converted
// frames and writes bytes into the lock-free ring; the device callback
// drains the ring on the audio thread and drives the master clock.
//
// The callback never locks, allocates or logs.
type AudioSinkNode struct {
	name   string
	logger *log.Logger

	In *graph.Pin[media.AudioFrame]

	ring   *ringbuf.Buffer
	clk    *clock.MasterClock
	device audiodev.Device
	serial *atomic.Uint64

	running atomic.Bool
	paused  atomic.Bool
	wg      sync.WaitGroup

	currentPTS atomic.Int64

	firstAudio bool

	onReady func()
	onEOF   func()
	onError func(string)

	consecutiveErrors int

	bytesWritten atomic.Uint64
}

func NewAudioSinkNode(name string, capacity int, ringBytes int, serial *atomic.Uint64) *AudioSinkNode {
	if capacity <= 0 {
		capacity = graph.DefaultAudioFrameCapacity
	}
	n := &AudioSinkNode{
		name:   name,
		In:     graph.NewPin[media.AudioFrame](capacity),
		ring:   ringbuf.New(ringBytes),
		serial: serial,
		logger: log.WithPrefix(name),
	}
	n.currentPTS.Store(media.NoTimestamp)
	return n
}

func (n *AudioSinkNode) Name() string { return n.name }

func (n *AudioSinkNode) SetClock(c *clock.MasterClock) { n.clk = c }
func (n *AudioSinkNode) SetReadyCallback(fn func()) { n.onReady = fn }
func (n *AudioSinkNode) SetEOFCallback(fn func()) { n.onEOF = fn }
func (n *AudioSinkNode) SetErrorCallback(fn func(string)) { n.onError = fn }

// Init opens the device at the target format and installs the
// callback.
func (n *AudioSinkNode) Init(dev audiodev.Device) error {
	if dev == nil {
		return media.ErrInvalidArg
	}
	err := dev.Open(audiodev.TargetSampleRate, audiodev.TargetChannels,
		media.SampleFormatS16, audiodev.TargetBufferSamples)
	if err != nil {
		return err
	}
	dev.SetCallback(n.deviceCallback)
	n.device = dev
	return nil
}

func (n *AudioSinkNode) Start() {
	if n.running.Swap(true) {
		return
	}
	n.firstAudio = true
	n.In.Reset()
	n.ring.Clear()
	n.currentPTS.Store(media.NoTimestamp)
	n.wg.Add(1)
	go n.workerLoop()
	if n.device != nil {
		n.device.Pause(false)
	}
	n.logger.Debug("started")
}

func (n *AudioSinkNode) Stop() {
	if !n.running.Swap(false) {
		return
	}
	if n.device != nil {
		n.device.Pause(true)
	}
	n.In.Stop()
	n.wg.Wait()
	n.logger.Info("stopped", "bytes", n.bytesWritten.Load())
}

// SetPaused silences the callback without stopping the worker.
func (n *AudioSinkNode) SetPaused(paused bool) {
	n.paused.Store(paused)
	if n.device != nil {
		n.device.Pause(paused)
	}
}

// Flush drops queued frames and empties the ring (seek). The worker
// must be idle (source paused) when this runs.
func (n *AudioSinkNode) Flush() {
	n.In.Flush()
	n.ring.Clear()
	n.currentPTS.Store(media.NoTimestamp)
	n.firstAudio = true
}

// ResetReady re-arms the first-frame notification.
func (n *AudioSinkNode) ResetReady() { n.firstAudio = true }

func (n *AudioSinkNode) BufferFillRatio() float64 { return n.ring.FillRatio() }
func (n *AudioSinkNode) BytesWritten() uint64 { return n.bytesWritten.Load() }

// ========== device callback (audio thread) ==========

// deviceCallback runs on the audio thread. Silence when paused or
// stopped; otherwise drain the ring, zero-fill on underrun, and move
// the clock forward by what was actually played.
func (n *AudioSinkNode) deviceCallback(out []byte) {
	if n.paused.Load() || !n.running.Load() {
		zeroFill(out)
		return
	}

	rd := n.ring.Read(out)
	if rd < len(out) {
		zeroFill(out[rd:])
	}

	if rd > 0 && n.clk != nil {
		pts := n.currentPTS.Load()
		if pts != media.NoTimestamp {
			samples := rd / (audiodev.TargetChannels * audiodev.TargetBytesPerSample)
			elapsed := int64(samples) * media.TimeBaseUs / audiodev.TargetSampleRate
			n.clk.Update(pts + elapsed)
		}
	}
}

func zeroFill(p []byte) {
	for i := range p {
		p[i] = 0
	}
}

// ========== worker (sink thread) ==========

func (n *AudioSinkNode) workerLoop() {
	defer n.wg.Done()

	for n.running.Load() {
		// while paused the callback writes silence; queuing more data
		// would only overflow the ring
		if n.paused.Load() {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		frame, res := n.In.Pop(graph.DefaultTimeout)
		switch res {
		case graph.PopTerminated:
			return
		case graph.PopTimeout:
			continue
		}
		n.processFrame(frame)
	}
}

func (n *AudioSinkNode) processFrame(frame media.AudioFrame) {
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
			n.onError("too many consecutive audio errors")
		}
		return
	}
	n.consecutiveErrors = 0

	if frame.Serial != n.serial.Load() {
		return
	}

	if n.firstAudio {
		n.firstAudio = false
		n.logger.Debug("first frame", "pts", frame.PTS, "samples", frame.NbSamples)
		if n.onReady != nil {
			n.onReady()
		}
	}

	if !frame.HasData() {
		return
	}

	n.currentPTS.Store(frame.PTS)

	// blocking fill with short naps; backpressure against the ring
	data := frame.Data[0]
	written := 0
	spins := 0
	const maxSpins = 50
	for written < len(data) && n.running.Load() {
		w := n.ring.Write(data[written:])
		written += w
		if w == 0 {
			time.Sleep(time.Millisecond)
			if spins++; spins > maxSpins {
				if n.running.Load() {
					n.logger.Warn("ring buffer write timeout")
				}
				break
			}
		}
	}
	n.bytesWritten.Add(uint64(written))
}
