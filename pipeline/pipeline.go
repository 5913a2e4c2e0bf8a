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
package pipeline

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/opencine/playkit/audiodev"
	"github.com/opencine/playkit/clock"
	"github.com/opencine/playkit/graph"
	"github.com/opencine/playkit/media"
	"github.com/opencine/playkit/nodes"
	"github.com/opencine/playkit/render"
	"github.com/opencine/playkit/ringbuf"
)

// Config tunes the single-file playback graph.
type Config struct {
	PrerollTimeout      time.Duration
	VideoQueueCapacity  int
	AudioQueueCapacity  int
	PacketQueueCapacity int
	RingBufferBytes     int
	ThreadCount         int // decoder threads, 0 = codec default
}

// DefaultConfig uses the stock queue sizing.
func DefaultConfig() Config {
	return Config{
		PrerollTimeout:      DefaultPrerollTimeout,
		VideoQueueCapacity:  graph.DefaultVideoFrameCapacity,
		AudioQueueCapacity:  graph.DefaultAudioFrameCapacity,
		PacketQueueCapacity: graph.DefaultPacketCapacity,
		RingBufferBytes:     ringbuf.DefaultCapacity,
	}
}

// Pipeline owns the whole single-file playback graph: source, packet
// queues, decoders, frame queues, sinks, the master clock and the
// current serial.
//
//	Source ─ PacketQueue ─ VideoDecoder ─ FrameQueue ─ VideoSink ─ Renderer
//	       └ PacketQueue ─ AudioDecoder ─ FrameQueue ─ AudioSink ─ Ring ─ Device
type Pipeline struct {
	cfg    Config
	logger *log.Logger

	mu sync.Mutex // serializes transport operations

	clk    *clock.MasterClock
	serial atomic.Uint64

	state     atomic.Int32
	prevState atomic.Int32 // state to restore after Seeking

	source *nodes.SourceNode

	vPktQ   *graph.AsyncQueueNode[media.Packet]
	aPktQ   *graph.AsyncQueueNode[media.Packet]
	vDec    *nodes.VideoDecodeNode
	aDec    *nodes.AudioDecodeNode
	vFrameQ *graph.AsyncQueueNode[media.VideoFrame]
	aFrameQ *graph.AsyncQueueNode[media.AudioFrame]
	vSink   *nodes.VideoSinkNode
	aSink   *nodes.AudioSinkNode

	renderer render.Renderer
	device   audiodev.Device

	onEvent EventCallback

	preroll prerollState
	watchWg sync.WaitGroup
	watchOn atomic.Bool

	looping  atomic.Bool
	speed    atomic.Uint64 // float bits
	inPoint  atomic.Int64
	outPoint atomic.Int64

	eofFired atomic.Bool

	opened bool
	path   string
}

// New builds an idle pipeline around a renderer and an audio device.
// Either may be nil (video-only playback, headless tests).
func New(cfg Config, renderer render.Renderer, device audiodev.Device) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		clk:      clock.NewMasterClock(),
		renderer: renderer,
		device:   device,
		logger:   log.WithPrefix("pipeline"),
	}
	p.setSpeed(1.0)
	return p
}

// SetEventCallback installs the transport event listener.
func (p *Pipeline) SetEventCallback(cb EventCallback) { p.onEvent = cb }

func (p *Pipeline) emit(t EventType, msg string) {
	if p.onEvent != nil {
		p.onEvent(Event{Type: t, Message: msg})
	}
}

// ========== accessors ==========

func (p *Pipeline) State() State { return State(p.state.Load()) }
func (p *Pipeline) Clock() *clock.MasterClock { return p.clk }
func (p *Pipeline) Serial() uint64 { return p.serial.Load() }
func (p *Pipeline) IsLooping() bool { return p.looping.Load() }

func (p *Pipeline) Duration() media.Duration {
	if p.source == nil {
		return 0
	}
	return p.source.Duration()
}

func (p *Pipeline) FramesRendered() uint64 {
	if p.vSink == nil {
		return 0
	}
	return p.vSink.FramesRendered()
}

func (p *Pipeline) FramesDropped() uint64 {
	if p.vSink == nil {
		return 0
	}
	return p.vSink.FramesDropped()
}

// ========== open / close ==========

// Open builds the graph for one file. The pipeline stays Stopped until
// Play.
func (p *Pipeline) Open(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opened {
		p.closeLocked()
	}

	p.emit(EventOpening, "")

	src := nodes.NewSourceNode("source", &p.serial)
	if err := src.Open(path); err != nil {
		p.emit(EventError, err.Error())
		return err
	}
	p.source = src
	p.path = path

	pktCap := p.cfg.PacketQueueCapacity
	if pktCap < graph.MinPacketCapacity {
		pktCap = graph.MinPacketCapacity
	}
	if pktCap > graph.MaxPacketCapacity {
		pktCap = graph.MaxPacketCapacity
	}

	if src.HasVideo() {
		p.vPktQ = graph.NewAsyncQueueNode[media.Packet]("video-packet-queue", pktCap)
		p.vDec = nodes.NewVideoDecodeNode("video-decoder", 4, &p.serial)
		p.vFrameQ = graph.NewAsyncQueueNode[media.VideoFrame]("video-frame-queue", p.cfg.VideoQueueCapacity)
		p.vSink = nodes.NewVideoSinkNode("video-sink", 4, &p.serial)

		if err := p.vDec.Init(src.VideoStream(), p.cfg.ThreadCount, src.FrameRate()); err != nil {
			p.emit(EventError, err.Error())
			p.closeLocked()
			return err
		}

		src.VideoOut = p.vPktQ.In
		p.vPktQ.Out = p.vDec.In
		p.vDec.Out = p.vFrameQ.In
		p.vFrameQ.Out = p.vSink.In

		p.vSink.SetClock(p.clk)
		p.vSink.SetRenderer(p.renderer)
		p.vSink.SetReadyCallback(p.onVideoReady)
		p.vSink.SetEOFCallback(p.onVideoEOF)
		p.vSink.SetErrorCallback(p.onSinkError)

		if p.renderer != nil {
			w, h := src.VideoSize()
			if err := p.renderer.Init(w, h, path); err != nil {
				p.emit(EventError, err.Error())
				p.closeLocked()
				return err
			}
		}
	}

	if src.HasAudio() {
		p.aPktQ = graph.NewAsyncQueueNode[media.Packet]("audio-packet-queue", pktCap)
		p.aDec = nodes.NewAudioDecodeNode("audio-decoder", 8, &p.serial)
		p.aFrameQ = graph.NewAsyncQueueNode[media.AudioFrame]("audio-frame-queue", p.cfg.AudioQueueCapacity)
		p.aSink = nodes.NewAudioSinkNode("audio-sink", 8, p.cfg.RingBufferBytes, &p.serial)

		if err := p.aDec.Init(src.AudioStream()); err != nil {
			// no audio is not fatal; fall back to video-only
			p.logger.Warn("audio decoder unavailable", "err", err)
			p.emit(EventWarning, "audio decoder unavailable")
			p.aPktQ, p.aDec, p.aFrameQ, p.aSink = nil, nil, nil, nil
		} else {
			src.AudioOut = p.aPktQ.In
			p.aPktQ.Out = p.aDec.In
			p.aDec.Out = p.aFrameQ.In
			p.aFrameQ.Out = p.aSink.In

			p.aSink.SetClock(p.clk)
			p.aSink.SetReadyCallback(p.onAudioReady)
			p.aSink.SetEOFCallback(p.onAudioEOF)
			p.aSink.SetErrorCallback(p.onAudioSinkError)

			if p.device != nil {
				if err := p.aSink.Init(p.device); err != nil {
					p.logger.Warn("audio device unavailable", "err", err)
					p.emit(EventWarning, "audio device unavailable")
				}
			}
		}
	}

	src.SetEOFCallback(func() { p.logger.Debug("source eof") })

	p.clk.Reset()
	p.clk.SetAudioSource(p.hasAudio())
	p.inPoint.Store(0)
	p.outPoint.Store(src.Duration())
	p.opened = true

	p.logger.Info("opened", "path", path, "duration", src.Duration(),
		"video", src.HasVideo(), "audio", p.hasAudio())
	return nil
}

func (p *Pipeline) hasAudio() bool { return p.aSink != nil }

// Close stops everything and releases the graph.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Pipeline) closeLocked() {
	p.stopLocked()
	if p.vDec != nil {
		p.vDec.Close()
	}
	if p.aDec != nil {
		p.aDec.Close()
	}
	if p.source != nil {
		p.source.Close()
	}
	p.source = nil
	p.vPktQ, p.aPktQ = nil, nil
	p.vDec, p.aDec = nil, nil
	p.vFrameQ, p.aFrameQ = nil, nil
	p.vSink, p.aSink = nil, nil
	p.opened = false
}

// ========== transport ==========

// Play starts playback, or resumes from pause.
func (p *Pipeline) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StatePaused:
		p.resumeLocked()
		return nil
	case StateStopped:
		return p.startLocked()
	default:
		return nil
	}
}

// startLocked implements Stopped -> Buffering. Downstream first: when
// the source emits its first packet every consumer is already waiting.
func (p *Pipeline) startLocked() error {
	if !p.opened {
		return media.ErrNotInitialized
	}

	p.setState(StateBuffering)
	p.emit(EventBuffering, "")
	p.eofFired.Store(false)
	p.preroll.begin(p.vSink != nil, p.hasAudio(), p.cfg.PrerollTimeout)

	// sinks
	if p.vSink != nil {
		p.vSink.Start()
	}
	if p.aSink != nil {
		p.aSink.Start()
	}
	// frame queues
	if p.vFrameQ != nil {
		p.vFrameQ.Start()
	}
	if p.aFrameQ != nil {
		p.aFrameQ.Start()
	}
	// decoders
	if p.vDec != nil {
		p.vDec.Start()
	}
	if p.aDec != nil {
		p.aDec.Start()
	}
	// packet queues
	if p.vPktQ != nil {
		p.vPktQ.Start()
	}
	if p.aPktQ != nil {
		p.aPktQ.Start()
	}
	// source last
	p.source.Start()

	p.startWatchdog()

	p.logger.Info("started, waiting for pre-roll")
	return nil
}

// Pause freezes the clock and silences audio.
func (p *Pipeline) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() != StatePlaying {
		return
	}
	p.clk.Pause()
	if p.aSink != nil {
		p.aSink.SetPaused(true)
	}
	p.setState(StatePaused)
	p.emit(EventPaused, "")
}

func (p *Pipeline) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumeLocked()
}

func (p *Pipeline) resumeLocked() {
	if p.State() != StatePaused {
		return
	}
	p.clk.Resume()
	if p.aSink != nil {
		p.aSink.SetPaused(false)
	}
	p.setState(StatePlaying)
	p.emit(EventPlaying, "")
}

// TogglePause flips between Playing and Paused.
func (p *Pipeline) TogglePause() {
	if p.State() == StatePlaying {
		p.Pause()
	} else {
		p.Resume()
	}
}

// Stop tears the graph down to Stopped.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// stopLocked: every pin is stopped before any worker join so blocked
// producers wake and exit; then nodes shut down source-first.
func (p *Pipeline) stopLocked() {
	if p.State() == StateStopped {
		return
	}
	p.logger.Info("stopping")

	p.stopWatchdog()

	// 1. wake everything blocked on a pin
	if p.vPktQ != nil {
		p.vPktQ.In.Stop()
	}
	if p.aPktQ != nil {
		p.aPktQ.In.Stop()
	}
	if p.vDec != nil {
		p.vDec.In.Stop()
	}
	if p.aDec != nil {
		p.aDec.In.Stop()
	}
	if p.vFrameQ != nil {
		p.vFrameQ.In.Stop()
	}
	if p.aFrameQ != nil {
		p.aFrameQ.In.Stop()
	}
	if p.vSink != nil {
		p.vSink.In.Stop()
	}
	if p.aSink != nil {
		p.aSink.In.Stop()
	}

	// 2. join workers, source first
	if p.source != nil {
		p.source.Stop()
	}
	if p.vPktQ != nil {
		p.vPktQ.Stop()
	}
	if p.aPktQ != nil {
		p.aPktQ.Stop()
	}
	if p.vDec != nil {
		p.vDec.Stop()
	}
	if p.aDec != nil {
		p.aDec.Stop()
	}
	if p.vFrameQ != nil {
		p.vFrameQ.Stop()
	}
	if p.aFrameQ != nil {
		p.aFrameQ.Stop()
	}
	if p.vSink != nil {
		p.vSink.Stop()
	}
	if p.aSink != nil {
		p.aSink.Stop()
	}

	p.clk.Pause()
	p.setState(StateStopped)
	p.logger.Info("stopped")
}

// ========== seek ==========

// Seek repositions playback. Atomic with respect to in-flight data:
// the serial bump makes every stage drop items from before this call.
func (p *Pipeline) Seek(target media.Timestamp) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.opened {
		return media.ErrNotInitialized
	}
	st := p.State()
	if st == StateStopped || st == StateError {
		return media.ErrInvalidArg
	}

	if target < 0 {
		target = 0
	}
	if d := p.source.Duration(); d > 0 && target > d {
		target = d
	}

	// 1. capture previous state, enter Seeking
	if st != StateSeeking {
		if st == StateBuffering {
			// a seek mid-buffering lands in Playing once ready
			st = StatePlaying
		}
		p.prevState.Store(int32(st))
	}
	p.setState(StateSeeking)
	p.emit(EventSeeking, "")

	// 2. from this moment every stage drops the old generation
	p.serial.Add(1)

	// 3. stop reading new packets
	p.source.Pause()

	// 4. flush queues, decoder buffers and the audio ring
	if p.vPktQ != nil {
		p.vPktQ.Flush()
	}
	if p.aPktQ != nil {
		p.aPktQ.Flush()
	}
	if p.vFrameQ != nil {
		p.vFrameQ.In.FlushWith(func(f media.VideoFrame) { f.Release() })
	}
	if p.aFrameQ != nil {
		p.aFrameQ.Flush()
	}
	if p.vDec != nil {
		p.vDec.Flush()
	}
	if p.aDec != nil {
		p.aDec.Flush()
	}
	if p.vSink != nil {
		p.vSink.Flush()
	}
	if p.aSink != nil {
		p.aSink.Flush()
	}

	// 5. re-enter a short buffering sub-state
	p.preroll.begin(p.vSink != nil, p.hasAudio(), p.cfg.PrerollTimeout)
	p.eofFired.Store(false)

	// 6. seek the container, move the clock
	if err := p.source.SeekTo(target); err != nil {
		p.logger.Error("seek failed", "err", err)
		p.emit(EventError, err.Error())
		p.setState(State(p.prevState.Load()))
		p.source.Resume()
		return err
	}
	p.clk.Seek(target)

	// 7. resume reading; Seeking ends when the first in-serial frames
	// arrive (ready callbacks below)
	p.source.Resume()

	p.logger.Info("seeking", "target", target, "serial", p.serial.Load())
	return nil
}

// SeekRelative seeks by a signed delta from the current position.
func (p *Pipeline) SeekRelative(delta media.Duration) error {
	return p.Seek(p.clk.Now() + delta)
}

// ========== options ==========

func (p *Pipeline) SetLooping(loop bool) { p.looping.Store(loop) }

// SetPlaybackSpeed clamps to [0.1, 8.0] and retimes the clock.
func (p *Pipeline) SetPlaybackSpeed(speed float64) {
	if speed < 0.1 {
		speed = 0.1
	}
	if speed > 8.0 {
		speed = 8.0
	}
	p.setSpeed(speed)
	p.clk.SetRate(speed)
}

func (p *Pipeline) setSpeed(s float64) {
	p.speed.Store(mathFloatBits(s))
}

// PlaybackSpeed returns the current multiplier.
func (p *Pipeline) PlaybackSpeed() float64 { return mathFloatFromBits(p.speed.Load()) }

func (p *Pipeline) SetInPoint(t media.Timestamp) { p.inPoint.Store(t) }
func (p *Pipeline) SetOutPoint(t media.Timestamp) { p.outPoint.Store(t) }
func (p *Pipeline) InPoint() media.Timestamp { return p.inPoint.Load() }
func (p *Pipeline) OutPoint() media.Timestamp { return p.outPoint.Load() }

// ========== readiness and eof ==========

func (p *Pipeline) onVideoReady() {
	p.preroll.markVideoReady()
	p.checkPreroll()
}

func (p *Pipeline) onAudioReady() {
	p.preroll.markAudioReady()
	p.checkPreroll()
}

// checkPreroll advances Buffering or Seeking once streams are ready.
func (p *Pipeline) checkPreroll() {
	st := p.State()
	if st != StateBuffering && st != StateSeeking {
		return
	}

	switch p.preroll.decide(time.Now()) {
	case prerollWait:
		return
	case prerollPlayWallClock:
		p.logger.Warn("audio pre-roll timeout, using fallback sync")
		p.emit(EventWarning, "using fallback sync")
		p.clk.UseWallClock()
		p.clk.SetAudioSource(false)
	case prerollPlay:
	}

	if st == StateSeeking {
		p.finishSeek()
	} else {
		p.startPlayback()
	}
}

func (p *Pipeline) startPlayback() {
	if !p.stateTransition(StateBuffering, StatePlaying) {
		return
	}
	p.clk.Start()
	p.emit(EventBufferingComplete, "")
	p.emit(EventPlaying, "")
	p.logger.Info("playing")
}

func (p *Pipeline) finishSeek() {
	prev := State(p.prevState.Load())
	if !p.stateTransition(StateSeeking, prev) {
		return
	}
	if prev == StatePaused {
		p.clk.Pause()
		if p.aSink != nil {
			p.aSink.SetPaused(true)
		}
	} else {
		p.clk.Start()
	}
	p.emit(EventSeekComplete, "")
	p.logger.Info("seek complete", "now", p.clk.Now())
}

func (p *Pipeline) onVideoEOF() { p.handleEOF() }

func (p *Pipeline) onAudioEOF() {
	// audio alone does not finish playback; video is the reference.
	if p.vSink == nil {
		p.handleEOF()
	}
}

func (p *Pipeline) handleEOF() {
	if p.eofFired.Swap(true) {
		return
	}
	if p.looping.Load() {
		go func() {
			if err := p.Seek(p.inPoint.Load()); err != nil {
				p.logger.Warn("loop seek failed", "err", err)
			}
		}()
		return
	}
	p.emit(EventEndOfFile, "")
}

func (p *Pipeline) onSinkError(msg string) {
	// mark Error but leave the graph alive so the UI can stop cleanly
	p.setState(StateError)
	p.emit(EventError, msg)
}

// onAudioSinkError degrades gracefully: lose the audio branch, keep
// video running on the wall clock.
func (p *Pipeline) onAudioSinkError(msg string) {
	if p.vSink == nil {
		p.onSinkError(msg)
		return
	}
	p.logger.Warn("audio branch failing, continuing video-only", "msg", msg)
	p.emit(EventWarning, "continuing in video-only mode")
	p.clk.SetAudioSource(false)
	p.clk.UseWallClock()
}

// ========== watchdog ==========

// startWatchdog runs the pre-roll timeout check and the out-point
// monitor.
func (p *Pipeline) startWatchdog() {
	if p.watchOn.Swap(true) {
		return
	}
	p.watchWg.Add(1)
	go func() {
		defer p.watchWg.Done()
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for p.watchOn.Load() {
			<-ticker.C

			st := p.State()
			if st == StateBuffering || st == StateSeeking {
				if time.Now().After(p.preroll.deadline()) {
					p.checkPreroll()
				}
			}

			if st == StatePlaying {
				out := p.outPoint.Load()
				if out > 0 && p.clk.Now() >= out {
					p.handleEOF()
				}
			}
		}
	}()
}

func (p *Pipeline) stopWatchdog() {
	if !p.watchOn.Swap(false) {
		return
	}
	p.watchWg.Wait()
}

// ========== state helpers ==========

func (p *Pipeline) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.logger.Debug("state", "from", old, "to", s)
	}
}

func (p *Pipeline) stateTransition(from, to State) bool {
	return p.state.CompareAndSwap(int32(from), int32(to))
}

func mathFloatBits(f float64) uint64 { return math.Float64bits(f) }
func mathFloatFromBits(b uint64) float64 { return math.Float64frombits(b) }
