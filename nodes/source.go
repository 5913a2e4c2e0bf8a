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
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	astiav "github.com/asticode/go-astiav"
	"github.com/charmbracelet/log"

	"github.com/opencine/playkit/graph"
	"github.com/opencine/playkit/media"
)

// SourceNode demuxes a container on its own goroutine. Container
// timestamps are converted to microseconds right here at the boundary;
// packets carry only microseconds, and the decode nodes convert back to
// the stream time base only when handing a packet to the codec. Every
// packet is tagged with the pipeline serial current at read time.
type SourceNode struct {
	name   string
	logger *log.Logger

	mu sync.Mutex // guards fc across read loop and SeekTo
	fc *astiav.FormatContext

	vIdx int
	aIdx int

	vTBn, vTBd int
	aTBn, aTBd int

	width, height int
	fps           media.Rational
	sampleRate    int
	channels      int
	durUs         media.Duration

	// VideoOut and AudioOut are wired by the pipeline to the packet
	// queues before Start.
	VideoOut *graph.Pin[media.Packet]
	AudioOut *graph.Pin[media.Packet]

	serial *atomic.Uint64 // pipeline-owned

	running atomic.Bool
	wg      sync.WaitGroup

	paused   atomic.Bool
	pauseMu  sync.Mutex
	pauseCnd *sync.Cond

	onEOF func()

	packetsRead atomic.Uint64
}

// NewSourceNode creates an unopened source. serial is the pipeline's
// generation counter, shared with every stage.
func NewSourceNode(name string, serial *atomic.Uint64) *SourceNode {
	s := &SourceNode{
		name:   name,
		vIdx:   -1,
		aIdx:   -1,
		serial: serial,
		logger: log.WithPrefix(name),
	}
	s.pauseCnd = sync.NewCond(&s.pauseMu)
	return s
}

func (s *SourceNode) Name() string { return s.name }

// SetEOFCallback installs the end-of-file notification.
func (s *SourceNode) SetEOFCallback(fn func()) { s.onEOF = fn }

// Open opens the container and picks the best video and audio streams.
func (s *SourceNode) Open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fc != nil {
		return media.ErrInvalidArg
	}

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return media.ErrOutOfMemory
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return fmt.Errorf("OpenInput %s: %v: %w", path, err, media.ErrNotFound)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.Free()
		return fmt.Errorf("FindStreamInfo: %v: %w", err, media.ErrInvalidData)
	}

	for i, st := range fc.Streams() {
		switch st.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if s.vIdx < 0 {
				s.vIdx = i
			}
		case astiav.MediaTypeAudio:
			if s.aIdx < 0 {
				s.aIdx = i
			}
		}
	}
	if s.vIdx < 0 && s.aIdx < 0 {
		fc.Free()
		return fmt.Errorf("no video or audio stream: %w", media.ErrNotFound)
	}

	if s.vIdx >= 0 {
		st := fc.Streams()[s.vIdx]
		tb := st.TimeBase()
		s.vTBn, s.vTBd = tb.Num(), tb.Den()
		par := st.CodecParameters()
		s.width, s.height = par.Width(), par.Height()
		r := st.AvgFrameRate()
		if r.Num() > 0 && r.Den() > 0 {
			s.fps = media.NewRational(r.Num(), r.Den())
		} else {
			s.fps = media.NewRational(30, 1)
		}
		s.logger.Info("video stream", "index", s.vIdx, "size",
			fmt.Sprintf("%dx%d", s.width, s.height), "fps", s.fps.Float())
	}
	if s.aIdx >= 0 {
		st := fc.Streams()[s.aIdx]
		tb := st.TimeBase()
		s.aTBn, s.aTBd = tb.Num(), tb.Den()
		par := st.CodecParameters()
		s.sampleRate = par.SampleRate()
		s.channels = par.ChannelLayout().Channels()
		s.logger.Info("audio stream", "index", s.aIdx, "rate", s.sampleRate, "channels", s.channels)
	}

	// container duration is in AV_TIME_BASE units, which is µs
	s.durUs = fc.Duration()
	s.fc = fc
	return nil
}

// Close stops the read loop and frees the container.
func (s *SourceNode) Close() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fc != nil {
		s.fc.Free()
		s.fc = nil
	}
	s.vIdx, s.aIdx = -1, -1
}

// ========== stream info ==========

func (s *SourceNode) HasVideo() bool { return s.vIdx >= 0 }
func (s *SourceNode) HasAudio() bool { return s.aIdx >= 0 }
func (s *SourceNode) VideoStreamIndex() int { return s.vIdx }
func (s *SourceNode) AudioStreamIndex() int { return s.aIdx }
func (s *SourceNode) Duration() media.Duration { return s.durUs }
func (s *SourceNode) VideoSize() (int, int) { return s.width, s.height }
func (s *SourceNode) FrameRate() media.Rational { return s.fps }
func (s *SourceNode) AudioSampleRate() int { return s.sampleRate }
func (s *SourceNode) AudioChannels() int { return s.channels }

// VideoStream exposes the stream for decoder initialization.
func (s *SourceNode) VideoStream() *astiav.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fc == nil || s.vIdx < 0 {
		return nil
	}
	return s.fc.Streams()[s.vIdx]
}

func (s *SourceNode) AudioStream() *astiav.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fc == nil || s.aIdx < 0 {
		return nil
	}
	return s.fc.Streams()[s.aIdx]
}

// ========== lifecycle ==========

func (s *SourceNode) Start() {
	if s.fc == nil {
		s.logger.Error("cannot start: no file open")
		return
	}
	if s.running.Swap(true) {
		return
	}
	s.paused.Store(false)
	s.wg.Add(1)
	go s.readLoop()
	s.logger.Debug("started")
}

// Stop terminates the read loop. The pipeline stops the downstream
// pins first so a blocked push wakes with Terminated.
func (s *SourceNode) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.pauseMu.Lock()
	s.paused.Store(false)
	s.pauseMu.Unlock()
	s.pauseCnd.Broadcast()
	s.wg.Wait()
	s.logger.Debug("stopped", "packets", s.packetsRead.Load())
}

// Flush is a no-op: packets are read fresh after a seek.
func (s *SourceNode) Flush() {}

// Pause stops reading without tearing the loop down.
func (s *SourceNode) Pause() {
	s.paused.Store(true)
}

// Resume continues reading.
func (s *SourceNode) Resume() {
	s.pauseMu.Lock()
	s.paused.Store(false)
	s.pauseMu.Unlock()
	s.pauseCnd.Broadcast()
}

// SeekTo performs a backward-flag container seek and returns. It does
// not flush downstream queues; the pipeline owns that.
func (s *SourceNode) SeekTo(pts media.Timestamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fc == nil {
		return media.ErrNotInitialized
	}
	if err := s.fc.SeekFrame(-1, pts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("SeekFrame %d: %v: %w", pts, err, media.ErrInvalidArg)
	}
	s.logger.Debug("seeked", "pts", pts)
	return nil
}

func (s *SourceNode) PacketsRead() uint64 { return s.packetsRead.Load() }

// ========== read loop ==========

func (s *SourceNode) readLoop() {
	defer s.wg.Done()

	pkt := astiav.AllocPacket()
	defer pkt.Free()

	for s.running.Load() {
		// pause gate
		s.pauseMu.Lock()
		for s.paused.Load() && s.running.Load() {
			s.pauseCnd.Wait()
		}
		s.pauseMu.Unlock()
		if !s.running.Load() {
			return
		}

		s.mu.Lock()
		err := s.fc.ReadFrame(pkt)
		s.mu.Unlock()

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, astiav.ErrEof) {
				s.logger.Info("end of file")
			} else {
				// read error: emit EOF downstream and stop reading
				s.logger.Error("read error", "err", err)
			}
			s.sendEOF()
			if s.onEOF != nil {
				s.onEOF()
			}
			// park until the pipeline seeks or stops us
			s.Pause()
			continue
		}

		serial := s.serial.Load()
		switch pkt.StreamIndex() {
		case s.vIdx:
			p := s.convertPacket(pkt, media.KindVideo, s.vTBn, s.vTBd, serial)
			s.emit(s.VideoOut, p)
		case s.aIdx:
			p := s.convertPacket(pkt, media.KindAudio, s.aTBn, s.aTBd, serial)
			s.emit(s.AudioOut, p)
		}
		// other streams are ignored

		pkt.Unref()
		s.packetsRead.Add(1)
	}
}

func (s *SourceNode) convertPacket(pkt *astiav.Packet, kind media.Kind, tbN, tbD int, serial uint64) media.Packet {
	data := make([]byte, len(pkt.Data()))
	copy(data, pkt.Data())
	return media.Packet{
		Data:        data,
		PTS:         media.PTSToMicros(pkt.Pts(), tbN, tbD),
		DTS:         media.PTSToMicros(pkt.Dts(), tbN, tbD),
		Dur:         media.PTSToMicros(pkt.Duration(), tbN, tbD),
		StreamIndex: pkt.StreamIndex(),
		KeyFrame:    pkt.Flags().Has(astiav.PacketFlagKey),
		Kind:        kind,
		Serial:      serial,
	}
}

func (s *SourceNode) emit(pin *graph.Pin[media.Packet], p media.Packet) {
	if pin == nil {
		return
	}
	for s.running.Load() {
		switch pin.Push(p, graph.DefaultTimeout) {
		case graph.PushOK, graph.PushTerminated:
			return
		case graph.PushTimeout:
			// backpressure; keep pressing while running
		}
	}
}

func (s *SourceNode) sendEOF() {
	serial := s.serial.Load()
	if s.vIdx >= 0 {
		s.emit(s.VideoOut, media.EOFPacket(media.KindVideo, serial))
	}
	if s.aIdx >= 0 {
		s.emit(s.AudioOut, media.EOFPacket(media.KindAudio, serial))
	}
}
