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
	"sync"
	"sync/atomic"

	astiav "github.com/asticode/go-astiav"
	"github.com/charmbracelet/log"

	"github.com/opencine/playkit/decoder"
	"github.com/opencine/playkit/graph"
	"github.com/opencine/playkit/media"
)

// Decode loop guards, shared by both decode nodes.
const (
	maxConsecutiveDecodeErrors = 10
	maxDecodeLoopIterations    = 1024
)

// VideoDecodeNode turns packets into RGBA video frames on its own
// worker. EAGAIN alternates the send/receive direction; an EOF packet
// drains the codec and forwards a frame-level EOF sentinel.
type VideoDecodeNode struct {
	name   string
	logger *log.Logger

	In  *graph.Pin[media.Packet]
	Out *graph.Pin[media.VideoFrame] // wired by the pipeline

	mu       sync.Mutex // guards ctx against Flush during decode
	ctx      *astiav.CodecContext
	tbN      int
	tbD      int
	frameDur media.Duration

	scaler *decoder.RGBAScaler
	pool   *media.FramePool

	serial *atomic.Uint64

	running atomic.Bool
	wg      sync.WaitGroup

	consecutiveErrors int

	framesDecoded  atomic.Uint64
	packetsDropped atomic.Uint64
}

func NewVideoDecodeNode(name string, capacity int, serial *atomic.Uint64) *VideoDecodeNode {
	if capacity <= 0 {
		capacity = graph.DefaultVideoFrameCapacity
	}
	return &VideoDecodeNode{
		name:   name,
		In:     graph.NewPin[media.Packet](capacity),
		scaler: &decoder.RGBAScaler{},
		pool:   media.NewFramePool(graph.DefaultVideoFrameCapacity + 4),
		serial: serial,
		logger: log.WithPrefix(name),
	}
}

func (n *VideoDecodeNode) Name() string { return n.name }

// Init opens a codec context for the stream. Frame rate drives the
// fallback frame duration for streams without per-frame durations.
func (n *VideoDecodeNode) Init(st *astiav.Stream, threads int, fps media.Rational) error {
	if st == nil {
		return media.ErrInvalidArg
	}
	ctx, err := decoder.OpenCodecContext(st, threads)
	if err != nil {
		return err
	}
	tb := st.TimeBase()
	n.mu.Lock()
	n.ctx = ctx
	n.tbN, n.tbD = tb.Num(), tb.Den()
	n.frameDur = fps.FrameDuration()
	n.mu.Unlock()
	n.logger.Info("decoder ready", "size", fmt.Sprintf("%dx%d",
		st.CodecParameters().Width(), st.CodecParameters().Height()))
	return nil
}

func (n *VideoDecodeNode) Start() {
	if n.running.Swap(true) {
		return
	}
	n.In.Reset()
	n.consecutiveErrors = 0
	n.wg.Add(1)
	go n.workerLoop()
	n.logger.Debug("started")
}

func (n *VideoDecodeNode) Stop() {
	if !n.running.Swap(false) {
		return
	}
	n.In.Stop()
	n.wg.Wait()
	n.logger.Debug("stopped", "decoded", n.framesDecoded.Load(), "dropped", n.packetsDropped.Load())
}

// Flush clears queued packets and the codec's internal buffers.
// Required after every seek.
func (n *VideoDecodeNode) Flush() {
	n.In.Flush()
	n.mu.Lock()
	if n.ctx != nil {
		n.ctx.FlushBuffers()
	}
	n.mu.Unlock()
	n.consecutiveErrors = 0
}

func (n *VideoDecodeNode) Close() {
	n.Stop()
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.scaler != nil {
		n.scaler.Close()
	}
	if n.ctx != nil {
		n.ctx.Free()
		n.ctx = nil
	}
}

func (n *VideoDecodeNode) FramesDecoded() uint64 { return n.framesDecoded.Load() }
func (n *VideoDecodeNode) PacketsDropped() uint64 { return n.packetsDropped.Load() }

func (n *VideoDecodeNode) workerLoop() {
	defer n.wg.Done()

	av := astiav.AllocPacket()
	defer av.Free()
	f := astiav.AllocFrame()
	defer f.Free()

	for n.running.Load() {
		pkt, res := n.In.Pop(graph.DefaultTimeout)
		switch res {
		case graph.PopTerminated:
			return
		case graph.PopTimeout:
			continue
		}

		// stale packets die before any side effect
		if pkt.Serial != n.serial.Load() {
			n.packetsDropped.Add(1)
			continue
		}

		if pkt.IsEOF() {
			n.drain(f, pkt.Serial)
			continue
		}

		n.decodePacket(av, f, pkt)
	}
}

func (n *VideoDecodeNode) decodePacket(av *astiav.Packet, f *astiav.Frame, pkt media.Packet) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ctx == nil {
		return
	}

	if err := av.FromData(pkt.Data); err != nil {
		n.handleDecodeError(err, pkt.Serial)
		return
	}
	av.SetPts(media.MicrosToPTS(pkt.PTS, n.tbN, n.tbD))
	av.SetDts(media.MicrosToPTS(pkt.DTS, n.tbN, n.tbD))

	err := n.ctx.SendPacket(av)
	av.Unref()

	if err != nil {
		if errors.Is(err, astiav.ErrEagain) {
			// decoder full: receive first, then retry once
			n.receiveFrames(f, pkt.Serial, pkt.Dur)
			if err2 := av.FromData(pkt.Data); err2 == nil {
				av.SetPts(media.MicrosToPTS(pkt.PTS, n.tbN, n.tbD))
				av.SetDts(media.MicrosToPTS(pkt.DTS, n.tbN, n.tbD))
				err = n.ctx.SendPacket(av)
				av.Unref()
			}
		}
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			n.handleDecodeError(err, pkt.Serial)
			return
		}
	}

	n.consecutiveErrors = 0
	n.receiveFrames(f, pkt.Serial, pkt.Dur)
}

// receiveFrames pulls everything the codec has ready. EAGAIN means
// feed more input; it is not an error.
func (n *VideoDecodeNode) receiveFrames(f *astiav.Frame, serial uint64, pktDur media.Duration) {
	for i := 0; i < maxDecodeLoopIterations; i++ {
		err := n.ctx.ReceiveFrame(f)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return
		}
		if err != nil {
			n.logger.Warn("receive frame", "err", err)
			return
		}
		n.emitFrame(f, serial, pktDur)
		f.Unref()
	}
	n.logger.Warn("decode loop iteration cap hit")
}

// drain sends the null packet, forwards the remaining frames, then the
// EOF sentinel.
func (n *VideoDecodeNode) drain(f *astiav.Frame, serial uint64) {
	n.mu.Lock()
	if n.ctx == nil {
		n.mu.Unlock()
		return
	}
	if err := n.ctx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		n.logger.Warn("drain enter", "err", err)
	}
	drained := 0
	for i := 0; i < maxDecodeLoopIterations; i++ {
		if err := n.ctx.ReceiveFrame(f); err != nil {
			break
		}
		n.emitFrame(f, serial, 0)
		f.Unref()
		drained++
	}
	n.mu.Unlock()
	n.logger.Debug("drained", "frames", drained)
	n.push(media.EOFVideoFrame(serial))
}

func (n *VideoDecodeNode) emitFrame(f *astiav.Frame, serial uint64, pktDur media.Duration) {
	w, h, buf, err := n.scaler.ToRGBA(f, n.pool)
	if err != nil {
		n.logger.Warn("to rgba", "err", err)
		return
	}
	dur := pktDur
	if dur <= 0 {
		dur = n.frameDur
	}
	out := media.VideoFrame{
		Width:  w,
		Height: h,
		Format: media.PixelFormatRGBA,
		PTS:    media.PTSToMicros(f.Pts(), n.tbN, n.tbD),
		Dur:    dur,
		Serial: serial,
		SW:     media.NewSoftwareVideo(buf, w*4, n.pool),
	}
	if n.push(out) {
		n.framesDecoded.Add(1)
	} else {
		out.Release()
	}
}

func (n *VideoDecodeNode) push(f media.VideoFrame) bool {
	if n.Out == nil {
		return false
	}
	for n.running.Load() {
		switch n.Out.Push(f, graph.DefaultTimeout) {
		case graph.PushOK:
			return true
		case graph.PushTerminated:
			return false
		case graph.PushTimeout:
			continue
		}
	}
	return false
}

func (n *VideoDecodeNode) handleDecodeError(err error, serial uint64) {
	n.consecutiveErrors++
	n.packetsDropped.Add(1)
	if n.consecutiveErrors >= maxConsecutiveDecodeErrors {
		n.logger.Error("too many consecutive decode errors", "count", n.consecutiveErrors)
		n.push(media.ErrorVideoFrame(media.ErrDecoder, serial))
		n.consecutiveErrors = 0
	} else {
		n.logger.Warn("decode error", "err", err, "consecutive", n.consecutiveErrors)
	}
}
