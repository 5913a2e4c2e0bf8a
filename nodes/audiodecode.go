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
	"sync"
	"sync/atomic"

	astiav "github.com/asticode/go-astiav"
	"github.com/charmbracelet/log"

	"github.com/opencine/playkit/audiodev"
	"github.com/opencine/playkit/decoder"
	"github.com/opencine/playkit/graph"
	"github.com/opencine/playkit/media"
)

// AudioDecodeNode decodes audio packets and converts every frame to
// the device target (interleaved S16 stereo 48 kHz) while the native
// frame is still in hand. swresample works on codec frames, so the
// conversion happens at this boundary rather than in the sink; the
// sink owns everything device-facing.
type AudioDecodeNode struct {
	name   string
	logger *log.Logger

	In  *graph.Pin[media.Packet]
	Out *graph.Pin[media.AudioFrame]

	mu  sync.Mutex
	ctx *astiav.CodecContext
	tbN int
	tbD int

	swr *astiav.SoftwareResampleContext

	serial *atomic.Uint64

	running atomic.Bool
	wg      sync.WaitGroup

	consecutiveErrors   int
	consecutiveResample int

	framesDecoded  atomic.Uint64
	packetsDropped atomic.Uint64
}

func NewAudioDecodeNode(name string, capacity int, serial *atomic.Uint64) *AudioDecodeNode {
	if capacity <= 0 {
		capacity = graph.DefaultAudioFrameCapacity
	}
	return &AudioDecodeNode{
		name:   name,
		In:     graph.NewPin[media.Packet](capacity),
		serial: serial,
		logger: log.WithPrefix(name),
	}
}

func (n *AudioDecodeNode) Name() string { return n.name }

// Init opens the codec and the resampler.
func (n *AudioDecodeNode) Init(st *astiav.Stream) error {
	if st == nil {
		return media.ErrInvalidArg
	}
	ctx, err := decoder.OpenCodecContext(st, 0)
	if err != nil {
		return err
	}
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		ctx.Free()
		return media.ErrOutOfMemory
	}
	tb := st.TimeBase()
	n.mu.Lock()
	n.ctx = ctx
	n.swr = swr
	n.tbN, n.tbD = tb.Num(), tb.Den()
	n.mu.Unlock()
	n.logger.Info("decoder ready", "rate", ctx.SampleRate(),
		"channels", ctx.ChannelLayout().Channels())
	return nil
}

func (n *AudioDecodeNode) Start() {
	if n.running.Swap(true) {
		return
	}
	n.In.Reset()
	n.consecutiveErrors = 0
	n.consecutiveResample = 0
	n.wg.Add(1)
	go n.workerLoop()
	n.logger.Debug("started")
}

func (n *AudioDecodeNode) Stop() {
	if !n.running.Swap(false) {
		return
	}
	n.In.Stop()
	n.wg.Wait()
	n.logger.Debug("stopped", "decoded", n.framesDecoded.Load())
}

// Flush clears queued packets and codec buffers (seek).
func (n *AudioDecodeNode) Flush() {
	n.In.Flush()
	n.mu.Lock()
	if n.ctx != nil {
		n.ctx.FlushBuffers()
	}
	n.mu.Unlock()
	n.consecutiveErrors = 0
}

func (n *AudioDecodeNode) Close() {
	n.Stop()
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.swr != nil {
		n.swr.Free()
		n.swr = nil
	}
	if n.ctx != nil {
		n.ctx.Free()
		n.ctx = nil
	}
}

func (n *AudioDecodeNode) FramesDecoded() uint64 { return n.framesDecoded.Load() }

func (n *AudioDecodeNode) workerLoop() {
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

func (n *AudioDecodeNode) decodePacket(av *astiav.Packet, f *astiav.Frame, pkt media.Packet) {
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
			n.receiveFrames(f, pkt.Serial)
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
	n.receiveFrames(f, pkt.Serial)
}

func (n *AudioDecodeNode) receiveFrames(f *astiav.Frame, serial uint64) {
	for i := 0; i < maxDecodeLoopIterations; i++ {
		err := n.ctx.ReceiveFrame(f)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return
		}
		if err != nil {
			n.logger.Warn("receive frame", "err", err)
			return
		}
		n.emitFrame(f, serial)
		f.Unref()
	}
	n.logger.Warn("decode loop iteration cap hit")
}

func (n *AudioDecodeNode) drain(f *astiav.Frame, serial uint64) {
	n.mu.Lock()
	if n.ctx == nil {
		n.mu.Unlock()
		return
	}
	if err := n.ctx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		n.logger.Warn("drain enter", "err", err)
	}
	for i := 0; i < maxDecodeLoopIterations; i++ {
		if err := n.ctx.ReceiveFrame(f); err != nil {
			break
		}
		n.emitFrame(f, serial)
		f.Unref()
	}
	n.mu.Unlock()
	n.push(media.EOFAudioFrame(serial))
}

// emitFrame resamples the native frame to the device target and
// forwards the converted samples. A resample failure skips the frame;
// after enough consecutive failures an error sentinel goes downstream
// so the pipeline can warn and continue video-only.
func (n *AudioDecodeNode) emitFrame(f *astiav.Frame, serial uint64) {
	dst := astiav.AllocFrame()
	defer dst.Free()
	dst.SetSampleFormat(astiav.SampleFormatS16)
	dst.SetChannelLayout(astiav.ChannelLayoutStereo)
	dst.SetSampleRate(audiodev.TargetSampleRate)

	if err := n.swr.ConvertFrame(f, dst); err != nil {
		n.consecutiveResample++
		n.logger.Warn("resample", "err", err, "consecutive", n.consecutiveResample)
		if n.consecutiveResample >= maxConsecutiveDecodeErrors {
			n.push(media.ErrorAudioFrame(media.ErrDecoder, serial))
			n.consecutiveResample = 0
		}
		return
	}
	n.consecutiveResample = 0

	nb := dst.NbSamples()
	if nb <= 0 {
		return
	}
	raw, err := dst.Data().Bytes(0)
	if err != nil || len(raw) == 0 {
		return
	}
	need := nb * audiodev.TargetChannels * audiodev.TargetBytesPerSample
	if need > len(raw) {
		need = len(raw)
	}
	buf := make([]byte, need)
	copy(buf, raw[:need])

	out := media.AudioFrame{
		SampleRate: audiodev.TargetSampleRate,
		Channels:   audiodev.TargetChannels,
		NbSamples:  nb,
		Format:     media.SampleFormatS16,
		PTS:        media.PTSToMicros(f.Pts(), n.tbN, n.tbD),
		Dur:        int64(nb) * media.TimeBaseUs / audiodev.TargetSampleRate,
		Serial:     serial,
		Data:       [][]byte{buf},
	}
	if n.push(out) {
		n.framesDecoded.Add(1)
	}
}

func (n *AudioDecodeNode) push(f media.AudioFrame) bool {
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

func (n *AudioDecodeNode) handleDecodeError(err error, serial uint64) {
	n.consecutiveErrors++
	n.packetsDropped.Add(1)
	if n.consecutiveErrors >= maxConsecutiveDecodeErrors {
		n.logger.Error("too many consecutive decode errors", "count", n.consecutiveErrors)
		n.push(media.ErrorAudioFrame(media.ErrDecoder, serial))
		n.consecutiveErrors = 0
	} else {
		n.logger.Warn("decode error", "err", err, "consecutive", n.consecutiveErrors)
	}
}
