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

import (
	"errors"
	"fmt"
	"io"

	astiav "github.com/asticode/go-astiav"
	"github.com/charmbracelet/log"

	"github.com/opencine/playkit/media"
)

// FFmpegDecoder implements Decoder on go-astiav. Not safe for
// concurrent use; the pool hands each handle to one goroutine.
type FFmpegDecoder struct {
	fc *astiav.FormatContext

	vIdx  int
	aIdx  int
	vCtx  *astiav.CodecContext
	aCtx  *astiav.CodecContext
	vTB   astiav.Rational
	aTB   astiav.Rational
	fps   media.Rational
	durUs media.Duration

	scaler *RGBAScaler
	swr    *astiav.SoftwareResampleContext
	pool   *media.FramePool

	pkt *astiav.Packet
	vf  *astiav.Frame
	af  *astiav.Frame

	logger *log.Logger
}

// Open opens path and prepares decoders for the best video and audio
// streams.
func Open(path string, opts Options) (*FFmpegDecoder, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, media.ErrOutOfMemory
	}

	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open %s: %v: %w", path, err, media.ErrNotFound)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("stream info: %v: %w", err, media.ErrInvalidData)
	}

	d := &FFmpegDecoder{
		fc:     fc,
		vIdx:   -1,
		aIdx:   -1,
		pool:   media.NewFramePool(8),
		pkt:    astiav.AllocPacket(),
		vf:     astiav.AllocFrame(),
		af:     astiav.AllocFrame(),
		scaler: &RGBAScaler{},
		logger: log.WithPrefix("decoder"),
	}

	for i, s := range fc.Streams() {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if d.vIdx < 0 {
				d.vIdx = i
			}
		case astiav.MediaTypeAudio:
			if d.aIdx < 0 {
				d.aIdx = i
			}
		}
	}
	if d.vIdx < 0 && d.aIdx < 0 {
		d.Close()
		return nil, fmt.Errorf("no decodable stream: %w", media.ErrNotFound)
	}

	if d.vIdx >= 0 {
		st := fc.Streams()[d.vIdx]
		ctx, err := OpenCodecContext(st, opts.ThreadCount)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.vCtx = ctx
		d.vTB = st.TimeBase()
		r := st.AvgFrameRate()
		if r.Num() <= 0 || r.Den() <= 0 {
			r = ctx.Framerate()
		}
		d.fps = media.NewRational(r.Num(), r.Den())
	}

	if d.aIdx >= 0 {
		st := fc.Streams()[d.aIdx]
		ctx, err := OpenCodecContext(st, 0)
		if err != nil {
			// audio failing is not fatal for frame fetching
			d.logger.Warn("audio codec unavailable", "err", err)
			d.aIdx = -1
		} else {
			d.aCtx = ctx
			d.aTB = st.TimeBase()
			d.swr = astiav.AllocSoftwareResampleContext()
		}
	}

	// container duration is already in AV_TIME_BASE (µs)
	d.durUs = fc.Duration()

	return d, nil
}

func OpenCodecContext(st *astiav.Stream, threads int) (*astiav.CodecContext, error) {
	par := st.CodecParameters()
	dec := astiav.FindDecoder(par.CodecID())
	if dec == nil {
		return nil, media.ErrCodecNotFound
	}
	ctx := astiav.AllocCodecContext(dec)
	if ctx == nil {
		return nil, media.ErrOutOfMemory
	}
	if err := par.ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("codec params: %v: %w", err, media.ErrDecoder)
	}
	if threads > 0 {
		ctx.SetThreadCount(threads)
	}
	if err := ctx.Open(dec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("codec open: %v: %w", err, media.ErrDecoder)
	}
	return ctx, nil
}

func (d *FFmpegDecoder) Seek(pts media.Timestamp) error {
	if d.fc == nil {
		return media.ErrNotInitialized
	}
	// container-level seek uses AV_TIME_BASE, which is µs
	if err := d.fc.SeekFrame(-1, pts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("seek to %d: %v: %w", pts, err, media.ErrInvalidArg)
	}
	if d.vCtx != nil {
		d.vCtx.FlushBuffers()
	}
	if d.aCtx != nil {
		d.aCtx.FlushBuffers()
	}
	return nil
}

// DecodeNextVideoFrame reads packets until the video decoder yields a
// frame, converts it to packed RGBA and returns it.
func (d *FFmpegDecoder) DecodeNextVideoFrame() (media.VideoFrame, error) {
	if d.vCtx == nil {
		return media.VideoFrame{}, media.ErrNotInitialized
	}

	for {
		// drain whatever the codec has first
		if err := d.vCtx.ReceiveFrame(d.vf); err == nil {
			out, cErr := d.frameToRGBA(d.vf)
			d.vf.Unref()
			return out, cErr
		} else if !errors.Is(err, astiav.ErrEagain) {
			if errors.Is(err, astiav.ErrEof) {
				return media.VideoFrame{}, media.ErrEndOfFile
			}
			return media.VideoFrame{}, fmt.Errorf("receive: %v: %w", err, media.ErrDecoder)
		}

		if err := d.fc.ReadFrame(d.pkt); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, astiav.ErrEof) {
				// enter drain mode
				if err := d.vCtx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
					return media.VideoFrame{}, media.ErrEndOfFile
				}
				continue
			}
			return media.VideoFrame{}, fmt.Errorf("read: %v: %w", err, media.ErrInvalidData)
		}

		if d.pkt.StreamIndex() != d.vIdx {
			d.pkt.Unref()
			continue
		}
		err := d.vCtx.SendPacket(d.pkt)
		d.pkt.Unref()
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			if errors.Is(err, astiav.ErrEof) {
				return media.VideoFrame{}, media.ErrEndOfFile
			}
			// skip corrupt packets
			continue
		}
	}
}

// DecodeNextAudioFrame reads packets until the audio decoder yields a
// frame.
func (d *FFmpegDecoder) DecodeNextAudioFrame() (media.AudioFrame, error) {
	if d.aCtx == nil {
		return media.AudioFrame{}, media.ErrNotInitialized
	}

	for {
		if err := d.aCtx.ReceiveFrame(d.af); err == nil {
			out := d.frameToAudio(d.af)
			d.af.Unref()
			return out, nil
		} else if !errors.Is(err, astiav.ErrEagain) {
			if errors.Is(err, astiav.ErrEof) {
				return media.AudioFrame{}, media.ErrEndOfFile
			}
			return media.AudioFrame{}, fmt.Errorf("receive: %v: %w", err, media.ErrDecoder)
		}

		if err := d.fc.ReadFrame(d.pkt); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, astiav.ErrEof) {
				if err := d.aCtx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
					return media.AudioFrame{}, media.ErrEndOfFile
				}
				continue
			}
			return media.AudioFrame{}, fmt.Errorf("read: %v: %w", err, media.ErrInvalidData)
		}

		if d.pkt.StreamIndex() != d.aIdx {
			d.pkt.Unref()
			continue
		}
		err := d.aCtx.SendPacket(d.pkt)
		d.pkt.Unref()
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			if errors.Is(err, astiav.ErrEof) {
				return media.AudioFrame{}, media.ErrEndOfFile
			}
			continue
		}
	}
}

func (d *FFmpegDecoder) frameToRGBA(src *astiav.Frame) (media.VideoFrame, error) {
	w, h, buf, err := d.scaler.ToRGBA(src, d.pool)
	if err != nil {
		return media.VideoFrame{}, err
	}
	return media.VideoFrame{
		Width:  w,
		Height: h,
		Format: media.PixelFormatRGBA,
		PTS:    media.PTSToMicros(src.Pts(), d.vTB.Num(), d.vTB.Den()),
		Dur:    d.fps.FrameDuration(),
		SW:     media.NewSoftwareVideo(buf, w*4, d.pool),
	}, nil
}

// frameToAudio converts the native frame to interleaved S16 stereo at
// the source rate, the one layout every consumer here understands.
func (d *FFmpegDecoder) frameToAudio(src *astiav.Frame) media.AudioFrame {
	rate := src.SampleRate()
	out := media.AudioFrame{
		SampleRate: rate,
		Channels:   2,
		Format:     media.SampleFormatS16,
		PTS:        media.PTSToMicros(src.Pts(), d.aTB.Num(), d.aTB.Den()),
	}
	if d.swr == nil {
		return out
	}

	dst := astiav.AllocFrame()
	defer dst.Free()
	dst.SetSampleFormat(astiav.SampleFormatS16)
	dst.SetChannelLayout(astiav.ChannelLayoutStereo)
	dst.SetSampleRate(rate)

	if err := d.swr.ConvertFrame(src, dst); err != nil {
		d.logger.Warn("resample", "err", err)
		return out
	}
	nb := dst.NbSamples()
	if nb <= 0 {
		return out
	}
	raw, err := dst.Data().Bytes(0)
	if err != nil || len(raw) == 0 {
		return out
	}
	need := nb * 2 * 2
	if need > len(raw) {
		need = len(raw)
	}
	buf := make([]byte, need)
	copy(buf, raw[:need])

	out.NbSamples = nb
	out.Dur = int64(nb) * media.TimeBaseUs / int64(rate)
	out.Data = [][]byte{buf}
	return out
}

func SampleFormatFromAstiav(f astiav.SampleFormat) media.SampleFormat {
	switch f {
	case astiav.SampleFormatU8:
		return media.SampleFormatU8
	case astiav.SampleFormatS16:
		return media.SampleFormatS16
	case astiav.SampleFormatS16P:
		return media.SampleFormatS16P
	case astiav.SampleFormatS32:
		return media.SampleFormatS32
	case astiav.SampleFormatFlt:
		return media.SampleFormatF32
	case astiav.SampleFormatFltp:
		return media.SampleFormatF32P
	}
	return media.SampleFormatUnknown
}

func (d *FFmpegDecoder) Duration() media.Duration { return d.durUs }

func (d *FFmpegDecoder) Width() int {
	if d.vCtx == nil {
		return 0
	}
	return d.vCtx.Width()
}

func (d *FFmpegDecoder) Height() int {
	if d.vCtx == nil {
		return 0
	}
	return d.vCtx.Height()
}

func (d *FFmpegDecoder) FrameRate() media.Rational { return d.fps }

func (d *FFmpegDecoder) SampleRate() int {
	if d.aCtx == nil {
		return 0
	}
	return d.aCtx.SampleRate()
}

func (d *FFmpegDecoder) Channels() int {
	if d.aCtx == nil {
		return 0
	}
	return d.aCtx.ChannelLayout().Channels()
}

func (d *FFmpegDecoder) HasVideo() bool { return d.vCtx != nil }
func (d *FFmpegDecoder) HasAudio() bool { return d.aCtx != nil }

func (d *FFmpegDecoder) Close() {
	if d.scaler != nil {
		d.scaler.Close()
	}
	if d.swr != nil {
		d.swr.Free()
		d.swr = nil
	}
	if d.vf != nil {
		d.vf.Free()
		d.vf = nil
	}
	if d.af != nil {
		d.af.Free()
		d.af = nil
	}
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.vCtx != nil {
		d.vCtx.Free()
		d.vCtx = nil
	}
	if d.aCtx != nil {
		d.aCtx.Free()
		d.aCtx = nil
	}
	if d.fc != nil {
		d.fc.Free()
		d.fc = nil
	}
}
