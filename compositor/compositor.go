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
package compositor

import (
	"github.com/google/uuid"

	"github.com/opencine/playkit/media"
	"github.com/opencine/playkit/timeline"
)

// FrameRequest keys one frame fetch for the decode callback.
type FrameRequest struct {
	ClipID     uuid.UUID
	MediaID    uuid.UUID
	SourceTime media.Timestamp
	TrackIndex int
}

// DecodeFunc resolves a request to a decoded RGBA frame. Returning
// false means no frame is available (missing media, decode failure);
// the layer is simply skipped. The compositor releases the frame when
// it is done with it.
type DecodeFunc func(FrameRequest) (media.VideoFrame, bool)

// Layer is one stacked input at a timeline instant.
type Layer struct {
	Frame   media.VideoFrame
	Blend   timeline.BlendMode
	Opacity float64
}

// Compositor folds the video tracks of a sequence into one RGBA frame
// per timeline instant.
type Compositor struct {
	width  int
	height int

	bg [4]uint8

	seq    *timeline.Sequence
	decode DecodeFunc
	pool   *media.FramePool
}

// New creates a compositor with the given output size.
func New(width, height int) *Compositor {
	return &Compositor{
		width:  width,
		height: height,
		bg:     [4]uint8{0, 0, 0, 255},
		pool:   media.NewFramePool(8),
	}
}

func (c *Compositor) SetSequence(seq *timeline.Sequence) { c.seq = seq }

func (c *Compositor) SetDecodeFunc(fn DecodeFunc) { c.decode = fn }

func (c *Compositor) SetOutputSize(w, h int) {
	c.width = w
	c.height = h
}

// SetBackgroundColor sets the RGBA fill used when nothing is visible.
func (c *Compositor) SetBackgroundColor(r, g, b, a uint8) {
	c.bg = [4]uint8{r, g, b, a}
}

func (c *Compositor) OutputWidth() int { return c.width }
func (c *Compositor) OutputHeight() int { return c.height }

// VisibleClips lists the frame requests for every visible clip at tm,
// bottom to top. Hidden, muted and locked tracks do not render.
func (c *Compositor) VisibleClips(tm media.Timestamp) []FrameRequest {
	if c.seq == nil {
		return nil
	}
	var out []FrameRequest
	for i, tr := range c.seq.VideoTracks() {
		if tr.Hidden || tr.Muted || tr.Locked {
			continue
		}
		clip := tr.ClipAt(tm)
		if clip == nil || clip.Disabled {
			continue
		}
		out = append(out, FrameRequest{
			ClipID:     clip.ID,
			MediaID:    clip.MediaID,
			SourceTime: clip.MapToSource(tm),
			TrackIndex: i,
		})
	}
	return out
}

// Compose renders the sequence at timeline instant tm.
//
// No visible layer: a background-filled frame. Exactly one fully
// opaque Normal layer: passed through untouched. Otherwise each layer
// is folded bottom to top onto the background with its blend formula.
func (c *Compositor) Compose(tm media.Timestamp) media.VideoFrame {
	if c.seq == nil || c.decode == nil {
		return c.blankFrame(tm)
	}

	var layers []Layer
	for i, tr := range c.seq.VideoTracks() {
		if tr.Hidden || tr.Muted || tr.Locked {
			continue
		}
		clip := tr.ClipAt(tm)
		if clip == nil || clip.Disabled {
			continue
		}
		frame, ok := c.decode(FrameRequest{
			ClipID:     clip.ID,
			MediaID:    clip.MediaID,
			SourceTime: clip.MapToSource(tm),
			TrackIndex: i,
		})
		if !ok || !frame.HasData() {
			continue
		}
		layers = append(layers, Layer{Frame: frame, Blend: clip.Blend, Opacity: clip.Opacity})
	}

	if len(layers) == 0 {
		return c.blankFrame(tm)
	}

	if len(layers) == 1 && layers[0].Opacity >= 1.0 && layers[0].Blend == timeline.BlendNormal {
		out := layers[0].Frame
		out.PTS = tm
		return out
	}

	out := c.blankFrame(tm)
	for i := range layers {
		blendLayer(&out, &layers[i].Frame, layers[i].Blend, layers[i].Opacity)
		layers[i].Frame.Release()
	}
	return out
}

// blankFrame allocates a background-filled RGBA frame from the pool.
func (c *Compositor) blankFrame(tm media.Timestamp) media.VideoFrame {
	stride := c.width * 4
	buf := c.pool.Get(stride * c.height)
	for i := 0; i < len(buf); i += 4 {
		buf[i] = c.bg[0]
		buf[i+1] = c.bg[1]
		buf[i+2] = c.bg[2]
		buf[i+3] = c.bg[3]
	}
	return media.VideoFrame{
		Width:  c.width,
		Height: c.height,
		Format: media.PixelFormatRGBA,
		PTS:    tm,
		SW:     media.NewSoftwareVideo(buf, stride, c.pool),
	}
}
