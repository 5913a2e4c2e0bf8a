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
package render

import (
	"sync"
	"sync/atomic"

	"github.com/opencine/playkit/media"
)

// Renderer is the display surface the video sink draws into. Frames
// arrive as packed RGBA software frames: the decode nodes convert every
// picture to RGBA before it gets here. No decoder in this module
// produces hardware frames or transfers them to CPU.
type Renderer interface {
	Init(width, height int, title string) error
	Draw(frame *media.VideoFrame) error
	Present()
	Resize(width, height int)
	Shutdown()
}

// Offscreen is a headless render target: it retains the last drawn
// frame and counts presents. Used by the demo player when no display
// is wired, and by tests.
type Offscreen struct {
	mu sync.Mutex

	width  int
	height int

	last media.VideoFrame
	has  bool

	presents atomic.Uint64
	draws    atomic.Uint64
}

func NewOffscreen() *Offscreen { return &Offscreen{} }

func (o *Offscreen) Init(width, height int, title string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.width = width
	o.height = height
	return nil
}

func (o *Offscreen) Draw(frame *media.VideoFrame) error {
	if frame == nil || !frame.HasData() {
		return media.ErrInvalidArg
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.has {
		o.last.Release()
	}
	o.last = frame.Retain()
	o.has = true
	o.draws.Add(1)
	return nil
}

func (o *Offscreen) Present() { o.presents.Add(1) }

func (o *Offscreen) Resize(width, height int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.width = width
	o.height = height
}

func (o *Offscreen) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.has {
		o.last.Release()
		o.has = false
	}
}

// LastFrame returns a retained copy of the most recent frame, if any.
// The caller releases it.
func (o *Offscreen) LastFrame() (media.VideoFrame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.has {
		return media.VideoFrame{}, false
	}
	return o.last.Retain(), true
}

func (o *Offscreen) Presents() uint64 { return o.presents.Load() }
func (o *Offscreen) Draws() uint64 { return o.draws.Load() }
