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
	"sync"

	"github.com/google/uuid"

	"github.com/opencine/playkit/media"
)

// Pool hands out decoder handles per media item. A handle is used by
// one goroutine between Acquire and Release; released handles are kept
// warm so scrubbing the same clip does not reopen the file every time.
type Pool struct {
	mu      sync.Mutex
	resolve func(mediaID uuid.UUID) (string, bool)
	opts    Options
	idle    map[uuid.UUID][]*FFmpegDecoder
	maxIdle int
}

// NewPool builds a pool. resolve maps a media id to its file path.
func NewPool(resolve func(mediaID uuid.UUID) (string, bool), opts Options) *Pool {
	return &Pool{
		resolve: resolve,
		opts:    opts,
		idle:    make(map[uuid.UUID][]*FFmpegDecoder),
		maxIdle: 2,
	}
}

// Acquire returns a decoder for the media item, reusing an idle handle
// when one exists.
func (p *Pool) Acquire(mediaID uuid.UUID) (*FFmpegDecoder, error) {
	p.mu.Lock()
	if hs := p.idle[mediaID]; len(hs) > 0 {
		d := hs[len(hs)-1]
		p.idle[mediaID] = hs[:len(hs)-1]
		p.mu.Unlock()
		return d, nil
	}
	resolve := p.resolve
	p.mu.Unlock()

	if resolve == nil {
		return nil, media.ErrNotInitialized
	}
	path, ok := resolve(mediaID)
	if !ok {
		return nil, media.ErrNotFound
	}
	return Open(path, p.opts)
}

// Release returns a handle for reuse, closing it when enough are
// already idle.
func (p *Pool) Release(mediaID uuid.UUID, d *FFmpegDecoder) {
	if d == nil {
		return
	}
	p.mu.Lock()
	if len(p.idle[mediaID]) < p.maxIdle {
		p.idle[mediaID] = append(p.idle[mediaID], d)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	d.Close()
}

// CloseAll closes every idle handle.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[uuid.UUID][]*FFmpegDecoder)
	p.mu.Unlock()

	for _, hs := range idle {
		for _, d := range hs {
			d.Close()
		}
	}
}
