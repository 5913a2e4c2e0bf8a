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
package engine

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/opencine/playkit/decoder"
	"github.com/opencine/playkit/framecache"
	"github.com/opencine/playkit/media"
	"github.com/opencine/playkit/timeline"
)

// Prefetcher fills the frame cache ahead of the playhead on one
// background goroutine. The engine kicks it with the current timeline
// position; it asks the cache which media times are missing and
// decodes them through the pool.
type Prefetcher struct {
	cache *framecache.Cache
	pool  *decoder.Pool
	seq   *timeline.Sequence

	depth int // frames decoded ahead per clip

	kick    chan media.Timestamp
	running atomic.Bool
	wg      sync.WaitGroup

	logger *log.Logger
}

func NewPrefetcher(cache *framecache.Cache, pool *decoder.Pool, seq *timeline.Sequence, depth int) *Prefetcher {
	if depth <= 0 {
		depth = 10
	}
	return &Prefetcher{
		cache:  cache,
		pool:   pool,
		seq:    seq,
		depth:  depth,
		kick:   make(chan media.Timestamp, 1),
		logger: log.WithPrefix("prefetch"),
	}
}

func (p *Prefetcher) Start() {
	if p.running.Swap(true) {
		return
	}
	p.wg.Add(1)
	go p.loop()
}

func (p *Prefetcher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	// wake the loop if it is waiting on a kick
	select {
	case p.kick <- media.NoTimestamp:
	default:
	}
	p.wg.Wait()
}

// Kick requests prefetch around timeline position t. Never blocks; a
// pending request is simply replaced.
func (p *Prefetcher) Kick(t media.Timestamp) {
	select {
	case <-p.kick:
	default:
	}
	select {
	case p.kick <- t:
	default:
	}
}

func (p *Prefetcher) loop() {
	defer p.wg.Done()

	for p.running.Load() {
		t := <-p.kick
		if !p.running.Load() || t == media.NoTimestamp {
			return
		}
		p.fillAt(t)
	}
}

// fillAt decodes the missing frames for every clip visible at t.
func (p *Prefetcher) fillAt(t media.Timestamp) {
	if p.seq == nil {
		return
	}
	frameDur := p.seq.Settings.FrameDuration()

	for _, clip := range p.seq.VisibleClipsAt(t) {
		src := clip.MapToSource(t)
		missing := p.cache.PrefetchRange(clip.ID, src, frameDur, p.depth)
		if len(missing) == 0 {
			continue
		}
		p.fillClip(clip, missing)
		if !p.running.Load() {
			return
		}
	}
}

// fillClip decodes forward from the first missing time, caching each
// requested grid position with the frame covering it.
func (p *Prefetcher) fillClip(clip *timeline.Clip, missing []media.Timestamp) {
	d, err := p.pool.Acquire(clip.MediaID)
	if err != nil {
		p.logger.Debug("no decoder", "media", clip.MediaID, "err", err)
		return
	}
	defer p.pool.Release(clip.MediaID, d)

	if err := d.Seek(missing[0]); err != nil {
		p.logger.Debug("seek failed", "err", err)
		return
	}

	frame := media.VideoFrame{PTS: media.NoTimestamp}
	have := false
	defer func() {
		if have {
			frame.Release()
		}
	}()

	for _, want := range missing {
		// decode forward until a frame covers the wanted time
		for !have || frame.PTS+frame.Dur <= want {
			if have {
				frame.Release()
				have = false
			}
			f, err := d.DecodeNextVideoFrame()
			if err != nil {
				if !errors.Is(err, media.ErrEndOfFile) {
					p.logger.Debug("decode failed", "err", err)
				}
				return
			}
			frame = f
			have = true
			if !p.running.Load() {
				return
			}
		}
		p.cache.Put(clip.ID, want, frame)
	}
}
