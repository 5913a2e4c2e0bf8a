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
package framecache

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	"github.com/opencine/playkit/media"
)

// Key addresses one decoded frame of one clip.
type Key struct {
	ClipID    uuid.UUID
	MediaTime media.Timestamp
}

// Stats is a snapshot of cache behavior.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Size        int
	MemoryBytes int64
}

// HitRate in [0,1].
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

const (
	DefaultMaxFrames   = 100
	DefaultMaxMemoryMB = 512
)

// Cache is an LRU of decoded frames keyed by (clip, media-time), with
// a dual bound on item count and estimated memory. Cold path: playback
// reads go through the compositor, which holds the result; everything
// here sits behind one mutex.
type Cache struct {
	mu sync.Mutex

	maxFrames int
	maxMemory int64
	memory    int64

	entries map[Key]*list.Element
	lru     *list.List // front = most recent

	hits   uint64
	misses uint64
}

type entry struct {
	key   Key
	frame media.VideoFrame
}

// New creates a cache. Zero arguments pick the defaults.
func New(maxFrames int, maxMemoryMB int) *Cache {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	if maxMemoryMB <= 0 {
		maxMemoryMB = DefaultMaxMemoryMB
	}
	return &Cache{
		maxFrames: maxFrames,
		maxMemory: int64(maxMemoryMB) * 1024 * 1024,
		entries:   make(map[Key]*list.Element),
		lru:       list.New(),
	}
}

// frameSize estimates retained bytes: width*height*4.
func frameSize(f *media.VideoFrame) int64 {
	return int64(f.Width) * int64(f.Height) * 4
}

// Get returns a retained copy of the cached frame and true, moving the
// entry to most-recently-used. The caller releases its copy.
func (c *Cache) Get(clipID uuid.UUID, mediaTime media.Timestamp) (media.VideoFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[Key{clipID, mediaTime}]
	if !ok {
		c.misses++
		return media.VideoFrame{}, false
	}
	c.hits++
	c.lru.MoveToFront(el)
	e := el.Value.(*entry)
	return e.frame.Retain(), true
}

// Contains reports presence without touching LRU order or counters.
func (c *Cache) Contains(clipID uuid.UUID, mediaTime media.Timestamp) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[Key{clipID, mediaTime}]
	return ok
}

// Put stores (replacing any previous entry) a retained reference to
// frame, then evicts LRU entries while either bound is exceeded.
func (c *Cache) Put(clipID uuid.UUID, mediaTime media.Timestamp, frame media.VideoFrame) {
	if !frame.HasData() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key{clipID, mediaTime}
	kept := frame.Retain()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		c.memory -= frameSize(&e.frame)
		e.frame.Release()
		e.frame = kept
		c.memory += frameSize(&kept)
		c.lru.MoveToFront(el)
	} else {
		el := c.lru.PushFront(&entry{key: key, frame: kept})
		c.entries[key] = el
		c.memory += frameSize(&kept)
	}

	for c.lru.Len() > c.maxFrames || c.memory > c.maxMemory {
		if !c.evictLocked() {
			break
		}
	}
}

// Remove drops one entry.
func (c *Cache) Remove(clipID uuid.UUID, mediaTime media.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[Key{clipID, mediaTime}]; ok {
		c.removeLocked(el)
	}
}

// RemoveClip drops every entry of one clip.
func (c *Cache) RemoveClip(clipID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var victims []*list.Element
	for k, el := range c.entries {
		if k.ClipID == clipID {
			victims = append(victims, el)
		}
	}
	for _, el := range victims {
		c.removeLocked(el)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.lru.Len() > 0 {
		c.evictLocked()
	}
}

// PrefetchRange returns up to count consecutive media times starting
// at current that are NOT cached, for an external prefetcher to fill.
func (c *Cache) PrefetchRange(clipID uuid.UUID, current media.Timestamp, frameDur media.Duration, count int) []media.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []media.Timestamp
	for i := 0; i < count; i++ {
		t := current + frameDur*media.Duration(i)
		if _, ok := c.entries[Key{clipID, t}]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// Stats snapshot.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.lru.Len(), MemoryBytes: c.memory}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) MemoryUsage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory
}

func (c *Cache) evictLocked() bool {
	el := c.lru.Back()
	if el == nil {
		return false
	}
	c.removeLocked(el)
	return true
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.memory -= frameSize(&e.frame)
	e.frame.Release()
	c.lru.Remove(el)
	delete(c.entries, e.key)
}
