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
package timeline

import (
	"sort"

	"github.com/google/uuid"

	"github.com/opencine/playkit/event"
	"github.com/opencine/playkit/media"
)

// TrackType separates the two lane kinds.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
)

// Track is a non-overlapping lane of clips sorted by TimelineIn.
// Touching endpoints are allowed: a.out == b.in is not an overlap.
//
// Tracks are not safe for concurrent mutation; timeline edits and
// reads happen on one thread, the compositor works from snapshots.
type Track struct {
	ID    uuid.UUID
	Name  string
	Type  TrackType
	Index int

	Muted  bool
	Locked bool
	Hidden bool
	Solo   bool

	clips []*Clip

	// mutation events for the editing shell
	ClipAdded   event.Signal[*Clip]
	ClipRemoved event.Signal[uuid.UUID]
	ClipMoved   event.Signal[*Clip]
}

func NewTrack(t TrackType) *Track {
	return &Track{ID: uuid.New(), Type: t, Index: -1}
}

// AddClip validates invariants and non-overlap, then inserts.
func (t *Track) AddClip(c *Clip) error {
	if c == nil {
		return media.ErrInvalidArg
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if t.HasOverlap(c.TimelineIn, c.TimelineOut, uuid.Nil) {
		return media.ErrInvalidArg
	}
	c.TrackIndex = t.Index
	t.clips = append(t.clips, c)
	t.sortClips()
	t.ClipAdded.Emit(c)
	return nil
}

// RemoveClip detaches a clip by id and returns it, or nil.
func (t *Track) RemoveClip(id uuid.UUID) *Clip {
	for i, c := range t.clips {
		if c.ID == id {
			t.clips = append(t.clips[:i], t.clips[i+1:]...)
			c.TrackIndex = -1
			t.ClipRemoved.Emit(id)
			return c
		}
	}
	return nil
}

// MoveClip shifts a clip to a new start, keeping its duration. Fails
// if the candidate interval overlaps any other clip.
func (t *Track) MoveClip(id uuid.UUID, newIn media.Timestamp) error {
	c := t.Clip(id)
	if c == nil {
		return media.ErrNotFound
	}
	dur := c.Duration()
	if t.HasOverlap(newIn, newIn+dur, id) {
		return media.ErrInvalidArg
	}
	c.TimelineIn = newIn
	c.TimelineOut = newIn + dur
	t.sortClips()
	t.ClipMoved.Emit(c)
	return nil
}

// Clip finds a clip by id.
func (t *Track) Clip(id uuid.UUID) *Clip {
	for _, c := range t.clips {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ClipAt returns the unique clip whose [in, out) contains tm, or nil.
func (t *Track) ClipAt(tm media.Timestamp) *Clip {
	for _, c := range t.clips {
		if c.ContainsTime(tm) {
			return c
		}
	}
	return nil
}

// ClipsInRange returns clips overlapping [start, end).
func (t *Track) ClipsInRange(start, end media.Timestamp) []*Clip {
	var out []*Clip
	for _, c := range t.clips {
		if c.TimelineOut > start && c.TimelineIn < end {
			out = append(out, c)
		}
	}
	return out
}

// Clips returns the sorted clip slice (do not mutate).
func (t *Track) Clips() []*Clip { return t.clips }

func (t *Track) ClipCount() int { return len(t.clips) }

func (t *Track) Empty() bool { return len(t.clips) == 0 }

// Duration is the end of the last clip.
func (t *Track) Duration() media.Duration {
	if len(t.clips) == 0 {
		return 0
	}
	return t.clips[len(t.clips)-1].TimelineOut
}

// HasOverlap reports whether [start, end) intersects any clip other
// than exclude. Endpoint equality does not count.
func (t *Track) HasOverlap(start, end media.Timestamp, exclude uuid.UUID) bool {
	for _, c := range t.clips {
		if c.ID == exclude {
			continue
		}
		if !(end <= c.TimelineIn || c.TimelineOut <= start) {
			return true
		}
	}
	return false
}

// FindGap scans for the earliest start >= afterTime that admits
// minDuration without overlap. With no suitable hole between clips it
// returns the end of the last clip.
func (t *Track) FindGap(afterTime media.Timestamp, minDuration media.Duration) media.Timestamp {
	if len(t.clips) == 0 {
		return afterTime
	}
	if t.clips[0].TimelineIn >= afterTime+minDuration {
		return afterTime
	}
	for i := 0; i < len(t.clips)-1; i++ {
		gapStart := t.clips[i].TimelineOut
		if gapStart < afterTime {
			gapStart = afterTime
		}
		gapEnd := t.clips[i+1].TimelineIn
		if gapEnd-gapStart >= minDuration {
			return gapStart
		}
	}
	return t.clips[len(t.clips)-1].TimelineOut
}

// ClearClips removes everything.
func (t *Track) ClearClips() {
	t.clips = nil
}

func (t *Track) sortClips() {
	sort.SliceStable(t.clips, func(i, j int) bool {
		return t.clips[i].TimelineIn < t.clips[j].TimelineIn
	})
}
