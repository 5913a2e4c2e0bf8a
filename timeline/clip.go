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
	"github.com/google/uuid"

	"github.com/opencine/playkit/media"
)

// ClipType distinguishes what a clip renders as.
type ClipType int

const (
	ClipVideo ClipType = iota
	ClipAudio
	ClipTitle
	ClipAdjustment
)

// BlendMode selects the per-pixel formula used when this clip's layer
// is folded onto the stack below it.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendAdd
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendDifference
)

// Clip is a time-mapped window onto source media, placed on a track.
//
// Timeline coordinates: [TimelineIn, TimelineOut), out exclusive.
// Source coordinates: [SourceIn, SourceOut).
// Invariants: TimelineOut > TimelineIn, SourceOut > SourceIn, Speed > 0.
type Clip struct {
	ID      uuid.UUID
	MediaID uuid.UUID
	Name    string
	Type    ClipType

	TimelineIn  media.Timestamp
	TimelineOut media.Timestamp
	SourceIn    media.Timestamp
	SourceOut   media.Timestamp

	Speed    float64
	Reversed bool

	Opacity  float64 // 0..1
	Blend    BlendMode
	Volume   float64
	Muted    bool
	Disabled bool

	TrackIndex int
}

// NewClip builds a clip over a media item with sane defaults.
func NewClip(mediaID uuid.UUID) *Clip {
	return &Clip{
		ID:         uuid.New(),
		MediaID:    mediaID,
		Speed:      1.0,
		Opacity:    1.0,
		Volume:     1.0,
		TrackIndex: -1,
	}
}

// Duration on the timeline.
func (c *Clip) Duration() media.Duration { return c.TimelineOut - c.TimelineIn }

// SourceDuration before speed adjustment.
func (c *Clip) SourceDuration() media.Duration { return c.SourceOut - c.SourceIn }

// ContainsTime reports whether t falls inside [in, out).
func (c *Clip) ContainsTime(t media.Timestamp) bool {
	return t >= c.TimelineIn && t < c.TimelineOut
}

// MapToSource converts a timeline position into the corresponding
// source media position:
//
//	src = sourceIn + (t - timelineIn) * speed        (forward)
//	src = sourceOut - (t - timelineIn) * speed       (reversed)
//
// Inputs outside the clip are clamped to its range first.
func (c *Clip) MapToSource(t media.Timestamp) media.Timestamp {
	if t < c.TimelineIn {
		t = c.TimelineIn
	}
	if t > c.TimelineOut {
		t = c.TimelineOut
	}
	offset := media.Duration(float64(t-c.TimelineIn) * c.Speed)
	if c.Reversed {
		return c.SourceOut - offset
	}
	return c.SourceIn + offset
}

// Validate checks the clip invariants.
func (c *Clip) Validate() error {
	switch {
	case c.TimelineOut <= c.TimelineIn:
		return media.ErrInvalidArg
	case c.SourceOut <= c.SourceIn:
		return media.ErrInvalidArg
	case c.Speed <= 0:
		return media.ErrInvalidArg
	case c.Opacity < 0 || c.Opacity > 1:
		return media.ErrInvalidArg
	}
	return nil
}
