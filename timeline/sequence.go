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
	"fmt"

	"github.com/google/uuid"

	"github.com/opencine/playkit/event"
	"github.com/opencine/playkit/media"
)

// Settings carries the output format of a sequence.
type Settings struct {
	Width      int
	Height     int
	FrameRate  media.Rational
	SampleRate int
	Channels   int
}

// DefaultSettings is 1080p at ~29.97 fps with stereo 48 kHz audio.
func DefaultSettings() Settings {
	return Settings{
		Width:      1920,
		Height:     1080,
		FrameRate:  media.NewRational(30000, 1001),
		SampleRate: 48000,
		Channels:   2,
	}
}

// FrameDuration of one output frame, µs.
func (s Settings) FrameDuration() media.Duration { return s.FrameRate.FrameDuration() }

// Sequence is a stack of tracks with output settings. Video tracks are
// composited bottom (index 0) to top; audio tracks are mixed.
type Sequence struct {
	ID   uuid.UUID
	Name string

	Settings Settings

	videoTracks []*Track
	audioTracks []*Track

	playhead media.Timestamp
	inPoint  media.Timestamp
	outPoint media.Timestamp

	TrackAdded    event.Signal[*Track]
	TrackRemoved  event.Signal[uuid.UUID]
	PlayheadMoved event.Signal[media.Timestamp]
}

// NewSequence creates a sequence with one video and one audio track.
func NewSequence(name string) *Sequence {
	s := &Sequence{ID: uuid.New(), Name: name, Settings: DefaultSettings()}
	s.AddVideoTrack()
	s.AddAudioTrack()
	return s
}

// AddVideoTrack appends a video track on top of the stack.
func (s *Sequence) AddVideoTrack() *Track {
	t := NewTrack(TrackVideo)
	t.Name = fmt.Sprintf("Video %d", len(s.videoTracks)+1)
	t.Index = len(s.videoTracks)
	s.videoTracks = append(s.videoTracks, t)
	s.TrackAdded.Emit(t)
	return t
}

// AddAudioTrack appends an audio track.
func (s *Sequence) AddAudioTrack() *Track {
	t := NewTrack(TrackAudio)
	t.Name = fmt.Sprintf("Audio %d", len(s.audioTracks)+1)
	t.Index = len(s.audioTracks)
	s.audioTracks = append(s.audioTracks, t)
	s.TrackAdded.Emit(t)
	return t
}

// RemoveTrack drops a track by id from either stack.
func (s *Sequence) RemoveTrack(id uuid.UUID) bool {
	for i, t := range s.videoTracks {
		if t.ID == id {
			s.videoTracks = append(s.videoTracks[:i], s.videoTracks[i+1:]...)
			s.reindex(s.videoTracks)
			s.TrackRemoved.Emit(id)
			return true
		}
	}
	for i, t := range s.audioTracks {
		if t.ID == id {
			s.audioTracks = append(s.audioTracks[:i], s.audioTracks[i+1:]...)
			s.reindex(s.audioTracks)
			s.TrackRemoved.Emit(id)
			return true
		}
	}
	return false
}

func (s *Sequence) reindex(tracks []*Track) {
	for i, t := range tracks {
		t.Index = i
		for _, c := range t.Clips() {
			c.TrackIndex = i
		}
	}
}

// VideoTracks bottom to top.
func (s *Sequence) VideoTracks() []*Track { return s.videoTracks }

func (s *Sequence) AudioTracks() []*Track { return s.audioTracks }

func (s *Sequence) VideoTrack(i int) *Track {
	if i < 0 || i >= len(s.videoTracks) {
		return nil
	}
	return s.videoTracks[i]
}

func (s *Sequence) AudioTrack(i int) *Track {
	if i < 0 || i >= len(s.audioTracks) {
		return nil
	}
	return s.audioTracks[i]
}

// Track finds a track by id in either stack.
func (s *Sequence) Track(id uuid.UUID) *Track {
	for _, t := range s.videoTracks {
		if t.ID == id {
			return t
		}
	}
	for _, t := range s.audioTracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Clip searches all tracks for a clip id.
func (s *Sequence) Clip(id uuid.UUID) *Clip {
	for _, t := range s.videoTracks {
		if c := t.Clip(id); c != nil {
			return c
		}
	}
	for _, t := range s.audioTracks {
		if c := t.Clip(id); c != nil {
			return c
		}
	}
	return nil
}

// VisibleClipsAt returns enabled video clips under t, bottom to top,
// honoring track hidden/muted flags.
func (s *Sequence) VisibleClipsAt(tm media.Timestamp) []*Clip {
	var out []*Clip
	for _, t := range s.videoTracks {
		if t.Hidden || t.Muted {
			continue
		}
		if c := t.ClipAt(tm); c != nil && !c.Disabled {
			out = append(out, c)
		}
	}
	return out
}

// AudibleClipsAt returns unmuted audio clips under t.
func (s *Sequence) AudibleClipsAt(tm media.Timestamp) []*Clip {
	var out []*Clip
	for _, t := range s.audioTracks {
		if t.Muted {
			continue
		}
		if c := t.ClipAt(tm); c != nil && !c.Disabled && !c.Muted {
			out = append(out, c)
		}
	}
	return out
}

// Duration is the max clip end across every track.
func (s *Sequence) Duration() media.Duration {
	var max media.Duration
	for _, t := range s.videoTracks {
		if d := t.Duration(); d > max {
			max = d
		}
	}
	for _, t := range s.audioTracks {
		if d := t.Duration(); d > max {
			max = d
		}
	}
	return max
}

// FrameCount is Duration / frame duration.
func (s *Sequence) FrameCount() int64 {
	fd := s.Settings.FrameDuration()
	if fd == 0 {
		return 0
	}
	return s.Duration() / fd
}

// ========== playhead and in/out points ==========

func (s *Sequence) Playhead() media.Timestamp { return s.playhead }

func (s *Sequence) SetPlayhead(t media.Timestamp) {
	s.playhead = t
	s.PlayheadMoved.Emit(t)
}

func (s *Sequence) InPoint() media.Timestamp { return s.inPoint }
func (s *Sequence) OutPoint() media.Timestamp { return s.outPoint }

func (s *Sequence) SetInPoint(t media.Timestamp) { s.inPoint = t }
func (s *Sequence) SetOutPoint(t media.Timestamp) { s.outPoint = t }

func (s *Sequence) HasInOutRange() bool { return s.outPoint > s.inPoint }
