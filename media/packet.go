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
package media

// Kind tells which branch of the graph an item belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	}
	return "unknown"
}

// Packet is one compressed unit read from the container. It is owned by
// whoever holds it and moves through the graph exactly once; the demuxer
// copies the payload out of FFmpeg before emitting.
//
// Serial is the pipeline generation at read time. Stages drop packets
// whose serial is older than the pipeline's current one (seek staleness).
type Packet struct {
	Data        []byte
	PTS         Timestamp
	DTS         Timestamp
	Dur         Duration
	StreamIndex int
	KeyFrame    bool
	Kind        Kind
	Serial      uint64

	eof bool
}

// EOFPacket builds the end-of-stream sentinel. It carries no data; the
// decoder reacts by draining its codec.
func EOFPacket(kind Kind, serial uint64) Packet {
	return Packet{Kind: kind, Serial: serial, PTS: NoTimestamp, DTS: NoTimestamp, eof: true}
}

func (p Packet) IsEOF() bool { return p.eof }

func (p Packet) Size() int { return len(p.Data) }
