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

import "errors"

//
// ==========================
// Error taxonomy (hot paths)
// ==========================
//
// Everything fallible in the graph returns one of these, possibly
// wrapped with context via fmt.Errorf("...: %w", err). EOF is carried
// as a sentinel item through pins, not as an error value; ErrEndOfFile
// exists for the decoder abstraction boundary.
//

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidArg     = errors.New("invalid argument")
	ErrInvalidData    = errors.New("invalid data")
	ErrOutOfMemory    = errors.New("out of memory")
	ErrDevice         = errors.New("device error")
	ErrDecoder        = errors.New("decoder error")
	ErrCodecNotFound  = errors.New("codec not found")
	ErrEndOfFile      = errors.New("end of file")
	ErrTimeout        = errors.New("timeout")
	ErrNotInitialized = errors.New("not initialized")
	ErrPinTerminated  = errors.New("pin terminated")
)
