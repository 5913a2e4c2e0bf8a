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
package audiodev

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/oto/v2"

	"github.com/opencine/playkit/media"
)

// OtoDevice plays through an oto/v2 context. Oto pulls samples by
// reading from an io.Reader on its own audio goroutine; each Read is
// forwarded to the installed callback, which gives us the push-style
// callback contract on top of oto's pull model.
//
// Only one oto context may exist per process; keep one OtoDevice.
type OtoDevice struct {
	mu     sync.Mutex
	ctx    *oto.Context
	player oto.Player

	cb     atomic.Value // Callback
	paused atomic.Bool
	open   atomic.Bool
}

func NewOtoDevice() *OtoDevice { return &OtoDevice{} }

// Open creates the oto context and starts the pull loop. Only
// interleaved signed 16-bit is supported, matching the sink's output.
func (d *OtoDevice) Open(sampleRate, channels int, format media.SampleFormat, bufferSamples int) error {
	if format != media.SampleFormatS16 {
		return fmt.Errorf("oto device: unsupported sample format %v: %w", format, media.ErrInvalidArg)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open.Load() {
		return nil
	}

	ctx, ready, err := oto.NewContext(sampleRate, channels, oto.FormatSignedInt16LE)
	if err != nil {
		return fmt.Errorf("oto device: %v: %w", err, media.ErrDevice)
	}

	// readiness is asynchronous on some platforms
	go func() {
		<-ready
		log.Debug("audio context ready", "rate", sampleRate, "channels", channels)
	}()

	d.ctx = ctx
	p := ctx.NewPlayer(&deviceReader{dev: d})
	p.Play()
	d.player = p
	d.open.Store(true)
	log.Info("audio device open", "rate", sampleRate, "channels", channels, "buffer", bufferSamples)
	return nil
}

// SetCallback installs the pull callback. Safe while playing.
func (d *OtoDevice) SetCallback(cb Callback) {
	d.cb.Store(cb)
}

// Pause halts the pull loop; the device keeps running and outputs
// whatever the platform does with a paused player.
func (d *OtoDevice) Pause(paused bool) {
	d.paused.Store(paused)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return
	}
	if paused {
		d.player.Pause()
	} else {
		d.player.Play()
	}
}

func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open.Swap(false) {
		return nil
	}
	var err error
	if d.player != nil {
		err = d.player.Close()
		d.player = nil
	}
	return err
}

// deviceReader adapts oto's pull to the callback contract. Runs on the
// audio goroutine: no locks, no allocation, no logging.
type deviceReader struct {
	dev *OtoDevice
}

func (r *deviceReader) Read(p []byte) (int, error) {
	if r.dev.paused.Load() {
		zero(p)
		return len(p), nil
	}
	cb, _ := r.dev.cb.Load().(Callback)
	if cb == nil {
		zero(p)
		return len(p), nil
	}
	cb(p)
	return len(p), nil
}

func zero(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
