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

// Command playkit plays a single media file through the pipeline and
// prints transport events. It is the smallest useful driver of the
// engine: open, play, wait for EOF (or a duration), stop.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	astiav "github.com/asticode/go-astiav"
	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/opencine/playkit/audiodev"
	"github.com/opencine/playkit/config"
	"github.com/opencine/playkit/media"
	"github.com/opencine/playkit/pipeline"
	"github.com/opencine/playkit/render"
	"github.com/opencine/playkit/ringbuf"
)

func main() {
	var (
		debug    = flag.Bool("debug", false, "debug logging")
		debugFF  = flag.Bool("debug-ffmpeg", false, "log ffmpeg internals")
		noAudio  = flag.Bool("no-audio", false, "disable the audio device")
		loop     = flag.Bool("loop", false, "loop at end of file")
		speed    = flag.Float64("speed", 1.0, "playback speed (0.1..8.0)")
		seekTo   = flag.Int64("seek", 0, "initial seek position (µs)")
		cfgPath  = flag.String("config", "", "settings file (default ~/.config/playkit/settings.yml)")
	)
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	if flag.NArg() < 1 {
		log.Fatal("usage: playkit [flags] <file>")
	}
	path := flag.Arg(0)

	if *debugFF {
		astiav.SetLogLevel(astiav.LogLevelDebug)
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmt, msg string) {
			log.Debug("ffmpeg", "msg", msg, "level", l)
		})
	}

	cfgFile := *cfgPath
	if cfgFile == "" {
		if p, err := config.DefaultPath(); err == nil {
			cfgFile = p
		}
	}
	cfg := config.Default()
	if cfgFile != "" {
		if loaded, err := config.Load(cfgFile); err == nil {
			cfg = loaded
		} else if !os.IsNotExist(err) {
			log.Warn("config load failed", "path", cfgFile, "err", err)
		}
	}

	pcfg := pipeline.Config{
		PrerollTimeout:      time.Duration(cfg.PrerollTimeoutMs) * time.Millisecond,
		VideoQueueCapacity:  cfg.VideoQueueCapacity,
		AudioQueueCapacity:  cfg.AudioQueueCapacity,
		PacketQueueCapacity: cfg.PacketQueueCapacity,
		RingBufferBytes:     cfg.RingBufferKB * 1024,
		ThreadCount:         cfg.DecoderThreads,
	}
	if pcfg.RingBufferBytes <= 0 {
		pcfg.RingBufferBytes = ringbuf.DefaultCapacity
	}

	var device audiodev.Device
	if !*noAudio {
		device = audiodev.NewOtoDevice()
	}
	renderer := render.NewOffscreen()

	p := pipeline.New(pcfg, renderer, device)

	done := make(chan struct{})
	p.SetEventCallback(func(ev pipeline.Event) {
		switch ev.Type {
		case pipeline.EventWarning:
			log.Warn("event", "type", ev.Type, "msg", ev.Message)
		case pipeline.EventError:
			log.Error("event", "type", ev.Type, "msg", ev.Message)
		case pipeline.EventEndOfFile:
			log.Info("event", "type", ev.Type)
			close(done)
		default:
			log.Info("event", "type", ev.Type)
		}
	})

	if err := p.Open(path); err != nil {
		log.Fatal("open failed", "err", err)
	}
	defer p.Close()

	p.SetLooping(*loop)
	if *speed != 1.0 {
		p.SetPlaybackSpeed(*speed)
	}

	if err := p.Play(); err != nil {
		log.Fatal("play failed", "err", err)
	}
	if *seekTo > 0 {
		if err := p.Seek(media.Timestamp(*seekTo)); err != nil {
			log.Warn("seek failed", "err", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Info("finished", "rendered", p.FramesRendered(), "dropped", p.FramesDropped())
			return
		case <-sig:
			log.Info("interrupted")
			return
		case <-ticker.C:
			log.Info("position", "t", p.Clock().Now(), "state", p.State(),
				"rendered", p.FramesRendered(), "dropped", p.FramesDropped())
		}
	}
}
