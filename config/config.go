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
package config

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v2"
)

var appName = "playkit"
var configMu sync.Mutex

// Config holds the engine tunables persisted between runs.
type Config struct {
	// playback graph
	VideoQueueCapacity  int `yaml:"video_queue_capacity,omitempty"`
	AudioQueueCapacity  int `yaml:"audio_queue_capacity,omitempty"`
	PacketQueueCapacity int `yaml:"packet_queue_capacity,omitempty"`
	RingBufferKB        int `yaml:"ring_buffer_kb,omitempty"`
	PrerollTimeoutMs    int `yaml:"preroll_timeout_ms,omitempty"`
	DecoderThreads      int `yaml:"decoder_threads,omitempty"` // 0=auto

	// timeline cache
	CacheFrames   int `yaml:"cache_frames,omitempty"`
	CacheMemoryMB int `yaml:"cache_memory_mb,omitempty"`
	PrefetchDepth int `yaml:"prefetch_depth,omitempty"`

	// compositor
	Background [4]uint8 `yaml:"background,flow,omitempty"`

	// logging
	LogLevel string `yaml:"log_level,omitempty"` // debug|info|warn|error
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		VideoQueueCapacity:  30,
		AudioQueueCapacity:  100,
		PacketQueueCapacity: 300,
		RingBufferKB:        128,
		PrerollTimeoutMs:    1500,
		CacheFrames:         100,
		CacheMemoryMB:       512,
		PrefetchDepth:       10,
		Background:          [4]uint8{0, 0, 0, 255},
		LogLevel:            "info",
	}
}

// DefaultPath is ~/.config/playkit/settings.yml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "settings.yml"), nil
}

// Load reads a config file, filling zero fields with defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.VideoQueueCapacity <= 0 {
		c.VideoQueueCapacity = d.VideoQueueCapacity
	}
	if c.AudioQueueCapacity <= 0 {
		c.AudioQueueCapacity = d.AudioQueueCapacity
	}
	if c.PacketQueueCapacity <= 0 {
		c.PacketQueueCapacity = d.PacketQueueCapacity
	}
	if c.RingBufferKB <= 0 {
		c.RingBufferKB = d.RingBufferKB
	}
	if c.PrerollTimeoutMs <= 0 {
		c.PrerollTimeoutMs = d.PrerollTimeoutMs
	}
	if c.CacheFrames <= 0 {
		c.CacheFrames = d.CacheFrames
	}
	if c.CacheMemoryMB <= 0 {
		c.CacheMemoryMB = d.CacheMemoryMB
	}
	if c.PrefetchDepth <= 0 {
		c.PrefetchDepth = d.PrefetchDepth
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Save writes the config atomically: write to tmp then rename.
func Save(path string, cfg Config) error {
	configMu.Lock()
	defer configMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(&cfg); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
