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
package graph

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// AsyncQueueNode owns one worker goroutine that shuttles items from its
// input pin to its output pin. It is the only place the graph spawns
// thread boundaries; every other node is pulled by whoever holds its
// input.
type AsyncQueueNode[T any] struct {
	name string

	In  *Pin[T]
	Out *Pin[T]

	running atomic.Bool
	wg      sync.WaitGroup

	forwarded atomic.Uint64

	logger *log.Logger
}

// NewAsyncQueueNode creates a node with a bounded input pin. Out must
// be connected (assigned) before Start.
func NewAsyncQueueNode[T any](name string, capacity int) *AsyncQueueNode[T] {
	return &AsyncQueueNode[T]{
		name:   name,
		In:     NewPin[T](capacity),
		logger: log.WithPrefix(name),
	}
}

func (n *AsyncQueueNode[T]) Name() string { return n.name }

// Start spawns the worker. Idempotent.
func (n *AsyncQueueNode[T]) Start() {
	if n.running.Swap(true) {
		return
	}
	n.In.Reset()
	n.wg.Add(1)
	go n.workerLoop()
	n.logger.Debug("started")
}

// Stop wakes the worker off its pin and joins it. Idempotent.
func (n *AsyncQueueNode[T]) Stop() {
	if !n.running.Swap(false) {
		return
	}
	n.In.Stop()
	n.wg.Wait()
	n.logger.Debug("stopped", "forwarded", n.forwarded.Load())
}

// Flush discards queued items (seek).
func (n *AsyncQueueNode[T]) Flush() {
	n.In.Flush()
}

// QueueLen returns the input queue depth.
func (n *AsyncQueueNode[T]) QueueLen() int { return n.In.Len() }

// Forwarded returns the number of items pushed downstream.
func (n *AsyncQueueNode[T]) Forwarded() uint64 { return n.forwarded.Load() }

func (n *AsyncQueueNode[T]) workerLoop() {
	defer n.wg.Done()

	for n.running.Load() {
		item, res := n.In.Pop(DefaultTimeout)
		switch res {
		case PopTerminated:
			return
		case PopTimeout:
			continue
		}

		if n.Out == nil {
			continue
		}

		// keep pressing downstream until it takes the item or we stop
		for n.running.Load() {
			switch n.Out.Push(item, DefaultTimeout) {
			case PushOK:
				n.forwarded.Add(1)
			case PushTimeout:
				continue
			case PushTerminated:
				return
			}
			break
		}
	}
}

