/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package reactor

import (
	"strings"
)

// Reactor is the process-wide (per-process, not per-thread: spec §5 keeps
// this single-threaded) event demultiplexer. It is a thin, named wrapper
// over a Backend so callers can log/observe Type() without type-asserting.
type Reactor struct {
	Backend
}

// preferenceOrder is the auto-detect order: epoll, then kqueue, then select.
var preferenceOrder = []string{"epoll", "kqueue", "select"}

// New creates a Reactor using the named backend ("epoll", "kqueue",
// "select"), or auto-detects in preference order when name is empty.
func New(name string) (*Reactor, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	if name == "" {
		var lastErr error
		for _, candidate := range preferenceOrder {
			b, err := newBackend(candidate)
			if err == nil {
				return &Reactor{Backend: b}, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}

	b, err := newBackend(name)
	if err != nil {
		return nil, err
	}
	return &Reactor{Backend: b}, nil
}

// NewFromFD creates a Reactor from an already-open kernel handle (epoll or
// kqueue fd), enabling handoff of a parent process's reactor across fork.
// Not supported for "select" (it owns no kernel handle).
func NewFromFD(name string, fd int) (*Reactor, error) {
	b, err := newBackendFromFD(strings.ToLower(strings.TrimSpace(name)), fd)
	if err != nil {
		return nil, err
	}
	return &Reactor{Backend: b}, nil
}
