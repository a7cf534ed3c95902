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

// Package reactor wraps epoll/kqueue/select behind one level-triggered,
// edge-agnostic event-demultiplexer interface (spec §4.1, C3).
package reactor

// Mask is a bitwise composition of interest/delivered event flags.
type Mask uint32

const (
	Readable         Mask = 1 << iota // READABLE
	PriorityReadable                  // PRIORITY_READABLE
	Writable                          // WRITABLE
	Error                             // ERROR - always observed
	HangUp                            // HANG_UP - always observed
	Invalid                           // INVALID - always observed
)

// AlwaysObserved is OR'd into every registration's effective mask: the
// backend must report these even when the caller didn't request them.
const AlwaysObserved = Error | HangUp | Invalid

// Has reports whether m contains every bit of sub.
func (m Mask) Has(sub Mask) bool {
	return m&sub == sub
}

// String renders a mask as a short flag list, e.g. "R|W".
func (m Mask) String() string {
	s := ""
	add := func(bit Mask, c string) {
		if m.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += c
		}
	}
	add(Readable, "R")
	add(PriorityReadable, "P")
	add(Writable, "W")
	add(Error, "E")
	add(HangUp, "H")
	add(Invalid, "I")
	if s == "" {
		return "0"
	}
	return s
}

// MaxBatch bounds how many events Dispatch pulls from the backend per tick.
const MaxBatch = 1024

// Client is the callback target of a registered fd, invoked once per tick
// with the combined mask delivered for that fd this tick.
type Client interface {
	// OnIO is the reactor's single I/O callback. removeHint, when set true
	// by the client, causes immediate unregistration of fd regardless of backend.
	OnIO(fd int, delivered Mask, removeHint *bool)
}

// Backend is the interface every epoll/kqueue/select implementation satisfies.
type Backend interface {
	// Type identifies the backend: "epoll", "kqueue", or "select".
	Type() string

	// Add registers fd with the given interest mask and client.
	Add(fd int, client Client, mask Mask) error

	// Remove unregisters fd. Safe to call on an fd not registered.
	Remove(fd int) error

	// SetMask replaces fd's interest mask.
	SetMask(fd int, mask Mask) error

	// OrMask ORs bits into fd's interest mask.
	OrMask(fd int, mask Mask) error

	// AndMask ANDs bits into fd's interest mask.
	AndMask(fd int, mask Mask) error

	// Dispatch blocks up to timeoutMs waiting for I/O, then invokes each
	// ready client's OnIO once. Returns the number of events delivered.
	// On EINTR returns (0, nil). Other backend failures return a non-nil error.
	Dispatch(timeoutMs int) (int, error)

	// EventFor returns the client registered for fd, if any.
	EventFor(fd int) (Client, bool)

	// Close releases backend resources (e.g. the epoll/kqueue fd).
	Close() error

	// FD returns the backend's own kernel handle, for post-fork handoff via
	// NewFromFD. Select-based backends return -1.
	FD() int
}
