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

package listener

import (
	"github.com/sabouaram/pwnet/pkgerr"
	"github.com/sabouaram/pwnet/reactor"
	"github.com/sabouaram/pwnet/socket"
	"golang.org/x/sys/unix"
)

// ParentListener accepts on the calling (parent) process and round-robins
// each accepted fd out to a pool of worker children over their control
// pairs, rather than handling the connection itself: spec §4.4's
// parent-distributor accept flow.
type ParentListener struct {
	fd       int
	ltype    Type
	children []int // one control-pair fd per child, parent's end
	next     int
	onError  func(err error)
}

// NewParent wires a ParentListener bound to fd (as returned by Open),
// distributing to the given child control-pair fds. onError, if non-nil,
// receives fd-distribution failures (spec's "fd_pass_failed" kind).
func NewParent(fd int, ltype Type, childControlFDs []int, onError func(err error)) *ParentListener {
	return &ParentListener{fd: fd, ltype: ltype, children: childControlFDs, onError: onError}
}

// OnIO implements reactor.Client for the listening fd: accept, then hand
// the fd and a one-byte listener-type tag to the next child in round-robin
// order, then close the parent's copy.
func (l *ParentListener) OnIO(fd int, delivered reactor.Mask, removeHint *bool) {
	if !delivered.Has(reactor.Readable) {
		return
	}
	if len(l.children) == 0 {
		return
	}

	for {
		nfd, _, err := unix.Accept(l.fd)
		if err != nil {
			return
		}

		child := l.children[l.next]
		l.next = (l.next + 1) % len(l.children)

		if _, err := socket.SendFD(child, nfd, []byte{byte(l.ltype)}); err != nil {
			if l.onError != nil {
				l.onError(pkgerr.Wrap(pkgerr.MinPkgListener, "distribute accepted fd", err))
			}
		}

		unix.Close(nfd)
	}
}
