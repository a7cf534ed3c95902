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

// ChildListener receives accepted fds passed down a control pair by a
// ParentListener: spec §4.4's child-receiver accept flow. Unlike the
// source this framework is modeled on, dispatch on the received listener
// type tag is an exhaustive switch that returns from its matched case —
// never falls through to accept both SERVICE and ADMIN into the same
// accept callback (spec §9 open question).
type ChildListener struct {
	controlFD int
	onService AcceptFunc
	onAdmin   AcceptFunc
	tls       TLSStarter
	onError   func(err error)
}

// NewChild wires a ChildListener reading from controlFD (the child's end
// of a control pair created by socket.ControlPair). onService and onAdmin
// are dispatched to exclusively by the received tag; either may be nil.
func NewChild(controlFD int, tls TLSStarter, onService, onAdmin AcceptFunc, onError func(err error)) *ChildListener {
	return &ChildListener{controlFD: controlFD, onService: onService, onAdmin: onAdmin, tls: tls, onError: onError}
}

// OnIO implements reactor.Client for the control-pair fd: on readability,
// receive one passed fd plus its listener-type tag and dispatch it.
func (l *ChildListener) OnIO(fd int, delivered reactor.Mask, removeHint *bool) {
	if !delivered.Has(reactor.Readable) {
		return
	}

	tagBuf := make([]byte, 1)
	nfd, _, err := socket.ReceiveFD(l.controlFD, tagBuf)
	if err != nil {
		return
	}

	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return
	}

	peer, err := peerAddrOf(nfd)
	if err != nil {
		unix.Close(nfd)
		return
	}

	ltype := Type(tagBuf[0])
	params := AcceptParams{FD: nfd, PeerAddr: peer, ListenerType: ltype}

	switch ltype {
	case TypeService:
		l.dispatch(nfd, params, l.onService)
		return
	case TypeAdmin:
		l.dispatch(nfd, params, l.onAdmin)
		return
	default:
		unix.Close(nfd)
		if l.onError != nil {
			l.onError(pkgerr.New(pkgerr.MinPkgListener, "unknown listener type tag received"))
		}
		return
	}
}

func (l *ChildListener) dispatch(nfd int, params AcceptParams, cb AcceptFunc) {
	if l.tls != nil {
		if err := l.tls.StartHandshake(nfd, params.PeerAddr, func(hfd int, session interface{}, ok bool) {
			if !ok {
				unix.Close(hfd)
				return
			}
			p := params
			p.TLSSession = session
			if cb != nil && !cb(p) {
				if c, ok := session.(interface{ Close() error }); ok {
					_ = c.Close()
				}
				unix.Close(hfd)
			}
		}); err != nil {
			unix.Close(nfd)
		}
		return
	}

	if cb != nil && !cb(params) {
		unix.Close(nfd)
	}
}
