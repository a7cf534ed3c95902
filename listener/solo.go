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
	libsck "github.com/sabouaram/pwnet/sockaddr"
	"golang.org/x/sys/unix"
)

// SoloListener runs accept() directly on the calling process: spec §4.4's
// single-process accept flow. Bind it to an fd already opened with the
// package-level Open function.
type SoloListener struct {
	fd       int
	ltype    Type
	tls      TLSStarter
	onAccept AcceptFunc
}

// NewSolo wires a SoloListener; pass -1 for fd if the listening socket is
// not yet open and call Bind once Open returns it.
func NewSolo(fd int, ltype Type, tls TLSStarter, onAccept AcceptFunc) *SoloListener {
	return &SoloListener{fd: fd, ltype: ltype, tls: tls, onAccept: onAccept}
}

// Bind associates the already-opened listening fd with this listener, for
// the common case where Open must be called with a registered Client
// before that Client's own fd is known.
func (l *SoloListener) Bind(fd int) {
	l.fd = fd
}

// OnIO implements reactor.Client for the listening fd itself: accept, set
// nonblocking, fill AcceptParams, optionally start a TLS handshake, else
// call the user callback directly (spec §4.4 single-process accept flow).
func (l *SoloListener) OnIO(fd int, delivered reactor.Mask, removeHint *bool) {
	if !delivered.Has(reactor.Readable) {
		return
	}

	for {
		nfd, sa, err := unix.Accept(l.fd)
		if err != nil {
			return
		}

		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}

		peer, err := peerAddrFromSockaddr(sa)
		if err != nil {
			unix.Close(nfd)
			continue
		}

		params := AcceptParams{FD: nfd, PeerAddr: peer, ListenerType: l.ltype}

		if l.tls != nil {
			if err := l.tls.StartHandshake(nfd, peer, func(hfd int, session interface{}, ok bool) {
				if !ok {
					unix.Close(hfd)
					return
				}
				p := params
				p.TLSSession = session
				if l.onAccept != nil && !l.onAccept(p) {
					if c, ok := session.(interface{ Close() error }); ok {
						_ = c.Close()
					}
					unix.Close(hfd)
				}
			}); err != nil {
				unix.Close(nfd)
			}
			continue
		}

		if l.onAccept != nil && !l.onAccept(params) {
			unix.Close(nfd)
		}
	}
}

func peerAddrFromSockaddr(sa unix.Sockaddr) (libsck.Address, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return libsck.NewInet4(v.Addr[:], v.Port)
	case *unix.SockaddrInet6:
		return libsck.NewInet6(v.Addr[:], v.Port)
	case *unix.SockaddrUnix:
		return libsck.NewUnix(v.Name), nil
	default:
		return libsck.Address{}, pkgerr.New(pkgerr.MinPkgListener, "unsupported peer address family")
	}
}
