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

// Package listener implements the accepting endpoint fabric (spec §4.4,
// C5): single-process accept, parent-process round-robin FD distribution
// to worker children over a UNIX control pair, and child-process FD
// intake. Every dispatch on a listener-type tag is an exhaustive switch
// that returns from its matched case; nothing here falls through (spec §9
// open question on the source's buggy ChildListener switch).
package listener

import (
	libptc "github.com/sabouaram/pwnet/network/protocol"
	"github.com/sabouaram/pwnet/pkgerr"
	"github.com/sabouaram/pwnet/reactor"
	libsck "github.com/sabouaram/pwnet/sockaddr"
	"golang.org/x/sys/unix"
)

// Type tags a listener so a child receiver, given only a passed fd, knows
// which accept pipeline (and TLS context) to apply.
type Type uint8

const (
	TypeService Type = iota
	TypeAdmin
)

// Backlog is the fixed listen(2) backlog used by Open, matching the
// spec's 1024 default.
const Backlog = 1024

// TLSStarter is the minimal capability a TLS handshake helper exposes to
// Listener; kept as a narrow interface here so listener does not import
// the certificates package and create a cycle.
type TLSStarter interface {
	StartHandshake(fd int, peer libsck.Address, onDone func(fd int, session interface{}, ok bool)) error
}

// AcceptParams is filled in for every accepted connection before the user
// callback (or TLS handshake helper) sees it.
type AcceptParams struct {
	FD           int
	PeerAddr     libsck.Address
	ListenerType Type
	TLSSession   interface{}
}

// AcceptFunc is the user hook invoked once accept_params is ready. A false
// return tells the Listener to close the accepted fd and release any TLS
// session immediately.
type AcceptFunc func(params AcceptParams) bool

// Open creates, binds, and arms a listening socket: SO_REUSEADDR, bind,
// listen(Backlog), non-blocking, registered READABLE on r.
func Open(r reactor.Backend, proto libptc.NetworkProtocol, addr libsck.Address, client reactor.Client) (int, error) {
	family, err := familyOf(addr)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(family, socketTypeOf(proto), 0)
	if err != nil {
		return -1, pkgerr.Wrap(pkgerr.MinPkgListener, "socket", err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, pkgerr.Wrap(pkgerr.MinPkgListener, "set reuseaddr", err)
	}

	sa, err := sockaddrOf(addr)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err = unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, pkgerr.Wrap(pkgerr.MinPkgListener, "bind", err)
	}

	if err = unix.Listen(fd, Backlog); err != nil {
		unix.Close(fd)
		return -1, pkgerr.Wrap(pkgerr.MinPkgListener, "listen", err)
	}

	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, pkgerr.Wrap(pkgerr.MinPkgListener, "set nonblock", err)
	}

	if err = r.Add(fd, client, reactor.Readable); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

func familyOf(a libsck.Address) (int, error) {
	switch a.Family() {
	case libsck.FamilyInet4:
		return unix.AF_INET, nil
	case libsck.FamilyInet6:
		return unix.AF_INET6, nil
	case libsck.FamilyUnix:
		return unix.AF_UNIX, nil
	default:
		return 0, pkgerr.New(pkgerr.MinPkgListener, "unresolved address family")
	}
}

func socketTypeOf(proto libptc.NetworkProtocol) int {
	if proto.IsStream() || proto == libptc.NetworkUnix {
		return unix.SOCK_STREAM
	}
	return unix.SOCK_DGRAM
}

func sockaddrOf(a libsck.Address) (unix.Sockaddr, error) {
	switch a.Family() {
	case libsck.FamilyInet4:
		ip, port, err := a.Inet4()
		if err != nil {
			return nil, err
		}
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip.To4())
		return sa, nil
	case libsck.FamilyInet6:
		ip, port, err := a.Inet6()
		if err != nil {
			return nil, err
		}
		sa := &unix.SockaddrInet6{Port: port}
		copy(sa.Addr[:], ip.To16())
		return sa, nil
	case libsck.FamilyUnix:
		path, err := a.Path()
		if err != nil {
			return nil, err
		}
		return &unix.SockaddrUnix{Name: path}, nil
	default:
		return nil, pkgerr.New(pkgerr.MinPkgListener, "unresolved address family")
	}
}

func peerAddrOf(fd int) (libsck.Address, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return libsck.Address{}, pkgerr.Wrap(pkgerr.MinPkgListener, "getpeername", err)
	}
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
