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

// Package socket wraps the raw, non-blocking socket file-descriptor
// operations the reactor and channel layers are built on: option tuning,
// synchronous/asynchronous connect, and SCM_RIGHTS file-descriptor passing
// between parent and child processes.
package socket

import (
	"strings"
	"time"

	libptc "github.com/sabouaram/pwnet/network/protocol"
	"github.com/sabouaram/pwnet/pkgerr"
	libsck "github.com/sabouaram/pwnet/sockaddr"
	"golang.org/x/sys/unix"
)

// DefaultBufferSize mirrors the buffer size used elsewhere for newly
// created endpoints before any SO_SNDBUF/SO_RCVBUF override is applied.
const DefaultBufferSize = 32 * 1024

// ErrorFilter drops errors that are an expected side effect of a socket
// being closed from under an in-flight syscall, so shutdown paths do not
// have to special-case them at every call site.
func ErrorFilter(err error) error {
	if err == nil {
		return nil
	}
	if err == unix.EBADF || err == unix.ECONNRESET {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "use of closed network connection") || strings.Contains(msg, "file already closed") {
		return nil
	}
	return err
}

// isAgain reports whether err is a transient condition the caller should
// retry rather than treat as fatal: EAGAIN/EWOULDBLOCK, EINTR, EINPROGRESS.
func isAgain(err error) bool {
	switch err {
	case unix.EAGAIN, unix.EINTR, unix.EINPROGRESS, unix.EALREADY:
		return true
	default:
		return false
	}
}

// SetNonblock toggles O_NONBLOCK on fd.
func SetNonblock(fd int, nonblock bool) error {
	if err := unix.SetNonblock(fd, nonblock); err != nil {
		return pkgerr.Wrap(pkgerr.MinPkgSocket, "set nonblock", err)
	}
	return nil
}

// Options bundles the socket-level tunables C4 exposes, each applied only
// when non-zero / explicitly requested so callers can rely on kernel
// defaults for anything they don't care about. Apply does not use
// KeepAlivePeriod; KeepAlive only sets SO_KEEPALIVE.
type Options struct {
	NoDelay        bool
	KeepAlive      bool
	KeepAlivePeriod time.Duration
	ReuseAddr      bool
	SendBuffer     int
	RecvBuffer     int
}

// Apply sets the requested socket options on fd. proto determines which
// options are meaningful (TCP_NODELAY only applies to stream sockets).
func Apply(fd int, proto libptc.NetworkProtocol, opt Options) error {
	if opt.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return pkgerr.Wrap(pkgerr.MinPkgSocket, "set reuseaddr", err)
		}
	}
	if opt.SendBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opt.SendBuffer); err != nil {
			return pkgerr.Wrap(pkgerr.MinPkgSocket, "set sndbuf", err)
		}
	}
	if opt.RecvBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opt.RecvBuffer); err != nil {
			return pkgerr.Wrap(pkgerr.MinPkgSocket, "set rcvbuf", err)
		}
	}
	if opt.KeepAlive {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
			return pkgerr.Wrap(pkgerr.MinPkgSocket, "set keepalive", err)
		}
	}
	if proto.IsStream() && opt.NoDelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return pkgerr.Wrap(pkgerr.MinPkgSocket, "set nodelay", err)
		}
	}
	return nil
}

// socketFamily maps a resolved Address to the unix.AF_* domain constant.
func socketFamily(a libsck.Address) (int, error) {
	switch a.Family() {
	case libsck.FamilyInet4:
		return unix.AF_INET, nil
	case libsck.FamilyInet6:
		return unix.AF_INET6, nil
	case libsck.FamilyUnix:
		return unix.AF_UNIX, nil
	default:
		return 0, pkgerr.New(pkgerr.MinPkgSocket, "unresolved address family")
	}
}

func socketType(proto libptc.NetworkProtocol) int {
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
		return nil, pkgerr.New(pkgerr.MinPkgSocket, "unresolved address family")
	}
}

// ConnectSync opens fd, non-blocking by construction, and blocks the
// calling goroutine (via repeated EINPROGRESS polling, not via the
// reactor) until the connection completes or timeout elapses.
func ConnectSync(proto libptc.NetworkProtocol, addr libsck.Address, timeout time.Duration) (int, error) {
	fd, inProgress, err := ConnectAsync(proto, addr)
	if err != nil {
		return -1, err
	}
	if !inProgress {
		return fd, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, errno := IsConnected(fd)
		if errno != nil {
			unix.Close(fd)
			return -1, pkgerr.Wrap(pkgerr.MinPkgSocket, "connect failed", errno)
		}
		if ok {
			return fd, nil
		}
		if time.Now().After(deadline) {
			unix.Close(fd)
			return -1, pkgerr.New(pkgerr.MinPkgSocket, "connect_sync timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

// ConnectAsync creates a non-blocking socket and issues connect(2). It
// returns inProgress=true when the kernel answered EINPROGRESS, meaning
// the caller should arm the fd for writability and check IsConnected
// once the reactor reports it ready.
func ConnectAsync(proto libptc.NetworkProtocol, addr libsck.Address) (fd int, inProgress bool, err error) {
	family, err := socketFamily(addr)
	if err != nil {
		return -1, false, err
	}

	fd, err = unix.Socket(family, socketType(proto), 0)
	if err != nil {
		return -1, false, pkgerr.Wrap(pkgerr.MinPkgSocket, "socket", err)
	}

	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, false, pkgerr.Wrap(pkgerr.MinPkgSocket, "set nonblock", err)
	}

	sa, err := sockaddrOf(addr)
	if err != nil {
		unix.Close(fd)
		return -1, false, err
	}

	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, false, nil
	}
	if isAgain(err) {
		return fd, true, nil
	}

	unix.Close(fd)
	return -1, false, pkgerr.Wrap(pkgerr.MinPkgSocket, "connect", err)
}

// IsConnected polls SO_ERROR on fd to learn whether a pending non-blocking
// connect finished successfully, is still pending, or failed with errno.
func IsConnected(fd int) (connected bool, errno error) {
	val, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return false, err
	}
	if val == 0 {
		return true, nil
	}
	e := unix.Errno(val)
	if isAgain(e) {
		return false, nil
	}
	return false, e
}

// SendFD transmits targetFD as ancillary data (SCM_RIGHTS) over pipeFD,
// a UNIX domain socket, along with payload as the accompanying message
// body. Used by the listener's parent distributor to hand an accepted
// connection to a worker process.
func SendFD(pipeFD int, targetFD int, payload []byte) (int, error) {
	rights := unix.UnixRights(targetFD)
	if err := unix.Sendmsg(pipeFD, payload, rights, nil, 0); err != nil {
		if isAgain(err) {
			return 0, pkgerr.Wrap(pkgerr.MinPkgSocket, "sendmsg again", err)
		}
		return 0, pkgerr.Wrap(pkgerr.MinPkgSocket, "sendmsg", err)
	}
	return len(payload), nil
}

// ReceiveFD reads one message plus its ancillary SCM_RIGHTS data from
// pipeFD, returning the passed file descriptor and the accompanying
// payload bytes actually received.
func ReceiveFD(pipeFD int, payloadBuf []byte) (targetFD int, n int, err error) {
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, rerr := unix.Recvmsg(pipeFD, payloadBuf, oob, 0)
	if rerr != nil {
		if isAgain(rerr) {
			return -1, 0, pkgerr.Wrap(pkgerr.MinPkgSocket, "recvmsg again", rerr)
		}
		return -1, 0, pkgerr.Wrap(pkgerr.MinPkgSocket, "recvmsg", rerr)
	}

	msgs, perr := unix.ParseSocketControlMessage(oob[:oobn])
	if perr != nil || len(msgs) != 1 {
		return -1, n, pkgerr.New(pkgerr.MinPkgSocket, "parse control message failed")
	}

	fds, perr := unix.ParseUnixRights(&msgs[0])
	if perr != nil || len(fds) != 1 {
		return -1, n, pkgerr.New(pkgerr.MinPkgSocket, "parse unix rights failed")
	}

	return fds[0], n, nil
}

// ControlPair creates a connected pair of UNIX domain sockets suitable for
// passing file descriptors between a parent and a freshly forked child.
func ControlPair() (parentFD int, childFD int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, -1, pkgerr.Wrap(pkgerr.MinPkgSocket, "socketpair", err)
	}
	return fds[0], fds[1], nil
}
