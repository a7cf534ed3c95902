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

package listener_test

import (
	"net"
	"testing"
	"time"

	libptc "github.com/sabouaram/pwnet/network/protocol"
	"github.com/sabouaram/pwnet/listener"
	"github.com/sabouaram/pwnet/reactor"
	"github.com/sabouaram/pwnet/socket"
	libsck "github.com/sabouaram/pwnet/sockaddr"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSoloListenerAcceptsAndCallsBack(t *testing.T) {
	r, err := reactor.New("select")
	require.NoError(t, err)
	defer r.Close()

	addr, err := libsck.NewInet4(net.ParseIP("127.0.0.1").To4(), 0)
	require.NoError(t, err)

	accepted := make(chan listener.AcceptParams, 1)
	solo := listener.NewSolo(-1, listener.TypeService, nil, func(p listener.AcceptParams) bool {
		accepted <- p
		return true
	})

	fd, err := listener.Open(r, libptc.NetworkTCP, addr, solo)
	require.NoError(t, err)
	defer unix.Close(fd)
	solo.Bind(fd)

	boundAddr, err := unix.Getsockname(fd)
	require.NoError(t, err)
	inet4, ok := boundAddr.(*unix.SockaddrInet4)
	require.True(t, ok)

	dialAddr, err := libsck.NewInet4(net.IPv4(inet4.Addr[0], inet4.Addr[1], inet4.Addr[2], inet4.Addr[3]), inet4.Port)
	require.NoError(t, err)

	go func() {
		_, _ = socket.ConnectSync(libptc.NetworkTCP, dialAddr, time.Second)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := r.Dispatch(200)
		require.NoError(t, err)
		select {
		case p := <-accepted:
			require.Equal(t, listener.TypeService, p.ListenerType)
			unix.Close(p.FD)
			return
		default:
		}
	}
	t.Fatal("accept never observed")
}

func TestControlPairFDHandoff(t *testing.T) {
	parentFD, childFD, err := socket.ControlPair()
	require.NoError(t, err)
	defer unix.Close(parentFD)
	defer unix.Close(childFD)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	tcpLn := ln.(*net.TCPListener)
	raw, err := tcpLn.SyscallConn()
	require.NoError(t, err)
	var listenerFD int
	require.NoError(t, raw.Control(func(p uintptr) { listenerFD = int(p) }))
	dup, err := unix.Dup(listenerFD)
	require.NoError(t, err)

	r, err := reactor.New("select")
	require.NoError(t, err)
	defer r.Close()

	received := make(chan listener.AcceptParams, 1)
	child := listener.NewChild(childFD, nil, func(p listener.AcceptParams) bool {
		received <- p
		return true
	}, nil, nil)
	require.NoError(t, r.Add(childFD, child, reactor.Readable))

	_, err = socket.SendFD(parentFD, dup, []byte{byte(listener.TypeService)})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := r.Dispatch(200)
		require.NoError(t, err)
		select {
		case p := <-received:
			require.Equal(t, listener.TypeService, p.ListenerType)
			unix.Close(p.FD)
			return
		default:
		}
	}
	t.Fatal("fd handoff never observed")
}
