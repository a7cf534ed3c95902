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

package socket_test

import (
	"fmt"
	"net"
	"testing"
	"time"

	libptc "github.com/sabouaram/pwnet/network/protocol"
	libsck "github.com/sabouaram/pwnet/sockaddr"
	"github.com/sabouaram/pwnet/socket"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestErrorFilterDropsClosedConnection(t *testing.T) {
	require.NoError(t, socket.ErrorFilter(fmt.Errorf("use of closed network connection")))
	require.Error(t, socket.ErrorFilter(fmt.Errorf("connection timeout")))
	require.NoError(t, socket.ErrorFilter(nil))
}

func TestConnectSyncLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan struct{}, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- struct{}{}
			c.Close()
		}
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	addr, err := libsck.NewInet4(tcpAddr.IP.To4(), tcpAddr.Port)
	require.NoError(t, err)

	fd, err := socket.ConnectSync(libptc.NetworkTCP, addr, time.Second)
	require.NoError(t, err)
	defer unix.Close(fd)

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("server never observed accept")
	}
}

func TestControlPairSendsFD(t *testing.T) {
	parent, child, err := socket.ControlPair()
	require.NoError(t, err)
	defer unix.Close(parent)
	defer unix.Close(child)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	tcpLn, ok := ln.(*net.TCPListener)
	require.True(t, ok)
	raw, err := tcpLn.SyscallConn()
	require.NoError(t, err)
	var listenerFD int
	require.NoError(t, raw.Control(func(p uintptr) { listenerFD = int(p) }))

	dup, err := unix.Dup(listenerFD)
	require.NoError(t, err)
	defer unix.Close(dup)

	_, err = socket.SendFD(parent, dup, []byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	gotFD, n, err := socket.ReceiveFD(child, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
	require.Greater(t, gotFD, 0)
	unix.Close(gotFD)
}

func TestApplyRejectsNothingForZeroOptions(t *testing.T) {
	parent, child, err := socket.ControlPair()
	require.NoError(t, err)
	defer unix.Close(parent)
	defer unix.Close(child)

	require.NoError(t, socket.Apply(parent, libptc.NetworkUnix, socket.Options{}))
}
