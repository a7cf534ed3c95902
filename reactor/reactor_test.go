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

package reactor_test

import (
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/sabouaram/pwnet/reactor"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type recordingClient struct {
	calls  int
	last   reactor.Mask
	remove bool
}

func (c *recordingClient) OnIO(fd int, delivered reactor.Mask, removeHint *bool) {
	c.calls++
	c.last = delivered
	*removeHint = c.remove
}

func extractFD(t *testing.T, c net.Conn) int {
	t.Helper()
	sc, ok := c.(syscallConner)
	require.True(t, ok)
	raw, err := sc.SyscallConn()
	require.NoError(t, err)
	var fd int
	err = raw.Control(func(p uintptr) { fd = int(p) })
	require.NoError(t, err)
	return fd
}

type syscallConner interface {
	SyscallConn() (syscall.RawConn, error)
}

func TestSelectBackendReadableDelivery(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	dialer, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer dialer.Close()

	server := <-accepted
	defer server.Close()

	_, err = dialer.Write([]byte("hello"))
	require.NoError(t, err)

	fd := extractFD(t, server)
	require.NoError(t, unix.SetNonblock(fd, true))

	r, err := reactor.New("select")
	require.NoError(t, err)
	defer r.Close()

	client := &recordingClient{}
	require.NoError(t, r.Add(fd, client, reactor.Readable))

	deadline := time.Now().Add(2 * time.Second)
	for client.calls == 0 && time.Now().Before(deadline) {
		_, err := r.Dispatch(200)
		require.NoError(t, err)
	}

	require.Equal(t, 1, client.calls)
	require.True(t, client.last.Has(reactor.Readable))
}

func TestRemoveStopsFurtherDelivery(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	dialer, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer dialer.Close()

	server := <-accepted
	defer server.Close()

	fd := extractFD(t, server)
	require.NoError(t, unix.SetNonblock(fd, true))

	r, err := reactor.New("select")
	require.NoError(t, err)
	defer r.Close()

	client := &recordingClient{}
	require.NoError(t, r.Add(fd, client, reactor.Readable))
	require.NoError(t, r.Remove(fd))

	_, err = dialer.Write([]byte("x"))
	require.NoError(t, err)

	_, err = r.Dispatch(100)
	require.NoError(t, err)

	require.Equal(t, 0, client.calls)
}

func TestMaskString(t *testing.T) {
	require.Equal(t, "R|W", (reactor.Readable | reactor.Writable).String())
	require.Equal(t, "0", reactor.Mask(0).String())
}
