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

package channel_test

import (
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/sabouaram/pwnet/channel"
	"github.com/sabouaram/pwnet/packet"
	"github.com/sabouaram/pwnet/pkgerr"
	"github.com/sabouaram/pwnet/reactor"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func extractFD(t *testing.T, c net.Conn) int {
	t.Helper()
	sc, ok := c.(syscallConner)
	require.True(t, ok)
	raw, err := sc.SyscallConn()
	require.NoError(t, err)
	var fd int
	require.NoError(t, raw.Control(func(p uintptr) { fd = int(p) }))
	return fd
}

type syscallConner interface {
	SyscallConn() (syscall.RawConn, error)
}

func loopbackPair(t *testing.T) (serverFD int, client net.Conn, cleanup func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	server := <-accepted
	fd := extractFD(t, server)
	require.NoError(t, unix.SetNonblock(fd, true))

	return fd, client, func() {
		ln.Close()
		client.Close()
	}
}

func TestChannelReadsCompletePacket(t *testing.T) {
	fd, client, cleanup := loopbackPair(t)
	defer cleanup()

	r, err := reactor.New("select")
	require.NoError(t, err)
	defer r.Close()

	received := make(chan packet.MsgPacket, 1)
	var parser packet.Parser
	ch := channel.New[packet.MsgPacket](r, fd, &parser, channel.Hooks[packet.MsgPacket]{
		OnReadPacket: func(pkt packet.MsgPacket) { received <- pkt },
	})
	require.NoError(t, ch.Register(0))

	pk := packet.MsgPacket{Code: "ECHO", TRID: 5, Body: []byte("ping")}
	wire, err := pk.Serialize()
	require.NoError(t, err)
	_, err = client.Write(wire)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := r.Dispatch(200)
		require.NoError(t, err)
		select {
		case got := <-received:
			require.Equal(t, "ECHO", got.Code)
			require.Equal(t, []byte("ping"), got.Body)
			return
		default:
		}
	}
	t.Fatal("packet never delivered")
}

func TestChannelWriteDrains(t *testing.T) {
	fd, client, cleanup := loopbackPair(t)
	defer cleanup()

	r, err := reactor.New("select")
	require.NoError(t, err)
	defer r.Close()

	var parser packet.Parser
	drained := make(chan struct{}, 1)
	ch := channel.New[packet.MsgPacket](r, fd, &parser, channel.Hooks[packet.MsgPacket]{
		OnWriteDrained: func() { drained <- struct{}{} },
	})
	require.NoError(t, ch.Register(0))

	pk := &packet.MsgPacket{Code: "PONG", TRID: 1, Body: []byte("data")}
	require.NoError(t, ch.Write(pk))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := r.Dispatch(200)
		require.NoError(t, err)
		select {
		case <-drained:
			buf := make([]byte, 64)
			client.SetReadDeadline(time.Now().Add(time.Second))
			n, err := client.Read(buf)
			require.NoError(t, err)
			require.Contains(t, string(buf[:n]), "PONG")
			return
		default:
		}
	}
	t.Fatal("write never drained")
}

func TestCheckIdleFiresPingTimeout(t *testing.T) {
	fd, _, cleanup := loopbackPair(t)
	defer cleanup()

	r, err := reactor.New("select")
	require.NoError(t, err)
	defer r.Close()

	fired := false
	var parser packet.Parser
	ch := channel.New[packet.MsgPacket](r, fd, &parser, channel.Hooks[packet.MsgPacket]{
		OnPingTimeout: func() { fired = true },
	})

	ch.CheckIdle(ch.LastRead().Add(time.Hour), time.Minute)
	require.True(t, fired)
	require.Equal(t, channel.StateExpired, ch.State())
}

func TestWriteFailsPastBufferCap(t *testing.T) {
	fd, client, cleanup := loopbackPair(t)
	defer cleanup()
	defer client.Close()

	r, err := reactor.New("select")
	require.NoError(t, err)
	defer r.Close()

	var lastKind pkgerr.CodeError
	var parser packet.Parser
	ch := channel.New[packet.MsgPacket](r, fd, &parser, channel.Hooks[packet.MsgPacket]{
		OnError: func(kind pkgerr.CodeError, extra error) { lastKind = kind },
	})
	require.NoError(t, ch.Register(0))

	body := make([]byte, 1<<20)
	var writeErr error
	for i := 0; i < 32; i++ {
		pk := &packet.MsgPacket{Code: "BIG", TRID: uint16(i), Body: body}
		if writeErr = ch.Write(pk); writeErr != nil {
			break
		}
	}
	require.Error(t, writeErr)
	require.Equal(t, pkgerr.KindWriteFailed, lastKind)
}
