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

package pool_test

import (
	"net"
	"testing"
	"time"

	libptc "github.com/sabouaram/pwnet/network/protocol"
	"github.com/sabouaram/pwnet/pool"
	libsck "github.com/sabouaram/pwnet/sockaddr"
	"github.com/stretchr/testify/require"
)

type reply struct {
	trid uint16
	body string
}

func tridOf(r reply) uint16 { return r.trid }

func TestAddPeerConnectsOnTick(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	addr, err := libsck.NewInet4(tcpAddr.IP.To4(), tcpAddr.Port)
	require.NoError(t, err)

	p := pool.New[reply](pool.Config{ConnectTimeout: time.Second}, tridOf, nil)
	p.AddPeer("peer-a", libptc.NetworkTCP, addr)

	state, ok := p.State("peer-a")
	require.True(t, ok)
	require.Equal(t, pool.StateBackOff, state)

	p.Tick(time.Now())

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("peer never connected")
	}

	state, ok = p.State("peer-a")
	require.True(t, ok)
	require.Equal(t, pool.StateConnected, state)
}

func TestFailedConnectBacksOff(t *testing.T) {
	addr, err := libsck.NewInet4(net.ParseIP("127.0.0.1").To4(), 1)
	require.NoError(t, err)

	p := pool.New[reply](pool.Config{ConnectTimeout: 50 * time.Millisecond, InitialBackoff: 10 * time.Millisecond}, tridOf, nil)
	p.AddPeer("peer-b", libptc.NetworkTCP, addr)
	p.Tick(time.Now())

	state, ok := p.State("peer-b")
	require.True(t, ok)
	require.Equal(t, pool.StateBackOff, state)
}

func TestDeliverRoutesToWaiterAndDropsUnknownTrid(t *testing.T) {
	var dropped string
	p := pool.New[reply](pool.Config{}, tridOf, func(msg string) { dropped = msg })

	done := make(chan reply, 1)
	go func() {
		r, err := p.Await(7, time.Second)
		require.NoError(t, err)
		done <- r
	}()

	time.Sleep(10 * time.Millisecond)
	p.Deliver(reply{trid: 7, body: "hello"})

	select {
	case r := <-done:
		require.Equal(t, "hello", r.body)
	case <-time.After(time.Second):
		t.Fatal("waiter never received response")
	}

	p.Deliver(reply{trid: 99, body: "orphan"})
	require.Equal(t, "response with unknown trid dropped", dropped)
}

func TestAwaitTimesOut(t *testing.T) {
	p := pool.New[reply](pool.Config{}, tridOf, nil)
	_, err := p.Await(1, 20*time.Millisecond)
	require.Error(t, err)
}
