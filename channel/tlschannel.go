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

package channel

import (
	"crypto/tls"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sabouaram/pwnet/iobuf"
	"github.com/sabouaram/pwnet/packet"
	"github.com/sabouaram/pwnet/pkgerr"
)

// TLSChannel is the TLS-terminated counterpart to Channel: a *tls.Conn owns
// its own record-layer framing over the raw fd, so it cannot be registered
// with the reactor the way a plain Channel's fd is. Instead a dedicated
// goroutine blocks on tlsConn.Read and feeds parsed packets and errors
// through a result queue that Pump drains on the caller's goroutine - the
// same bounded-background-work shape Acceptor.Pump and Instance's
// JobManager use, keeping every caller-visible callback on the main thread
// even though the blocking I/O itself is not.
type TLSChannel[T any] struct {
	conn     *tls.Conn
	parser   Parser[T]
	hooks    Hooks[T]
	readBuf  *iobuf.Region
	state    State
	lastRead time.Time

	writeMu     sync.Mutex
	pendingSize int64 // atomic: bytes handed to conn.Write but not yet returned

	results   chan func()
	closeOnce sync.Once
	closed    chan struct{}
}

// NewTLS wraps an already-completed *tls.Conn (the session value
// certificates.Acceptor's onDone callback delivers) as a TLSChannel, and
// starts its read loop.
func NewTLS[T any](conn *tls.Conn, parser Parser[T], hooks Hooks[T]) *TLSChannel[T] {
	c := &TLSChannel[T]{
		conn:     conn,
		parser:   parser,
		hooks:    hooks,
		readBuf:  iobuf.New(iobuf.DefaultSize),
		state:    StateActive,
		lastRead: time.Now(),
		results:  make(chan func(), 64),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// State reports the current lifecycle state.
func (c *TLSChannel[T]) State() State { return c.state }

// LastRead reports the timestamp of the last successfully parsed packet.
func (c *TLSChannel[T]) LastRead() time.Time { return c.lastRead }

// Write serializes pkt and writes it to the TLS connection. Unlike the
// plain Channel, the write is not queued behind a reactor writable event:
// crypto/tls has no non-blocking write path, so Write blocks the calling
// goroutine for the duration of one TLS record write. Callers driving many
// TLSChannels from the main loop should call Write from a JobManager task
// rather than directly from a tick if blocking is a concern.
func (c *TLSChannel[T]) Write(pkt packet.Packet) error {
	data, err := pkt.Serialize()
	if err != nil {
		c.fail(pkgerr.KindWriteFailed, err)
		return err
	}

	if atomic.LoadInt64(&c.pendingSize)+int64(len(data)) > MaxWriteBufferCap {
		err := pkgerr.New(pkgerr.MinPkgChannel, "write buffer exceeds cap")
		c.fail(pkgerr.KindWriteFailed, err)
		return err
	}

	atomic.AddInt64(&c.pendingSize, int64(len(data)))
	c.writeMu.Lock()
	_, err = c.conn.Write(data)
	c.writeMu.Unlock()
	atomic.AddInt64(&c.pendingSize, -int64(len(data)))

	if err != nil {
		c.fail(pkgerr.KindWriteFailed, err)
		return err
	}
	return nil
}

// Close releases the TLS connection and marks the TLSChannel closed. Safe
// to call more than once.
func (c *TLSChannel[T]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state = StateClosed
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// CheckIdle fires OnPingTimeout and marks the TLSChannel expired when now -
// LastRead() exceeds idleTimeout.
func (c *TLSChannel[T]) CheckIdle(now time.Time, idleTimeout time.Duration) {
	if c.state != StateActive {
		return
	}
	if now.Sub(c.lastRead) > idleTimeout {
		c.state = StateExpired
		if c.hooks.OnPingTimeout != nil {
			c.hooks.OnPingTimeout()
		}
	}
}

// Pump delivers every completed read/error event's callback on the calling
// (main-loop) goroutine; call it once per tick, the same way
// Instance.JobManager.Drain and Acceptor.Pump are called.
func (c *TLSChannel[T]) Pump() {
	for {
		select {
		case cb := <-c.results:
			cb()
		default:
			return
		}
	}
}

func (c *TLSChannel[T]) readLoop() {
	for {
		dst := c.readBuf.GrabWritable(iobuf.DefaultSize)
		n, err := c.conn.Read(dst)
		if n > 0 {
			c.readBuf.CommitWritten(n)
			c.enqueueReadData(n)
			c.parseReady()
		}
		if err != nil {
			c.enqueueReadError(err)
			return
		}
		select {
		case <-c.closed:
			return
		default:
		}
	}
}

func (c *TLSChannel[T]) enqueueReadData(n int) {
	if c.hooks.OnReadData == nil {
		return
	}
	c.results <- func() { c.hooks.OnReadData(n) }
}

func (c *TLSChannel[T]) parseReady() {
	for {
		result, pkt, err := c.parser.Parse(c.readBuf)
		switch result {
		case packet.ParseOK:
			p := pkt
			c.results <- func() {
				c.lastRead = time.Now()
				if c.hooks.OnReadPacket != nil {
					c.hooks.OnReadPacket(p)
				}
			}
		case packet.ParseInvalid:
			c.enqueueFail(pkgerr.KindInvalidPacket, err)
			return
		case packet.ParseNeedMore:
			return
		}
	}
}

func (c *TLSChannel[T]) enqueueReadError(err error) {
	kind := pkgerr.KindReadFailed
	if errors.Is(err, io.EOF) {
		kind = pkgerr.KindReadClosed
	}
	c.enqueueFail(kind, err)
}

func (c *TLSChannel[T]) enqueueFail(kind pkgerr.CodeError, extra error) {
	c.results <- func() { c.fail(kind, extra) }
}

func (c *TLSChannel[T]) fail(kind pkgerr.CodeError, extra error) {
	c.state = StateExpired
	if c.hooks.OnError != nil {
		c.hooks.OnError(kind, extra)
	}
}
