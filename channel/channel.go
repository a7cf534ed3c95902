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

// Package channel implements the buffered socket endpoint bound to a packet
// parser (spec §3/§4.3, C7): fill a read buffer on readability, hand
// complete packets to the owner, queue writes into a write buffer and drain
// them to the kernel as the fd reports writable.
package channel

import (
	"time"

	"github.com/sabouaram/pwnet/iobuf"
	"github.com/sabouaram/pwnet/packet"
	"github.com/sabouaram/pwnet/pkgerr"
	"github.com/sabouaram/pwnet/reactor"
	"golang.org/x/sys/unix"
)

// HighWaterMark bounds how many bytes are pulled into the read buffer
// before parsing is attempted, so one starving peer cannot balloon memory.
const HighWaterMark = 1 << 20

// MaxWriteBufferCap bounds write-buffer growth (spec §9 "grow write
// buffer" open question, resolved as doubling capped at MAX_BODY_SIZE×4):
// once the write buffer would need to grow past this, Write fails with
// write_failed instead of growing unbounded.
const MaxWriteBufferCap = packet.MaxBodySize * 4

// Parser decodes complete values of T out of a shared read Region, parking
// (ParseNeedMore) across read events until a full frame has arrived.
type Parser[T any] interface {
	Parse(r *iobuf.Region) (packet.ParseResult, T, error)
}

// Hooks are the user callbacks a Channel drives. All are optional.
type Hooks[T any] struct {
	OnReadData    func(appended int)
	OnReadPacket  func(pkt T)
	OnWriteDrained func()
	OnError       func(kind pkgerr.CodeError, extra error)
	OnPingTimeout func()
}

// State is the lifecycle state of a Channel.
type State uint8

const (
	StateActive State = iota
	StateExpired
	StateClosed
)

// Channel is a non-blocking socket endpoint with a read buffer, a write
// buffer, and a Parser[T] that turns read bytes into complete packets.
// Not safe for concurrent use - it is driven exclusively by the reactor's
// dispatch goroutine.
type Channel[T any] struct {
	fd       int
	parser   Parser[T]
	hooks    Hooks[T]
	readBuf  *iobuf.Region
	writeBuf *iobuf.Region
	state    State
	lastRead time.Time
	writable bool
	rx       reactor.Backend
}

// New wraps fd (already connected/accepted and non-blocking) as a Channel
// driven by r, parsing frames with parser.
func New[T any](r reactor.Backend, fd int, parser Parser[T], hooks Hooks[T]) *Channel[T] {
	return &Channel[T]{
		fd:       fd,
		parser:   parser,
		hooks:    hooks,
		readBuf:  iobuf.New(iobuf.DefaultSize),
		writeBuf: iobuf.New(iobuf.DefaultSize),
		state:    StateActive,
		lastRead: time.Now(),
		rx:       r,
	}
}

// FD returns the underlying file descriptor.
func (c *Channel[T]) FD() int { return c.fd }

// State reports the current lifecycle state.
func (c *Channel[T]) State() State { return c.state }

// LastRead reports the timestamp of the last successfully parsed packet.
func (c *Channel[T]) LastRead() time.Time { return c.lastRead }

// Register arms the Channel for readability on the reactor.
func (c *Channel[T]) Register(mask reactor.Mask) error {
	return c.rx.Add(c.fd, c, mask|reactor.Readable)
}

// Write serializes pkt into the write buffer and arms writability; actual
// draining to the kernel happens as OnIO observes the fd become writable.
func (c *Channel[T]) Write(pkt packet.Packet) error {
	data, err := pkt.Serialize()
	if err != nil {
		c.fail(pkgerr.KindWriteFailed, err)
		return err
	}
	if c.writeBuf.Len()+len(data) > MaxWriteBufferCap {
		err := pkgerr.New(pkgerr.MinPkgChannel, "write buffer exceeds cap")
		c.fail(pkgerr.KindWriteFailed, err)
		return err
	}
	dst := c.writeBuf.GrabWritable(len(data))
	c.writeBuf.CommitWritten(copy(dst, data))
	if !c.writable {
		if err := c.rx.OrMask(c.fd, reactor.Writable); err != nil {
			return err
		}
		c.writable = true
	}
	return nil
}

// Close releases the fd and marks the Channel closed. Safe to call once.
func (c *Channel[T]) Close() error {
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	_ = c.rx.Remove(c.fd)
	return unix.Close(c.fd)
}

// CheckIdle fires OnPingTimeout and marks the Channel expired when now -
// LastRead() exceeds idleTimeout. Intended to be called from a periodic
// timer subscription (spec §4.3's ping/idle timer).
func (c *Channel[T]) CheckIdle(now time.Time, idleTimeout time.Duration) {
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

// OnIO implements reactor.Client: it is invoked by the reactor's dispatch
// loop with the combined readable/writable/error mask observed for fd.
func (c *Channel[T]) OnIO(fd int, delivered reactor.Mask, removeHint *bool) {
	if delivered.Has(reactor.Error) || delivered.Has(reactor.HangUp) || delivered.Has(reactor.Invalid) {
		c.fail(pkgerr.KindReadClosed, nil)
		*removeHint = true
		return
	}

	if delivered.Has(reactor.Readable) {
		if !c.doRead() {
			*removeHint = true
			return
		}
	}

	if delivered.Has(reactor.Writable) {
		if !c.doWrite() {
			*removeHint = true
			return
		}
	}
}

func (c *Channel[T]) doRead() bool {
	for c.readBuf.Len() < HighWaterMark {
		dst := c.readBuf.GrabWritable(iobuf.DefaultSize)
		n, err := unix.Read(c.fd, dst)
		if n > 0 {
			c.readBuf.CommitWritten(n)
			if c.hooks.OnReadData != nil {
				c.hooks.OnReadData(n)
			}
		}
		if n == 0 {
			c.fail(pkgerr.KindReadClosed, nil)
			return false
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				break
			}
			c.fail(pkgerr.KindReadFailed, err)
			return false
		}
		if n < len(dst) {
			break
		}
	}

	for {
		result, pkt, err := c.parser.Parse(c.readBuf)
		switch result {
		case packet.ParseOK:
			c.lastRead = time.Now()
			if c.hooks.OnReadPacket != nil {
				c.hooks.OnReadPacket(pkt)
			}
		case packet.ParseInvalid:
			c.fail(pkgerr.KindInvalidPacket, err)
			return false
		case packet.ParseNeedMore:
			return true
		}
	}
}

func (c *Channel[T]) doWrite() bool {
	for c.writeBuf.Len() > 0 {
		data := c.writeBuf.Grab()
		n, err := unix.Write(c.fd, data)
		if n > 0 {
			c.writeBuf.Commit(n)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				break
			}
			c.fail(pkgerr.KindWriteFailed, err)
			return false
		}
		if n < len(data) {
			break
		}
	}

	if c.writeBuf.Len() == 0 && c.writable {
		if err := c.rx.AndMask(c.fd, ^reactor.Writable); err != nil {
			c.fail(pkgerr.KindWriteFailed, err)
			return false
		}
		c.writable = false
		if c.hooks.OnWriteDrained != nil {
			c.hooks.OnWriteDrained()
		}
	}
	return true
}

func (c *Channel[T]) fail(kind pkgerr.CodeError, extra error) {
	c.state = StateExpired
	if c.hooks.OnError != nil {
		c.hooks.OnError(kind, extra)
	}
}
