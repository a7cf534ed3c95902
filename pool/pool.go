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

// Package pool implements the outbound multi-channel peer pool (spec
// §4.6, C8): one entry per peer identity, exponential-backoff reconnect,
// a trid-keyed pending-request table routing responses to waiters, and
// an optional hello handshake gating when an entry becomes usable.
package pool

import (
	"sync"
	"time"

	libptc "github.com/sabouaram/pwnet/network/protocol"
	"github.com/sabouaram/pwnet/pkgerr"
	libsck "github.com/sabouaram/pwnet/sockaddr"
	"github.com/sabouaram/pwnet/socket"
)

// PeerState is the lifecycle state of one pool entry.
type PeerState uint8

const (
	StateConnecting PeerState = iota
	StateConnected
	StateBackOff
)

// Config tunes reconnect backoff and the optional hello handshake.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ConnectTimeout time.Duration
	// Hello, if non-nil, is called right after connect; the entry is not
	// marked usable until it returns nil.
	Hello func(fd int) error
}

type entry struct {
	identity    string
	addr        libsck.Address
	proto       libptc.NetworkProtocol
	state       PeerState
	fd          int
	backoff     time.Duration
	nextAttempt time.Time
}

// Pool owns one entry per peer identity plus a trid-keyed waiter table.
// Connect/reconnect decisions are driven by calling Tick once per
// main-loop tick (spec §5: single-threaded, no background goroutines).
type Pool[T any] struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	waiters map[uint16]chan T
	tridOf  func(T) uint16
	onWarn  func(msg string)
}

// New creates a Pool. tridOf extracts the transaction id from a decoded
// response value T so Deliver can route it to the right waiter.
func New[T any](cfg Config, tridOf func(T) uint16, onWarn func(msg string)) *Pool[T] {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &Pool[T]{
		cfg:     cfg,
		entries: make(map[string]*entry),
		waiters: make(map[uint16]chan T),
		tridOf:  tridOf,
		onWarn:  onWarn,
	}
}

// AddPeer registers identity for connection management. It starts in
// StateBackOff with a zero backoff so the next Tick dials immediately.
func (p *Pool[T]) AddPeer(identity string, proto libptc.NetworkProtocol, addr libsck.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[identity]; exists {
		return
	}
	p.entries[identity] = &entry{identity: identity, addr: addr, proto: proto, state: StateBackOff}
}

// State reports the current state of identity, or StateBackOff with ok=false
// if identity is unknown.
func (p *Pool[T]) State(identity string) (PeerState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[identity]
	if !ok {
		return StateBackOff, false
	}
	return e.state, true
}

// Tick advances reconnect state: entries in StateBackOff whose
// nextAttempt has elapsed are (re)connected synchronously.
func (p *Pool[T]) Tick(now time.Time) {
	p.mu.Lock()
	due := make([]*entry, 0)
	for _, e := range p.entries {
		if e.state == StateBackOff && !now.Before(e.nextAttempt) {
			due = append(due, e)
		}
	}
	p.mu.Unlock()

	for _, e := range due {
		p.connect(e)
	}
}

func (p *Pool[T]) connect(e *entry) {
	e.state = StateConnecting
	fd, err := socket.ConnectSync(e.proto, e.addr, p.cfg.ConnectTimeout)
	if err != nil {
		p.backOff(e)
		return
	}

	if p.cfg.Hello != nil {
		if err := p.cfg.Hello(fd); err != nil {
			p.backOff(e)
			return
		}
	}

	p.mu.Lock()
	e.fd = fd
	e.state = StateConnected
	e.backoff = 0
	p.mu.Unlock()
}

func (p *Pool[T]) backOff(e *entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.backoff <= 0 {
		e.backoff = p.cfg.InitialBackoff
	} else {
		e.backoff *= 2
		if e.backoff > p.cfg.MaxBackoff {
			e.backoff = p.cfg.MaxBackoff
		}
	}
	e.state = StateBackOff
	e.nextAttempt = time.Now().Add(e.backoff)
}

// Await registers a waiter for trid and blocks until Deliver routes a
// matching response or the context-free timeout elapses.
func (p *Pool[T]) Await(trid uint16, timeout time.Duration) (T, error) {
	ch := make(chan T, 1)

	p.mu.Lock()
	p.waiters[trid] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.waiters, trid)
		p.mu.Unlock()
	}()

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		var zero T
		return zero, pkgerr.New(pkgerr.MinPkgPool, "pending request timed out")
	}
}

// Deliver routes resp to the waiter registered for its trid, if any;
// responses with no matching waiter are dropped with a warning (spec
// §4.6: "responses with unknown trid are dropped with a warning").
func (p *Pool[T]) Deliver(resp T) {
	trid := p.tridOf(resp)

	p.mu.Lock()
	ch, ok := p.waiters[trid]
	if ok {
		delete(p.waiters, trid)
	}
	p.mu.Unlock()

	if !ok {
		if p.onWarn != nil {
			p.onWarn("response with unknown trid dropped")
		}
		return
	}
	ch <- resp
}

// Disconnect marks identity as needing reconnect, starting the backoff
// clock fresh. Intended to be called from the owning Channel's OnError
// hook when its socket closes or fails.
func (p *Pool[T]) Disconnect(identity string) {
	p.mu.Lock()
	e, ok := p.entries[identity]
	p.mu.Unlock()
	if !ok {
		return
	}
	p.backOff(e)
}
