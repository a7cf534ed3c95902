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

// Package timer implements the periodic/one-shot subscription service
// fired once per main-loop tick (spec §4.5 step 3, C10). It holds no
// goroutines or OS timers of its own: Service.Tick is driven exclusively
// by the Instance main loop, keeping the whole framework single-threaded
// per process (spec §5).
package timer

import (
	"sync"
	"time"
)

// Subscription is one registered timer.
type Subscription struct {
	id       uint64
	interval time.Duration // zero for a one-shot
	next     time.Time
	fn       func()
	canceled bool
}

// ID identifies a Subscription for later cancellation.
func (s *Subscription) ID() uint64 { return s.id }

// Service holds all live subscriptions and fires the due ones on Tick.
// Not safe for concurrent use from more than the owning main-loop thread,
// except Cancel, which is safe to call from any goroutine.
type Service struct {
	mu    sync.Mutex
	subs  map[uint64]*Subscription
	nextID uint64
	now   func() time.Time
}

// New creates an empty Service. nowFn defaults to time.Now when nil,
// overridable so tests can control the clock.
func New(nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{subs: make(map[uint64]*Subscription), now: nowFn}
}

// Every registers a periodic subscription firing fn roughly every interval.
func (s *Service) Every(interval time.Duration, fn func()) uint64 {
	return s.add(interval, fn)
}

// After registers a one-shot subscription firing fn once after delay.
func (s *Service) After(delay time.Duration, fn func()) uint64 {
	return s.add(0, fn, delay)
}

func (s *Service) add(interval time.Duration, fn func(), firstDelay ...time.Duration) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID

	delay := interval
	if len(firstDelay) > 0 {
		delay = firstDelay[0]
	}

	s.subs[id] = &Subscription{
		id:       id,
		interval: interval,
		next:     s.now().Add(delay),
		fn:       fn,
	}
	return id
}

// Cancel removes a subscription; safe to call after it has already fired
// or been canceled (a no-op in both cases).
func (s *Service) Cancel(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		sub.canceled = true
		delete(s.subs, id)
	}
}

// Tick fires every due subscription exactly once, then reschedules
// periodic ones for their next interval (drift-free: anchored to the
// previous due time, not to when Tick happened to run).
func (s *Service) Tick() {
	now := s.now()

	s.mu.Lock()
	due := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if !sub.canceled && !now.Before(sub.next) {
			due = append(due, sub)
		}
	}
	for _, sub := range due {
		if sub.interval > 0 {
			sub.next = sub.next.Add(sub.interval)
		} else {
			delete(s.subs, sub.id)
		}
	}
	s.mu.Unlock()

	for _, sub := range due {
		if !sub.canceled {
			sub.fn()
		}
	}
}

// Len reports how many subscriptions are currently live.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
