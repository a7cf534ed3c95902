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

// Package sysinfo gathers the process/host facts an admin listener reports
// back as a packet: uptime, CPU count, load average, resident memory, and
// hostname. Every field that depends on a Linux-only /proc file degrades to
// ok=false rather than erroring, since none of it is load-bearing for the
// rest of the framework.
package sysinfo

import (
	"os"
	"runtime"
	"time"
)

// LoadAverage holds the 1/5/15-minute averages read from /proc/loadavg.
type LoadAverage struct {
	Load1, Load5, Load15 float64
}

// Memory holds the resident set size of the current process, in bytes, read
// from /proc/self/status's VmRSS field.
type Memory struct {
	ResidentBytes uint64
}

// Snapshot is the full point-in-time system picture a Snapshot() call
// returns.
type Snapshot struct {
	Uptime          time.Duration
	NumCPU          int
	Hostname        string
	LoadAverage     LoadAverage
	LoadAvailable   bool
	Memory          Memory
	MemoryAvailable bool
}

// Gatherer collects a Snapshot relative to the time it was created, tracking
// process uptime from that point.
type Gatherer struct {
	startedAt time.Time
	nowFn     func() time.Time
}

// New creates a Gatherer whose uptime is measured from the call site.
func New() *Gatherer {
	return NewWithClock(time.Now)
}

// NewWithClock is New with an injectable clock, for deterministic tests.
func NewWithClock(nowFn func() time.Time) *Gatherer {
	return &Gatherer{startedAt: nowFn(), nowFn: nowFn}
}

// Snapshot gathers the current system picture.
func (g *Gatherer) Snapshot() Snapshot {
	s := Snapshot{
		Uptime: g.nowFn().Sub(g.startedAt),
		NumCPU: runtime.NumCPU(),
	}

	if host, err := os.Hostname(); err == nil {
		s.Hostname = host
	}

	if la, ok := readLoadAverage(); ok {
		s.LoadAverage = la
		s.LoadAvailable = true
	}

	if mem, ok := readMemory(); ok {
		s.Memory = mem
		s.MemoryAvailable = true
	}

	return s
}
