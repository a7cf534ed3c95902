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

// Package iobuf implements the paired read/write byte regions a Channel owns
// (spec §3, C2): grab a borrowed span of the filled bytes, commit how many of
// them were consumed; grab a writable span of at least N bytes, commit how
// many were written. Not safe for concurrent use - exactly one Channel owns
// a Region.
package iobuf

// DefaultSize is the initial capacity of a freshly allocated Region.
const DefaultSize = 32 * 1024

// Region is one half (read or write) of a Channel's I/O buffer.
type Region struct {
	buf  []byte
	off  int // consumed-so-far cursor into buf[:end]
	end  int // produced-so-far cursor (bytes Committed as written/appended)
	cap  int
}

// New allocates a Region with the given initial capacity; 0 uses DefaultSize.
func New(initialCap int) *Region {
	if initialCap <= 0 {
		initialCap = DefaultSize
	}
	return &Region{buf: make([]byte, initialCap), cap: initialCap}
}

// Grab returns a borrowed view of the currently filled (produced, not yet
// consumed) bytes. The slice aliases the Region's internal storage and is
// only valid until the next GrabWritable/Commit call.
func (r *Region) Grab() []byte {
	return r.buf[r.off:r.end]
}

// Len reports how many unconsumed bytes are currently available via Grab.
func (r *Region) Len() int {
	return r.end - r.off
}

// Commit advances the read cursor by n bytes (n must be <= Len()). Once the
// consumed cursor catches the produced cursor, storage is reclaimed to the front.
func (r *Region) Commit(n int) {
	if n <= 0 {
		return
	}
	if n > r.Len() {
		n = r.Len()
	}
	r.off += n
	if r.off == r.end {
		r.off, r.end = 0, 0
	}
}

// GrabWritable returns a mutable view of at least n free bytes at the tail,
// growing capacity (by doubling) if needed. Bytes already committed to the
// read cursor are never moved within a single borrow.
func (r *Region) GrabWritable(n int) []byte {
	r.ensure(n)
	return r.buf[r.end:cap(r.buf)]
}

// CommitWritten advances the produced cursor by n bytes after the caller
// filled the span returned by GrabWritable.
func (r *Region) CommitWritten(n int) {
	if n <= 0 {
		return
	}
	r.end += n
}

// Reset clears the Region to its empty state without releasing storage.
func (r *Region) Reset() {
	r.off, r.end = 0, 0
}

// Cap reports the current backing capacity.
func (r *Region) Cap() int {
	return cap(r.buf)
}

func (r *Region) ensure(n int) {
	// compact: reclaim space already consumed from the front.
	if r.off > 0 && r.off == r.end {
		r.off, r.end = 0, 0
	} else if r.off > 0 && cap(r.buf)-r.end < n {
		copy(r.buf, r.buf[r.off:r.end])
		r.end -= r.off
		r.off = 0
	}

	if free := cap(r.buf) - r.end; free >= n {
		return
	}

	newCap := cap(r.buf)
	if newCap == 0 {
		newCap = DefaultSize
	}
	for newCap-r.end < n {
		newCap *= 2
	}
	grown := make([]byte, newCap)
	copy(grown, r.buf[:r.end])
	r.buf = grown
}
