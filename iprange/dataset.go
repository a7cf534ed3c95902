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

// Package iprange is the read-only "IP belongs to [begin, end]" lookup
// collaborator: load a dataset from text, JSON, or a relational (CSV-like)
// file, then Find(ip) the payload string a matching range carries.
package iprange

import (
	"bytes"
	"net"
	"sort"
	"sync"

	"github.com/sabouaram/pwnet/pkgerr"
)

// key is every address normalized to its 128-bit representation:
// net.IP.To16() maps IPv4 into the ::ffff:0:0/96 prefix, so one sorted
// table serves both families instead of the pair of tables a by-family
// split would need; IPv4 and IPv6 ranges never collide because they
// occupy disjoint prefixes under that mapping.
type key [16]byte

func keyOf(ip net.IP) (key, bool) {
	v6 := ip.To16()
	if v6 == nil {
		return key{}, false
	}
	var k key
	copy(k[:], v6)
	return k, true
}

func (k key) compare(o key) int {
	return bytes.Compare(k[:], o[:])
}

type entry struct {
	begin key
	end   key
	value string
}

// Dataset is a sorted, read-mostly table of IP ranges. The zero value is
// an empty, usable Dataset. Safe for concurrent Find calls; Insert/Load
// calls must not race each other or a concurrent Find.
type Dataset struct {
	mu      sync.RWMutex
	entries []entry
}

// Insert adds one [begin, end] -> value range, parsing begin/end as IPv4 or
// IPv6 text addresses. begin and end are swapped if out of order, matching
// the tolerant construction the source dataset format allows.
func (d *Dataset) Insert(begin, end, value string) error {
	b := net.ParseIP(begin)
	if b == nil {
		return pkgerr.New(pkgerr.MinPkgIPRange, "invalid begin address: "+begin)
	}
	e := net.ParseIP(end)
	if e == nil {
		return pkgerr.New(pkgerr.MinPkgIPRange, "invalid end address: "+end)
	}
	return d.insertIP(b, e, value)
}

func (d *Dataset) insertIP(begin, end net.IP, value string) error {
	bk, ok := keyOf(begin)
	if !ok {
		return pkgerr.New(pkgerr.MinPkgIPRange, "unrepresentable begin address")
	}
	ek, ok := keyOf(end)
	if !ok {
		return pkgerr.New(pkgerr.MinPkgIPRange, "unrepresentable end address")
	}
	if bk.compare(ek) > 0 {
		bk, ek = ek, bk
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	idx := sort.Search(len(d.entries), func(i int) bool {
		return d.entries[i].begin.compare(bk) >= 0
	})
	d.entries = append(d.entries, entry{})
	copy(d.entries[idx+1:], d.entries[idx:])
	d.entries[idx] = entry{begin: bk, end: ek, value: value}
	return nil
}

// Find reports the payload of the range containing ip, if any.
func (d *Dataset) Find(ip string) (string, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", false
	}
	k, ok := keyOf(parsed)
	if !ok {
		return "", false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	// entries are sorted by begin; the only candidate whose begin <= k is
	// the last one with begin <= k, i.e. index (first begin > k) - 1.
	idx := sort.Search(len(d.entries), func(i int) bool {
		return d.entries[i].begin.compare(k) > 0
	})
	if idx == 0 {
		return "", false
	}
	cand := d.entries[idx-1]
	if cand.end.compare(k) < 0 {
		return "", false
	}
	return cand.value, true
}

// Len reports how many ranges are loaded.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Clear empties the dataset in place.
func (d *Dataset) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
}
