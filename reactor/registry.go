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

package reactor

import (
	"fmt"
	"sync"

	"github.com/sabouaram/pwnet/pkgerr"
)

// registration is one (fd, interest_mask, client) record (spec §3: exactly
// one registration per fd).
type registration struct {
	fd     int
	mask   Mask
	client Client
}

// registry is the shared bookkeeping every backend embeds: the kernel-level
// epoll/kqueue/select call only ever needs the fd to re-derive the Client and
// mask from here in O(1).
type registry struct {
	mu   sync.Mutex
	byFD map[int]*registration
}

func newRegistry() *registry {
	return &registry{byFD: make(map[int]*registration)}
}

var errAlreadyRegistered = pkgerr.New(pkgerr.MinPkgReactor, "fd already registered")
var errNotRegistered = pkgerr.New(pkgerr.MinPkgReactor, "fd not registered")

func (r *registry) add(fd int, client Client, mask Mask) (*registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byFD[fd]; ok {
		return nil, errAlreadyRegistered
	}

	reg := &registration{fd: fd, mask: mask | AlwaysObserved, client: client}
	r.byFD[fd] = reg
	return reg, nil
}

func (r *registry) remove(fd int) (*registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byFD[fd]
	if ok {
		delete(r.byFD, fd)
	}
	return reg, ok
}

func (r *registry) get(fd int) (*registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byFD[fd]
	return reg, ok
}

func (r *registry) setMask(fd int, mask Mask) (*registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byFD[fd]
	if !ok {
		return nil, errNotRegistered
	}
	reg.mask = mask | AlwaysObserved
	return reg, nil
}

func (r *registry) orMask(fd int, mask Mask) (*registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byFD[fd]
	if !ok {
		return nil, errNotRegistered
	}
	reg.mask |= mask
	return reg, nil
}

func (r *registry) andMask(fd int, mask Mask) (*registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byFD[fd]
	if !ok {
		return nil, errNotRegistered
	}
	reg.mask = (reg.mask & mask) | AlwaysObserved
	return reg, nil
}

func (r *registry) snapshot(fd int) (Mask, Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byFD[fd]
	if !ok {
		return 0, nil, false
	}
	return reg.mask, reg.client, true
}

func (r *registry) all() []*registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*registration, 0, len(r.byFD))
	for _, reg := range r.byFD {
		out = append(out, reg)
	}
	return out
}

func unsupportedBackend(name string) error {
	return pkgerr.New(pkgerr.MinPkgReactor, fmt.Sprintf("unsupported or unavailable backend %q on this platform", name))
}
