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

//go:build unix

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// selectBackend is the lowest-common-denominator backend: works on every
// POSIX target, at O(highest_fd) cost per dispatch. Used when neither epoll
// nor kqueue is available, or when explicitly requested.
type selectBackend struct {
	reg *registry
}

func newSelectBackend() (*selectBackend, error) {
	return &selectBackend{reg: newRegistry()}, nil
}

func (b *selectBackend) Type() string { return "select" }
func (b *selectBackend) FD() int      { return -1 }

func (b *selectBackend) Add(fd int, client Client, mask Mask) error {
	_, err := b.reg.add(fd, client, mask)
	return err
}

func (b *selectBackend) Remove(fd int) error {
	_, ok := b.reg.remove(fd)
	if !ok {
		return nil
	}
	return nil
}

func (b *selectBackend) SetMask(fd int, mask Mask) error {
	_, err := b.reg.setMask(fd, mask)
	return err
}

func (b *selectBackend) OrMask(fd int, mask Mask) error {
	_, err := b.reg.orMask(fd, mask)
	return err
}

func (b *selectBackend) AndMask(fd int, mask Mask) error {
	_, err := b.reg.andMask(fd, mask)
	return err
}

func (b *selectBackend) EventFor(fd int) (Client, bool) {
	_, c, ok := b.reg.snapshot(fd)
	return c, ok
}

func (b *selectBackend) Close() error { return nil }

func (b *selectBackend) Dispatch(timeoutMs int) (int, error) {
	regs := b.reg.all()
	if len(regs) == 0 {
		if timeoutMs > 0 {
			time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
		}
		return 0, nil
	}

	var rfds, wfds, efds unix.FdSet
	maxFD := 0
	for _, reg := range regs {
		if reg.fd > maxFD {
			maxFD = reg.fd
		}
		if reg.mask.Has(Readable) || reg.mask.Has(PriorityReadable) {
			fdSet(&rfds, reg.fd)
		}
		if reg.mask.Has(Writable) {
			fdSet(&wfds, reg.fd)
		}
		fdSet(&efds, reg.fd) // error/hangup always observed
	}

	tv := unix.NsecToTimeval(int64(timeoutMs) * int64(time.Millisecond))

	n, err := unix.Select(maxFD+1, &rfds, &wfds, &efds, &tv)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	delivered := 0
	for _, reg := range regs {
		var m Mask
		if fdIsSet(&rfds, reg.fd) {
			m |= Readable
		}
		if fdIsSet(&wfds, reg.fd) {
			m |= Writable
		}
		if fdIsSet(&efds, reg.fd) {
			m |= Error
		}
		if m == 0 {
			continue
		}

		removeHint := false
		reg.client.OnIO(reg.fd, m, &removeHint)
		delivered++

		if removeHint {
			_ = b.Remove(reg.fd)
		}

		if delivered >= MaxBatch {
			break
		}
	}

	return delivered, nil
}

// fdSet/fdIsSet assume a 64-bit FdSet word size (true for linux/amd64,
// the select backend's primary target); widen per-arch if ported further.
func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
