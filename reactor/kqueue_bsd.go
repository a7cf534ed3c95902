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

//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package reactor

import (
	"golang.org/x/sys/unix"
)

type kqueueBackend struct {
	kqfd int
	reg  *registry
}

func newKqueueBackend() (*kqueueBackend, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueBackend{kqfd: fd, reg: newRegistry()}, nil
}

func newKqueueBackendFromFD(fd int) (*kqueueBackend, error) {
	return &kqueueBackend{kqfd: fd, reg: newRegistry()}, nil
}

func (b *kqueueBackend) Type() string { return "kqueue" }
func (b *kqueueBackend) FD() int      { return b.kqfd }

func (b *kqueueBackend) applyMask(fd int, mask Mask) error {
	changes := make([]unix.Kevent_t, 0, 2)

	if mask.Has(Readable) || mask.Has(PriorityReadable) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DISABLE})
	}

	if mask.Has(Writable) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DISABLE})
	}

	_, err := unix.Kevent(b.kqfd, changes, nil, nil)
	return err
}

func (b *kqueueBackend) Add(fd int, client Client, mask Mask) error {
	reg, err := b.reg.add(fd, client, mask)
	if err != nil {
		return err
	}
	if err := b.applyMask(fd, reg.mask); err != nil {
		_, _ = b.reg.remove(fd)
		return err
	}
	return nil
}

func (b *kqueueBackend) Remove(fd int) error {
	if _, ok := b.reg.remove(fd); !ok {
		return nil
	}
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, _ = unix.Kevent(b.kqfd, changes, nil, nil)
	return nil
}

func (b *kqueueBackend) SetMask(fd int, mask Mask) error {
	reg, err := b.reg.setMask(fd, mask)
	if err != nil {
		return err
	}
	return b.applyMask(fd, reg.mask)
}

func (b *kqueueBackend) OrMask(fd int, mask Mask) error {
	reg, err := b.reg.orMask(fd, mask)
	if err != nil {
		return err
	}
	return b.applyMask(fd, reg.mask)
}

func (b *kqueueBackend) AndMask(fd int, mask Mask) error {
	reg, err := b.reg.andMask(fd, mask)
	if err != nil {
		return err
	}
	return b.applyMask(fd, reg.mask)
}

func (b *kqueueBackend) EventFor(fd int) (Client, bool) {
	_, c, ok := b.reg.snapshot(fd)
	return c, ok
}

func (b *kqueueBackend) Close() error {
	return unix.Close(b.kqfd)
}

func (b *kqueueBackend) Dispatch(timeoutMs int) (int, error) {
	events := make([]unix.Kevent_t, MaxBatch)
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1_000_000)
		ts = &t
	}

	n, err := unix.Kevent(b.kqfd, nil, events, ts)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	// merge same-fd read+write events delivered in the same batch into one callback.
	combined := make(map[int]Mask, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fd := int(events[i].Ident)
		var m Mask
		switch events[i].Filter {
		case unix.EVFILT_READ:
			m = Readable
		case unix.EVFILT_WRITE:
			m = Writable
		}
		if events[i].Flags&unix.EV_EOF != 0 {
			m |= HangUp
		}
		if events[i].Flags&unix.EV_ERROR != 0 {
			m |= Error
		}
		if _, seen := combined[fd]; !seen {
			order = append(order, fd)
		}
		combined[fd] |= m
	}

	delivered := 0
	for _, fd := range order {
		_, client, ok := b.reg.snapshot(fd)
		if !ok {
			continue
		}
		removeHint := false
		client.OnIO(fd, combined[fd], &removeHint)
		delivered++
		if removeHint {
			_ = b.Remove(fd)
		}
	}

	return delivered, nil
}
