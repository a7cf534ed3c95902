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

//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

type epollBackend struct {
	epfd int
	reg  *registry
}

func newEpollBackend() (*epollBackend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: fd, reg: newRegistry()}, nil
}

func newEpollBackendFromFD(fd int) (*epollBackend, error) {
	return &epollBackend{epfd: fd, reg: newRegistry()}, nil
}

func (b *epollBackend) Type() string { return "epoll" }
func (b *epollBackend) FD() int      { return b.epfd }

func toEpollEvents(m Mask) uint32 {
	var ev uint32
	if m.Has(Readable) {
		ev |= unix.EPOLLIN
	}
	if m.Has(PriorityReadable) {
		ev |= unix.EPOLLPRI
	}
	if m.Has(Writable) {
		ev |= unix.EPOLLOUT
	}
	// EPOLLERR/EPOLLHUP are always reported by the kernel regardless of registration.
	return ev
}

func fromEpollEvents(ev uint32) Mask {
	var m Mask
	if ev&unix.EPOLLIN != 0 {
		m |= Readable
	}
	if ev&unix.EPOLLPRI != 0 {
		m |= PriorityReadable
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= Writable
	}
	if ev&unix.EPOLLERR != 0 {
		m |= Error
	}
	if ev&unix.EPOLLHUP != 0 {
		m |= HangUp
	}
	if ev&unix.EPOLLRDHUP != 0 {
		m |= HangUp
	}
	return m
}

func (b *epollBackend) Add(fd int, client Client, mask Mask) error {
	reg, err := b.reg.add(fd, client, mask)
	if err != nil {
		return err
	}
	ev := &unix.EpollEvent{Events: toEpollEvents(reg.mask), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		_, _ = b.reg.remove(fd)
		return err
	}
	return nil
}

func (b *epollBackend) Remove(fd int) error {
	if _, ok := b.reg.remove(fd); !ok {
		return nil
	}
	_ = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return nil
}

func (b *epollBackend) applyMask(fd int, mask Mask) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (b *epollBackend) SetMask(fd int, mask Mask) error {
	reg, err := b.reg.setMask(fd, mask)
	if err != nil {
		return err
	}
	return b.applyMask(fd, reg.mask)
}

func (b *epollBackend) OrMask(fd int, mask Mask) error {
	reg, err := b.reg.orMask(fd, mask)
	if err != nil {
		return err
	}
	return b.applyMask(fd, reg.mask)
}

func (b *epollBackend) AndMask(fd int, mask Mask) error {
	reg, err := b.reg.andMask(fd, mask)
	if err != nil {
		return err
	}
	return b.applyMask(fd, reg.mask)
}

func (b *epollBackend) EventFor(fd int) (Client, bool) {
	_, c, ok := b.reg.snapshot(fd)
	return c, ok
}

func (b *epollBackend) Close() error {
	return unix.Close(b.epfd)
}

func (b *epollBackend) Dispatch(timeoutMs int) (int, error) {
	events := make([]unix.EpollEvent, MaxBatch)

	n, err := unix.EpollWait(b.epfd, events, timeoutMs)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		_, client, ok := b.reg.snapshot(fd)
		if !ok {
			continue
		}

		removeHint := false
		client.OnIO(fd, fromEpollEvents(events[i].Events), &removeHint)
		delivered++

		if removeHint {
			_ = b.Remove(fd)
		}
	}

	return delivered, nil
}
