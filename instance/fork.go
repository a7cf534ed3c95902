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

package instance

import (
	"os"
	"os/exec"
	"strconv"

	"github.com/sabouaram/pwnet/pkgerr"
	"github.com/sabouaram/pwnet/socket"
	"golang.org/x/sys/unix"
)

// EnvChildIndex and EnvChildFD tell a re-exec'd worker its assigned index
// and which inherited fd (always 3, the first of os/exec's ExtraFiles) is
// its control-pair child end. A raw fork() is unsafe in the Go runtime's
// multithreaded image, so workers are spawned the way the pack's own
// zero-downtime restart example does it: re-exec the same binary with the
// listening/control fd passed through os/exec's ExtraFiles.
const (
	EnvChildIndex = "PWNET_CHILD_INDEX"
	EnvChildFD    = "PWNET_CHILD_FD"
)

// childFDSlot is the fd number a worker finds its control end at: fd 0-2
// are stdin/stdout/stderr, so the first ExtraFiles entry lands at 3.
const childFDSlot = 3

// Fork spawns one pre-forked worker (spec §4.5 "Fork semantics"): it
// creates a control socket pair, retains the parent end in a new
// ChildRecord, and re-execs the current binary with the child end
// inherited at fd 3 and PWNET_CHILD_INDEX set. param is stashed on the
// ChildRecord for the caller's own bookkeeping; it is not passed to the
// child process (the child reads its own config independently).
func (i *Instance) Fork(param interface{}, extraArgs ...string) (*ChildRecord, error) {
	parentEnd, childEnd, err := socket.ControlPair()
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.MinPkgInstance, "fork: control pair", err)
	}

	index := i.NextChildIndex()

	self, err := os.Executable()
	if err != nil {
		unix.Close(parentEnd)
		unix.Close(childEnd)
		return nil, pkgerr.Wrap(pkgerr.MinPkgInstance, "fork: resolve executable", err)
	}

	childFile := os.NewFile(uintptr(childEnd), "pwnet-child-control")

	cmd := exec.Command(self, extraArgs...)
	cmd.Env = append(os.Environ(), EnvChildIndex+"="+strconv.Itoa(index), EnvChildFD+"="+strconv.Itoa(childFDSlot))
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		unix.Close(parentEnd)
		_ = childFile.Close()
		return nil, pkgerr.Wrap(pkgerr.MinPkgInstance, "fork: start child", err)
	}

	// The parent retains pair.parent_end and closes pair.child_end (its own
	// copy; the child process holds the fd it inherited across exec).
	_ = childFile.Close()

	rec := &ChildRecord{Index: index, PID: cmd.Process.Pid, ParentEnd: parentEnd, Param: param}
	i.registerChild(rec)
	return rec, nil
}

// ChildControlFD resolves this process's own control-pair fd when it was
// spawned by Fork, reading PWNET_CHILD_INDEX/PWNET_CHILD_FD from the
// environment. ok is false in the parent/single-process image.
func ChildControlFD() (index int, fd int, ok bool) {
	idxStr := os.Getenv(EnvChildIndex)
	fdStr := os.Getenv(EnvChildFD)
	if idxStr == "" || fdStr == "" {
		return 0, -1, false
	}
	idx, err1 := strconv.Atoi(idxStr)
	f, err2 := strconv.Atoi(fdStr)
	if err1 != nil || err2 != nil {
		return 0, -1, false
	}
	return idx, f, true
}

// AdoptChildRole marks this Instance as running inside a forked worker,
// runs the ordered cleanup hooks spec §4.5 requires (channel, listener,
// timer, extras, poller, in that order), then fires on_fork_child.
func (i *Instance) AdoptChildRole(index int, param interface{}) {
	i.childIdx = index
	if i.hooks.OnForkCleanupChannel != nil {
		i.hooks.OnForkCleanupChannel(i, index)
	}
	if i.hooks.OnForkCleanupListener != nil {
		i.hooks.OnForkCleanupListener(i, index)
	}
	if i.hooks.OnForkCleanupTimer != nil {
		i.hooks.OnForkCleanupTimer(i, index)
	}
	if i.hooks.OnForkCleanupExtras != nil {
		i.hooks.OnForkCleanupExtras(i, index)
	}
	if i.hooks.OnForkCleanupPoller != nil {
		i.hooks.OnForkCleanupPoller(i, index)
	}
	if i.hooks.OnForkChild != nil {
		i.hooks.OnForkChild(i, index, param)
	}
}
