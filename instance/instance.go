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

// Package instance implements the process-wide singleton that owns
// config, reactor, listener directory, timer service, job manager and
// children array, and drives the main loop (spec §4.5, C9). There is
// no hidden global: every hook the user registers receives the owning
// *Instance explicitly, and the only process-wide state is the single
// pointer a signal handler closes over to enqueue flags.
package instance

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sabouaram/pwnet/config"
	"github.com/sabouaram/pwnet/reactor"
	"github.com/sabouaram/pwnet/timer"
)

// Mode selects how listeners are opened: directly in this process, as
// the round-robin fd distributor, or as an fd-receiving worker.
type Mode uint8

const (
	ModeSingle Mode = iota
	ModeParent
	ModeChild
)

// ChildRecord tracks one forked worker (spec §4.5: "Instance / child record").
type ChildRecord struct {
	Index      int
	PID        int
	ParentEnd  int
	Param      interface{}
}

// Hooks are the user-supplied lifecycle callbacks invoked at the points
// named in spec §4.5's Start/tick sequence. Every field is optional.
type Hooks struct {
	OnConfig             func(inst *Instance, isDefault, isReload bool) error
	OnInitChannel        func(inst *Instance) error
	OnInitListener       func(inst *Instance, mode Mode) error
	OnEndTurn            func(inst *Instance)
	OnExit               func(inst *Instance)
	OnExitChild          func(inst *Instance, index int, pid int, status int)
	OnForkCleanupChannel func(inst *Instance, index int)
	OnForkCleanupListener func(inst *Instance, index int)
	OnForkCleanupTimer    func(inst *Instance, index int)
	OnForkCleanupExtras   func(inst *Instance, index int)
	OnForkCleanupPoller   func(inst *Instance, index int)
	OnForkChild          func(inst *Instance, index int, param interface{})
	OnSignalUser         func(inst *Instance, sig os.Signal)
}

// Instance is the process-wide singleton (spec §4.5: "Instance / child
// record"). Pass it explicitly to every hook; do not reach for a global.
type Instance struct {
	AppTag       string
	InstanceName string

	mu       sync.Mutex
	cfg      *config.Config
	cfgPath  string
	mode     Mode
	childIdx int // -1 when not a forked child

	Reactor *reactor.Reactor
	Timer   *timer.Service
	Jobs    *JobManager

	children []*ChildRecord
	nextChild int

	hooks Hooks

	reload     int32
	stop       int32
	checkChild int32
	exitCode   int32
	running    int32

	sigCh chan os.Signal

	userSigMu  sync.Mutex
	userSigs   []os.Signal
}

// New constructs an Instance. childIdx is -1 for the parent/single-process
// image and the assigned index inside a forked child.
func New(appTag, instanceName string, hooks Hooks) *Instance {
	return &Instance{
		AppTag:       appTag,
		InstanceName: instanceName,
		hooks:        hooks,
		childIdx:     -1,
		Jobs:         NewJobManager(),
	}
}

// ExitCode reports the value set via SetExitCode, or 0.
func (i *Instance) ExitCode() int { return int(atomic.LoadInt32(&i.exitCode)) }

// SetExitCode records the process exit code returned once the loop stops.
func (i *Instance) SetExitCode(code int) { atomic.StoreInt32(&i.exitCode, int32(code)) }

// ChildIndex reports this process's child index, or -1 for parent/single.
func (i *Instance) ChildIndex() int { return i.childIdx }

// Config returns the currently loaded configuration snapshot.
func (i *Instance) Config() *config.Config {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cfg
}

// Start performs the ordered bring-up sequence from spec §4.5: signal
// init, config load, on_config(default), user hooks, timer init, then
// enters the main loop until Stop is requested, finally tearing down.
func (i *Instance) Start(cfgPath string, pollerName string, reactorTimeoutMs int, mode Mode) int {
	i.cfgPath = cfgPath
	i.mode = mode

	i.installSignals()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		i.SetExitCode(1)
		return i.ExitCode()
	}
	i.mu.Lock()
	i.cfg = cfg
	i.mu.Unlock()

	if i.hooks.OnConfig != nil {
		if err := i.hooks.OnConfig(i, true, false); err != nil {
			i.SetExitCode(1)
			return i.ExitCode()
		}
	}

	r, err := reactor.New(pollerName)
	if err != nil {
		i.SetExitCode(1)
		return i.ExitCode()
	}
	i.Reactor = r

	if i.hooks.OnInitChannel != nil {
		if err := i.hooks.OnInitChannel(i); err != nil {
			i.SetExitCode(1)
			return i.ExitCode()
		}
	}
	if i.hooks.OnInitListener != nil {
		if err := i.hooks.OnInitListener(i, mode); err != nil {
			i.SetExitCode(1)
			return i.ExitCode()
		}
	}
	i.Timer = timer.New(nil)

	atomic.StoreInt32(&i.running, 1)
	i.loop(reactorTimeoutMs)

	if i.hooks.OnExit != nil {
		i.hooks.OnExit(i)
	}
	if i.Reactor != nil {
		_ = i.Reactor.Close()
	}
	return i.ExitCode()
}

// loop runs the main-loop tick (spec §4.5 "Main loop tick", steps 1-7)
// until the run flag is cleared by a stop signal or explicit Stop call.
func (i *Instance) loop(reactorTimeoutMs int) {
	for atomic.LoadInt32(&i.stop) == 0 {
		i.tick(reactorTimeoutMs)
	}
}

func (i *Instance) tick(reactorTimeoutMs int) {
	if atomic.CompareAndSwapInt32(&i.reload, 1, 0) {
		if cfg, err := config.Load(i.cfgPath); err == nil {
			i.mu.Lock()
			i.cfg = cfg
			i.mu.Unlock()
			if i.hooks.OnConfig != nil {
				_ = i.hooks.OnConfig(i, false, true)
			}
		}
	}

	_, _ = i.Reactor.Dispatch(reactorTimeoutMs)

	i.Timer.Tick()

	i.Jobs.Drain()

	if atomic.CompareAndSwapInt32(&i.checkChild, 1, 0) {
		i.reapChildren()
	}

	i.drainUserSignals()

	if i.hooks.OnEndTurn != nil {
		i.hooks.OnEndTurn(i)
	}
}

// Stop requests the main loop to exit after its current tick, recording
// code as the process exit code (spec §4.5 signals: SIGINT/SIGTERM).
func (i *Instance) Stop(code int) {
	i.SetExitCode(code)
	atomic.StoreInt32(&i.stop, 1)
}

// RequestReload sets the reload flag consumed on the next tick (spec
// §4.5 signals: SIGHUP).
func (i *Instance) RequestReload() {
	atomic.StoreInt32(&i.reload, 1)
}

func (i *Instance) reapChildren() {
	i.mu.Lock()
	kids := append([]*ChildRecord(nil), i.children...)
	i.mu.Unlock()

	for _, c := range kids {
		if c == nil || c.PID == 0 {
			continue
		}
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(c.PID, &ws, syscall.WNOHANG, nil)
		if err != nil || pid == 0 {
			continue
		}
		if i.hooks.OnExitChild != nil {
			i.hooks.OnExitChild(i, c.Index, c.PID, ws.ExitStatus())
		}
		c.PID = 0
	}
}

func (i *Instance) installSignals() {
	i.sigCh = make(chan os.Signal, 8)
	signal.Notify(i.sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGCHLD, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		for sig := range i.sigCh {
			switch sig {
			case syscall.SIGHUP:
				i.RequestReload()
			case syscall.SIGINT, syscall.SIGTERM:
				i.Stop(0)
			case syscall.SIGCHLD:
				atomic.StoreInt32(&i.checkChild, 1)
			case syscall.SIGUSR1, syscall.SIGUSR2:
				i.userSigMu.Lock()
				i.userSigs = append(i.userSigs, sig)
				i.userSigMu.Unlock()
			}
		}
	}()
}

// drainUserSignals delivers queued SIGUSR1/SIGUSR2 signals to OnSignalUser
// from the main-loop goroutine: installSignals only enqueues them, so every
// hook call stays single-threaded with the rest of a tick.
func (i *Instance) drainUserSignals() {
	if i.hooks.OnSignalUser == nil {
		i.userSigMu.Lock()
		i.userSigs = nil
		i.userSigMu.Unlock()
		return
	}

	i.userSigMu.Lock()
	pending := i.userSigs
	i.userSigs = nil
	i.userSigMu.Unlock()

	for _, sig := range pending {
		i.hooks.OnSignalUser(i, sig)
	}
}

// registerChild records a freshly created child record, used by Fork.
func (i *Instance) registerChild(c *ChildRecord) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.children = append(i.children, c)
}

// Children returns a snapshot of the currently tracked child records.
func (i *Instance) Children() []*ChildRecord {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*ChildRecord(nil), i.children...)
}

// NextChildIndex returns a strictly increasing child index, used when
// pre-forking a fixed-size worker pool.
func (i *Instance) NextChildIndex() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	idx := i.nextChild
	i.nextChild++
	return idx
}
