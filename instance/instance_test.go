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

package instance_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sabouaram/pwnet/instance"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.ini")
	require.NoError(t, os.WriteFile(path, []byte("[process]\nmode = single\n"), 0o600))
	return path
}

func TestStartRunsLifecycleHooksInOrderThenStops(t *testing.T) {
	var order []string

	inst := instance.New("testapp", "t1", instance.Hooks{
		OnConfig: func(i *instance.Instance, isDefault, isReload bool) error {
			order = append(order, "on_config")
			return nil
		},
		OnInitChannel: func(i *instance.Instance) error {
			order = append(order, "on_init_channel")
			return nil
		},
		OnInitListener: func(i *instance.Instance, mode instance.Mode) error {
			order = append(order, "on_init_listener")
			go func() {
				time.Sleep(20 * time.Millisecond)
				i.Stop(0)
			}()
			return nil
		},
		OnEndTurn: func(i *instance.Instance) {
			order = append(order, "on_end_turn")
		},
		OnExit: func(i *instance.Instance) {
			order = append(order, "on_exit")
		},
	})

	code := inst.Start(writeConfig(t), "select", 10, instance.ModeSingle)
	require.Equal(t, 0, code)
	require.Equal(t, []string{"on_config", "on_init_channel", "on_init_listener"}, order[:3])
	require.Contains(t, order, "on_config")
	require.Contains(t, order, "on_init_channel")
	require.Contains(t, order, "on_init_listener")
	require.Contains(t, order, "on_end_turn")
	require.Equal(t, "on_exit", order[len(order)-1])
}

func TestRequestReloadFiresOnConfigWithReloadTrue(t *testing.T) {
	path := writeConfig(t)
	reloadSeen := make(chan bool, 1)

	inst := instance.New("testapp", "t2", instance.Hooks{
		OnConfig: func(i *instance.Instance, isDefault, isReload bool) error {
			if isReload {
				reloadSeen <- true
			}
			return nil
		},
		OnInitListener: func(i *instance.Instance, mode instance.Mode) error {
			go func() {
				i.RequestReload()
				time.Sleep(50 * time.Millisecond)
				i.Stop(0)
			}()
			return nil
		},
	})

	inst.Start(path, "select", 10, instance.ModeSingle)

	select {
	case <-reloadSeen:
	default:
		t.Fatal("on_config(reload=true) never fired")
	}
}

func TestChildControlFDReadsEnv(t *testing.T) {
	t.Setenv(instance.EnvChildIndex, "2")
	t.Setenv(instance.EnvChildFD, "3")

	idx, fd, ok := instance.ChildControlFD()
	require.True(t, ok)
	require.Equal(t, 2, idx)
	require.Equal(t, 3, fd)
}

func TestChildControlFDAbsentWhenUnset(t *testing.T) {
	os.Unsetenv(instance.EnvChildIndex)
	os.Unsetenv(instance.EnvChildFD)

	_, _, ok := instance.ChildControlFD()
	require.False(t, ok)
}

func TestJobManagerDrainsCompletedWork(t *testing.T) {
	jm := instance.NewJobManager()
	done := make(chan struct{})

	jm.Submit(func() interface{} {
		return 42
	}, func(result interface{}) {
		require.Equal(t, 42, result)
		close(done)
	})

	require.Eventually(t, func() bool {
		jm.Drain()
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
