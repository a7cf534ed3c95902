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

package timer_test

import (
	"testing"
	"time"

	"github.com/sabouaram/pwnet/timer"
	"github.com/stretchr/testify/require"
)

func TestEveryFiresRepeatedly(t *testing.T) {
	now := time.Unix(0, 0)
	svc := timer.New(func() time.Time { return now })

	count := 0
	svc.Every(10*time.Millisecond, func() { count++ })

	now = now.Add(25 * time.Millisecond)
	svc.Tick()
	require.Equal(t, 1, count)

	now = now.Add(10 * time.Millisecond)
	svc.Tick()
	require.Equal(t, 2, count)
}

func TestAfterFiresOnceThenRemoves(t *testing.T) {
	now := time.Unix(0, 0)
	svc := timer.New(func() time.Time { return now })

	count := 0
	svc.After(5*time.Millisecond, func() { count++ })
	require.Equal(t, 1, svc.Len())

	now = now.Add(time.Second)
	svc.Tick()
	require.Equal(t, 1, count)
	require.Equal(t, 0, svc.Len())

	svc.Tick()
	require.Equal(t, 1, count)
}

func TestCancelPreventsFiring(t *testing.T) {
	now := time.Unix(0, 0)
	svc := timer.New(func() time.Time { return now })

	fired := false
	id := svc.Every(time.Millisecond, func() { fired = true })
	svc.Cancel(id)

	now = now.Add(time.Second)
	svc.Tick()
	require.False(t, fired)
}
