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

package sysinfo_test

import (
	"testing"
	"time"

	"github.com/sabouaram/pwnet/sysinfo"
	"github.com/stretchr/testify/require"
)

func TestSnapshotReportsUptimeAndCPUCount(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	elapsed := 90 * time.Second
	g := sysinfo.NewWithClock(func() time.Time { return start.Add(elapsed) })

	snap := g.Snapshot()
	require.Equal(t, elapsed, snap.Uptime)
	require.Greater(t, snap.NumCPU, 0)
	require.NotEmpty(t, snap.Hostname)
}

func TestSnapshotAsPacketCarriesCode(t *testing.T) {
	g := sysinfo.NewWithClock(time.Now)
	pkt := g.Snapshot().AsPacket(9)
	require.Equal(t, "STAT", pkt.Code)
	require.Equal(t, uint16(9), pkt.TRID)
	require.Contains(t, string(pkt.Body), "uptime=")
}

func TestSnapshotDegradesGracefullyWhenProcUnavailable(t *testing.T) {
	g := sysinfo.New()
	snap := g.Snapshot()
	// Either both are unavailable (non-Linux) or both report plausible
	// values (Linux); either way Snapshot must never panic or error.
	if snap.LoadAvailable {
		require.GreaterOrEqual(t, snap.LoadAverage.Load1, 0.0)
	}
	if snap.MemoryAvailable {
		require.Greater(t, snap.Memory.ResidentBytes, uint64(0))
	}
}
