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

package main

import (
	"testing"

	"github.com/sabouaram/pwnet/pwlog"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPathLeavesDefaultPathAlone(t *testing.T) {
	require.Equal(t, "pwecho.ini", resolveConfigPath("pwecho.ini", false))
}

func TestResolveConfigPathInsertsStageSuffix(t *testing.T) {
	require.Equal(t, "pwecho.stage.ini", resolveConfigPath("pwecho.ini", true))
}

func TestResolveConfigPathHandlesPathWithoutExtension(t *testing.T) {
	require.Equal(t, "pwecho.stage", resolveConfigPath("pwecho", true))
}

func TestRotatePolicyForSize(t *testing.T) {
	p := rotatePolicyFor("size")
	require.Equal(t, pwlog.RotateBySize, p.By)
	require.Greater(t, p.MaxSize, int64(0))
}

func TestRotatePolicyForDailyDefault(t *testing.T) {
	require.Equal(t, pwlog.RotateDaily, rotatePolicyFor("").By)
	require.Equal(t, pwlog.RotateDaily, rotatePolicyFor("daily").By)
}

func TestBootstrapPollerFallsBackOnMissingConfig(t *testing.T) {
	log := pwlog.New(logrus.InfoLevel)
	name, timeoutMs := bootstrapPoller("/nonexistent/pwecho.ini", log)
	require.Equal(t, "", name)
	require.Equal(t, 100, timeoutMs)
}
