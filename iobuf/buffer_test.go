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

package iobuf_test

import (
	"testing"

	"github.com/sabouaram/pwnet/iobuf"
	"github.com/stretchr/testify/require"
)

func TestGrabCommitRoundtrip(t *testing.T) {
	r := iobuf.New(16)

	w := r.GrabWritable(5)
	copy(w, []byte("hello"))
	r.CommitWritten(5)

	require.Equal(t, "hello", string(r.Grab()))
	require.Equal(t, 5, r.Len())

	r.Commit(3)
	require.Equal(t, "lo", string(r.Grab()))
	require.Equal(t, 2, r.Len())

	r.Commit(2)
	require.Equal(t, 0, r.Len())
}

func TestGrowthDoesNotMoveCommittedBytes(t *testing.T) {
	r := iobuf.New(4)

	w := r.GrabWritable(4)
	copy(w, []byte("abcd"))
	r.CommitWritten(4)

	before := r.Grab()
	beforeCopy := append([]byte(nil), before...)

	// force growth well beyond current capacity
	w2 := r.GrabWritable(64)
	require.GreaterOrEqual(t, len(w2), 64)

	require.Equal(t, beforeCopy, r.Grab())
}

func TestConsumedNeverExceedsProduced(t *testing.T) {
	r := iobuf.New(8)
	w := r.GrabWritable(3)
	copy(w, []byte("abc"))
	r.CommitWritten(3)

	r.Commit(100) // over-commit clamps to Len()
	require.Equal(t, 0, r.Len())
}

func TestResetClearsWithoutReleasingStorage(t *testing.T) {
	r := iobuf.New(8)
	capBefore := r.Cap()

	w := r.GrabWritable(3)
	copy(w, []byte("xyz"))
	r.CommitWritten(3)
	r.Reset()

	require.Equal(t, 0, r.Len())
	require.Equal(t, capBefore, r.Cap())
}
