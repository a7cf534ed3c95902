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

package packet_test

import (
	"testing"

	"github.com/sabouaram/pwnet/iobuf"
	"github.com/sabouaram/pwnet/packet"
	"github.com/stretchr/testify/require"
)

func TestMsgPacketRoundTrip(t *testing.T) {
	cases := []packet.MsgPacket{
		{Code: "ECHO", TRID: 7, Flags: 0, Body: []byte("hello")},
		{Code: "A", TRID: 0, Flags: packet.FlagCompressed, Body: []byte("")},
		{Code: "CHNK", TRID: 42, Flags: packet.FlagChunked, ChunkTotal: 3, ChunkIndex: 1, Body: []byte("part1")},
		{Code: "APPX", TRID: 1, Flags: 0, Appendix: "tag123", Body: []byte("x")},
	}

	for _, pk := range cases {
		wire, err := pk.Serialize()
		require.NoError(t, err)

		r := iobuf.New(0)
		dst := r.GrabWritable(len(wire))
		r.CommitWritten(copy(dst, wire))

		var parser packet.Parser
		result, out, err := parser.Parse(r)
		require.NoError(t, err)
		require.Equal(t, packet.ParseOK, result)
		require.Equal(t, pk.Code, out.Code)
		require.Equal(t, pk.TRID, out.TRID)
		require.Equal(t, pk.Flags, out.Flags)
		require.Equal(t, pk.Body, out.Body)
		require.Equal(t, 0, r.Len())
	}
}

func TestMsgPacketParksOnPartialBody(t *testing.T) {
	pk := packet.MsgPacket{Code: "ECHO", TRID: 1, Body: []byte("hello world")}
	wire, err := pk.Serialize()
	require.NoError(t, err)

	split := len(wire) - 3

	r := iobuf.New(0)
	dst := r.GrabWritable(split)
	r.CommitWritten(copy(dst, wire[:split]))

	var parser packet.Parser
	result, _, err := parser.Parse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseNeedMore, result)

	dst = r.GrabWritable(len(wire) - split)
	r.CommitWritten(copy(dst, wire[split:]))

	result, out, err := parser.Parse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseOK, result)
	require.Equal(t, pk.Body, out.Body)
}

func TestMsgPacketChunkedTotalPositiveIndexZeroIsInvalid(t *testing.T) {
	r := iobuf.New(0)
	raw := []byte("C 1 001 0 3 0\r\n")
	dst := r.GrabWritable(len(raw))
	r.CommitWritten(copy(dst, raw))

	var parser packet.Parser
	result, _, err := parser.Parse(r)
	require.Equal(t, packet.ParseInvalid, result)
	require.Error(t, err)
}

func TestMsgPacketBodyTooLargeRejected(t *testing.T) {
	pk := packet.MsgPacket{Code: "X", Body: make([]byte, packet.MaxBodySize+1)}
	_, err := pk.Serialize()
	require.Error(t, err)
}

func TestMsgPacketNeedsMoreForShortHeader(t *testing.T) {
	r := iobuf.New(0)
	dst := r.GrabWritable(3)
	r.CommitWritten(copy(dst, []byte("C 1")))

	var parser packet.Parser
	result, _, err := parser.Parse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseNeedMore, result)
}
