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

func TestAPNsRequestSerializeLayout(t *testing.T) {
	req := packet.APNsRequest{Items: []packet.APNsItem{
		{ID: 1, Payload: []byte("device-token")},
		{ID: 2, Payload: []byte(`{"aps":{}}`)},
	}}
	wire, err := req.Serialize()
	require.NoError(t, err)
	require.Equal(t, byte(0x02), wire[0])
}

func TestAPNsResponseRoundTrip(t *testing.T) {
	resp := packet.APNsResponse{Status: 10, NotiID: 0xDEADBEEF}
	wire, err := resp.Serialize()
	require.NoError(t, err)
	require.Len(t, wire, 6)
	require.Equal(t, byte(0x08), wire[0])

	r := iobuf.New(0)
	dst := r.GrabWritable(len(wire))
	r.CommitWritten(copy(dst, wire))

	result, got, err := packet.ParseAPNsResponse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseOK, result)
	require.Equal(t, resp.Status, got.Status)
	require.Equal(t, resp.NotiID, got.NotiID)
}

func TestAPNsResponseParksOnPartialFrame(t *testing.T) {
	r := iobuf.New(0)
	dst := r.GrabWritable(4)
	r.CommitWritten(copy(dst, []byte{0x08, 0x00, 0x00, 0x00}))

	result, _, err := packet.ParseAPNsResponse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseNeedMore, result)
}
