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

package httpmsg_test

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/sabouaram/pwnet/iobuf"
	"github.com/sabouaram/pwnet/packet"
	"github.com/sabouaram/pwnet/packet/httpmsg"
	"github.com/stretchr/testify/require"
)

func TestRequestParserParksUntilHeadersArrive(t *testing.T) {
	p := &httpmsg.RequestParser{}
	r := iobuf.New(64)

	dst := r.GrabWritable(len("GET / HTTP/1.1\r\nHost: x"))
	r.CommitWritten(copy(dst, "GET / HTTP/1.1\r\nHost: x"))

	result, _, err := p.Parse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseNeedMore, result)
}

func TestRequestParserParksUntilBodyArrives(t *testing.T) {
	p := &httpmsg.RequestParser{}
	r := iobuf.New(128)

	head := "POST /mirror HTTP/1.1\r\nHost: x\r\nContent-Length: 11\r\n\r\n"
	dst := r.GrabWritable(len(head))
	r.CommitWritten(copy(dst, head))

	result, _, err := p.Parse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseNeedMore, result)

	more := r.GrabWritable(len("hello"))
	r.CommitWritten(copy(more, "hello"))
	result, _, err = p.Parse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseNeedMore, result)

	rest := r.GrabWritable(len(" world"))
	r.CommitWritten(copy(rest, " world"))
	result, req, err := p.Parse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseOK, result)

	body, err := io.ReadAll(req.Req.Body)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(body))
}

func TestRequestParserHandlesBodyLargerThanBufioBuffer(t *testing.T) {
	p := &httpmsg.RequestParser{}
	r := iobuf.New(1024)

	body := strings.Repeat("x", 9000)
	head := "POST /mirror HTTP/1.1\r\nHost: x\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n"
	msg := head + body

	dst := r.GrabWritable(len(msg))
	r.CommitWritten(copy(dst, msg))

	result, req, err := p.Parse(r)
	require.NoError(t, err)
	require.Equal(t, packet.ParseOK, result)

	got, err := io.ReadAll(req.Req.Body)
	require.NoError(t, err)
	require.Equal(t, body, string(got))
}

func TestRequestParserRejectsMalformedRequestLine(t *testing.T) {
	p := &httpmsg.RequestParser{}
	r := iobuf.New(64)

	dst := r.GrabWritable(len("NOT A REQUEST\r\n\r\n"))
	r.CommitWritten(copy(dst, "NOT A REQUEST\r\n\r\n"))

	result, _, err := p.Parse(r)
	require.Error(t, err)
	require.Equal(t, packet.ParseInvalid, result)
}

func TestResponseSerializeRoundTrips(t *testing.T) {
	resp := &httpmsg.Response{Resp: &http.Response{
		StatusCode: 200,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"Content-Length": []string{"5"}},
		Body:       io.NopCloser(strings.NewReader("hello")),
		ContentLength: 5,
	}}

	raw, err := resp.Serialize()
	require.NoError(t, err)
	require.Contains(t, string(raw), "200")
	require.Contains(t, string(raw), "hello")
}
