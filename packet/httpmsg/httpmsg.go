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

// Package httpmsg adapts the packet.Packet contract to HTTP/1.1 request and
// response framing by delegating the actual wire parsing/writing to
// net/http rather than reimplementing header folding, chunked transfer
// encoding, or Content-Length accounting.
package httpmsg

import (
	"bufio"
	"bytes"
	"io"
	"net/http"

	"github.com/sabouaram/pwnet/iobuf"
	"github.com/sabouaram/pwnet/packet"
	"github.com/sabouaram/pwnet/pkgerr"
)

// Request wraps an *http.Request for use as a channel Packet.
type Request struct {
	Req *http.Request
}

// Clear drops the wrapped request.
func (r *Request) Clear() { r.Req = nil }

// Serialize renders the request line, headers, and body as wire bytes.
func (r *Request) Serialize() ([]byte, error) {
	if r.Req == nil {
		return nil, pkgerr.New(pkgerr.MinPkgPacket, "nil http request")
	}
	var buf bytes.Buffer
	if err := r.Req.Write(&buf); err != nil {
		return nil, pkgerr.Wrap(pkgerr.MinPkgPacket, "write http request", err)
	}
	return buf.Bytes(), nil
}

// SerializeTo writes the request into w's write region.
func (r *Request) SerializeTo(w *iobuf.Region) error {
	b, err := r.Serialize()
	if err != nil {
		return err
	}
	dst := w.GrabWritable(len(b))
	w.CommitWritten(copy(dst, b))
	return nil
}

// ParseRequest decodes the request line and headers at the start of data
// with http.ReadRequest. It does not park: an incomplete header block
// yields net/http's error (io.EOF or io.ErrUnexpectedEOF), and a complete
// one succeeds without waiting for the body, which RequestParser handles.
// The returned length is the header block's own size, found directly in data
// rather than derived from bufio.Reader.Buffered(): once data exceeds the
// reader's fixed internal buffer (4096 bytes), Buffered() no longer
// reflects how much of data sits beyond that buffer, and len(data)-Buffered()
// overcounts the header length by exactly that overflow.
func ParseRequest(data []byte) (*http.Request, int, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, 0, err
	}
	return req, headerLen(data), nil
}

// Response wraps an *http.Response for use as a channel Packet.
type Response struct {
	Resp *http.Response
}

// Clear drops the wrapped response.
func (r *Response) Clear() { r.Resp = nil }

// Serialize renders the status line, headers, and body as wire bytes.
func (r *Response) Serialize() ([]byte, error) {
	if r.Resp == nil {
		return nil, pkgerr.New(pkgerr.MinPkgPacket, "nil http response")
	}
	var buf bytes.Buffer
	if err := r.Resp.Write(&buf); err != nil {
		return nil, pkgerr.Wrap(pkgerr.MinPkgPacket, "write http response", err)
	}
	return buf.Bytes(), nil
}

// SerializeTo writes the response into w's write region.
func (r *Response) SerializeTo(w *iobuf.Region) error {
	b, err := r.Serialize()
	if err != nil {
		return err
	}
	dst := w.GrabWritable(len(b))
	w.CommitWritten(copy(dst, b))
	return nil
}

// ParseResponse decodes one HTTP response from data against req (required
// by net/http to know whether a body is expected, e.g. HEAD has none). See
// ParseRequest for why the header length is derived from data rather than
// from the bufio reader's Buffered() count.
func ParseResponse(data []byte, req *http.Request) (*http.Response, int, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, 0, err
	}
	return resp, headerLen(data), nil
}

// headerLen returns the byte length of the header block (request/status
// line plus headers, including the terminating blank line) at the start
// of data, or -1 if the terminating "\r\n\r\n" has not arrived yet.
func headerLen(data []byte) int {
	idx := bytes.Index(data, []byte("\r\n\r\n"))
	if idx < 0 {
		return -1
	}
	return idx + 4
}

// RequestParser adapts ParseRequest to the channel.Parser[Request] contract:
// http.ReadRequest only consumes the request line and headers (the body is
// read lazily), so this parks (ParseNeedMore) until both the header block
// and a full Content-Length body have arrived, then rebuilds Req.Body over
// the now-complete body bytes before handing the request to the caller.
type RequestParser struct{}

// Parse decodes one complete HTTP request out of r's buffered bytes.
func (p *RequestParser) Parse(r *iobuf.Region) (packet.ParseResult, Request, error) {
	data := r.Grab()
	if !bytes.Contains(data, []byte("\r\n\r\n")) {
		return packet.ParseNeedMore, Request{}, nil
	}

	req, hdrLen, err := ParseRequest(data)
	if err != nil {
		return packet.ParseInvalid, Request{}, pkgerr.Wrap(pkgerr.MinPkgPacket, "parse http request", err)
	}

	bodyLen := req.ContentLength
	if bodyLen < 0 {
		bodyLen = 0
	}
	total := hdrLen + int(bodyLen)
	if len(data) < total {
		return packet.ParseNeedMore, Request{}, nil
	}

	body := append([]byte(nil), data[hdrLen:total]...)
	req.Body = io.NopCloser(bytes.NewReader(body))

	r.Commit(total)
	return packet.ParseOK, Request{Req: req}, nil
}
