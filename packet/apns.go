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

package packet

import (
	"encoding/binary"

	"github.com/sabouaram/pwnet/iobuf"
	"github.com/sabouaram/pwnet/pkgerr"
)

// APNs legacy binary command bytes (Apple Push Notification service,
// enhanced notification format).
const (
	apnsRequestCmd  = 0x02
	apnsResponseCmd = 0x08
)

// APNsItem is one `(item_id, size, payload)` tuple inside a request frame.
type APNsItem struct {
	ID      uint8
	Payload []byte
}

// APNsRequest is the legacy binary push request:
//
//	u8 cmd=0x02, u32 size_bigendian, repeated(u8 item_id, u16 size_bigendian, size bytes)
//
// It never appears on the receive path of this variant; only Serialize is used.
type APNsRequest struct {
	Items []APNsItem
}

// Clear resets the request to its zero value for reuse.
func (r *APNsRequest) Clear() {
	r.Items = nil
}

// Serialize renders the full request frame as a flat byte slice.
func (r *APNsRequest) Serialize() ([]byte, error) {
	buf := iobuf.New(0)
	if err := r.SerializeTo(buf); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Grab()...), nil
}

// SerializeTo writes the request frame into w's write region.
func (r *APNsRequest) SerializeTo(w *iobuf.Region) error {
	itemsLen := 0
	for _, it := range r.Items {
		itemsLen += 1 + 2 + len(it.Payload)
	}

	dst := w.GrabWritable(1 + 4 + itemsLen)
	n := 0
	dst[n] = apnsRequestCmd
	n++
	binary.BigEndian.PutUint32(dst[n:], uint32(itemsLen))
	n += 4
	for _, it := range r.Items {
		dst[n] = it.ID
		n++
		binary.BigEndian.PutUint16(dst[n:], uint16(len(it.Payload)))
		n += 2
		n += copy(dst[n:], it.Payload)
	}
	w.CommitWritten(n)
	return nil
}

// apnsResponseSize is the fixed wire size of an APNsResponse frame.
const apnsResponseSize = 1 + 1 + 4

// APNsResponse is the legacy binary push response: `u8 cmd=0x08, u8 status, u32 noti_id`.
type APNsResponse struct {
	Status uint8
	NotiID uint32
}

// Clear resets the response to its zero value for reuse.
func (r *APNsResponse) Clear() {
	r.Status = 0
	r.NotiID = 0
}

// Serialize renders the response frame as a flat byte slice.
func (r *APNsResponse) Serialize() ([]byte, error) {
	buf := iobuf.New(apnsResponseSize)
	if err := r.SerializeTo(buf); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Grab()...), nil
}

// SerializeTo writes the response frame into w's write region.
func (r *APNsResponse) SerializeTo(w *iobuf.Region) error {
	dst := w.GrabWritable(apnsResponseSize)
	dst[0] = apnsResponseCmd
	dst[1] = r.Status
	binary.BigEndian.PutUint32(dst[2:], r.NotiID)
	w.CommitWritten(apnsResponseSize)
	return nil
}

// ParseAPNsResponse reads exactly apnsResponseSize bytes from r, parking
// (returning ParseNeedMore) until the full fixed-size frame has arrived.
func ParseAPNsResponse(r *iobuf.Region) (ParseResult, APNsResponse, error) {
	data := r.Grab()
	if len(data) < apnsResponseSize {
		return ParseNeedMore, APNsResponse{}, nil
	}
	if data[0] != apnsResponseCmd {
		return ParseInvalid, APNsResponse{}, pkgerr.New(pkgerr.MinPkgPacket, "unexpected apns response command byte")
	}

	resp := APNsResponse{
		Status: data[1],
		NotiID: binary.BigEndian.Uint32(data[2:apnsResponseSize]),
	}
	r.Commit(apnsResponseSize)
	return ParseOK, resp, nil
}
