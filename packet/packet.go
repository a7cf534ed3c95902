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

// Package packet defines the abstract wire-message contract Channel parsers
// produce and consumers write back out, plus the concrete framings this
// framework ships: a text/binary header message packet and legacy APNs
// binary notification framing.
package packet

import "github.com/sabouaram/pwnet/iobuf"

// MaxBodySize is the default cap on a single packet's body length. The
// MsgPacket Parser rejects a header that declares more than this with
// ParseInvalid, which a Channel reports through OnError as
// KindInvalidPacket; KindPacketTooLarge is not reported for it.
const MaxBodySize = 4 * 1024 * 1024

// Packet is the abstract contract every wire framing implements: serialize
// itself into a growable write buffer or a flat byte slice, and reset to a
// zero value for reuse.
type Packet interface {
	SerializeTo(w *iobuf.Region) error
	Serialize() ([]byte, error)
	Clear()
}
