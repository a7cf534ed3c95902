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
	"bytes"
	"fmt"
	"strconv"

	"github.com/sabouaram/pwnet/iobuf"
	"github.com/sabouaram/pwnet/pkgerr"
)

// Flag bit positions within FLAG_BITS, bit 0 (leftmost char) is compressed.
const (
	FlagCompressed uint8 = 1 << iota
	FlagEncrypted
	FlagChunked
)

// MinHeaderSize is the shortest a valid header line can be: a 1-char code,
// TRID, a single flag digit, a 1-digit body length, and the CRLF.
const MinHeaderSize = len("C 0 0 0\r\n")

// MaxHeaderSize bounds how many header bytes may arrive before the
// terminating CRLF without the header being rejected outright: a 4-char
// code, a uint16 TRID, 3-char flag bits, a uint32 body_len, uint32
// chunk_total and chunk_index, a 256-byte appendix, the separating spaces,
// and the CRLF. The sum counts eight bytes for the spaces where that worst
// case has six, so a fragmented but legitimate header never exceeds it
// before its CRLF arrives.
const MaxHeaderSize = 4 + 5 + 3 + 10 + 10 + 10 + 256 + 8 + 2

// MsgPacket is the default text/binary framed message:
//
//	CODE SP TRID SP FLAG_BITS SP BODY_LEN[ SP CHUNK_TOTAL CHUNK_INDEX][ SP APPENDIX]\r\n
//	<BODY_LEN bytes>
type MsgPacket struct {
	Code        string
	TRID        uint16
	Flags       uint8
	ChunkTotal  uint32
	ChunkIndex  uint32
	Appendix    string
	Body        []byte
}

// Clear resets the packet to its zero value for reuse.
func (p *MsgPacket) Clear() {
	p.Code = ""
	p.TRID = 0
	p.Flags = 0
	p.ChunkTotal = 0
	p.ChunkIndex = 0
	p.Appendix = ""
	p.Body = nil
}

func (p *MsgPacket) flagBits() string {
	if p.Flags == 0 {
		return "0"
	}
	buf := make([]byte, 3)
	for i := 0; i < 3; i++ {
		if p.Flags&(1<<uint(i)) != 0 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}

// Serialize renders the full header+body wire form as a flat byte slice.
func (p *MsgPacket) Serialize() ([]byte, error) {
	buf := iobuf.New(MinHeaderSize + len(p.Body))
	if err := p.SerializeTo(buf); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Grab()...), nil
}

// SerializeTo writes the header+body into w's write region.
func (p *MsgPacket) SerializeTo(w *iobuf.Region) error {
	if len(p.Body) > MaxBodySize {
		return pkgerr.New(pkgerr.MinPkgPacket, "body exceeds MAX_BODY_SIZE")
	}

	var hdr bytes.Buffer
	fmt.Fprintf(&hdr, "%s %d %s %d", p.Code, p.TRID, p.flagBits(), len(p.Body))
	if p.Flags&FlagChunked != 0 {
		fmt.Fprintf(&hdr, " %d %d", p.ChunkTotal, p.ChunkIndex)
	}
	if p.Appendix != "" {
		fmt.Fprintf(&hdr, " %s", p.Appendix)
	}
	hdr.WriteString("\r\n")

	dst := w.GrabWritable(hdr.Len() + len(p.Body))
	n := copy(dst, hdr.Bytes())
	n += copy(dst[n:], p.Body)
	w.CommitWritten(n)
	return nil
}

// ParseResult reports how a single parse attempt over a read Region advanced.
type ParseResult int

const (
	// ParseNeedMore means fewer than MIN_HEADER_SIZE bytes (or a parked
	// header's remaining body) were available; the caller should wait for
	// more read data before retrying.
	ParseNeedMore ParseResult = iota
	// ParseOK means a complete packet was parsed and bytes consumed.
	ParseOK
	// ParseInvalid means the header was structurally malformed or violated
	// an invariant (chunked total>0 with index==0, oversized body).
	ParseInvalid
)

// Parser incrementally decodes MsgPacket frames out of a shared read Region,
// parking a parsed header across read events until its full body arrives.
type Parser struct {
	headerParsed bool
	pending      MsgPacket
	bodyLen      int
}

// Parse attempts to decode one MsgPacket out of r. On ParseOK, r.Commit has
// already consumed the header+body bytes and out is populated.
func (p *Parser) Parse(r *iobuf.Region) (ParseResult, MsgPacket, error) {
	if !p.headerParsed {
		data := r.Grab()
		idx := bytes.Index(data, []byte("\r\n"))
		if idx < 0 {
			if len(data) < MinHeaderSize {
				return ParseNeedMore, MsgPacket{}, nil
			}
			if len(data) > MaxHeaderSize {
				return ParseInvalid, MsgPacket{}, pkgerr.New(pkgerr.MinPkgPacket, "header too large without CRLF")
			}
			return ParseNeedMore, MsgPacket{}, nil
		}

		hdr, err := parseHeaderLine(data[:idx])
		if err != nil {
			return ParseInvalid, MsgPacket{}, err
		}
		if hdr.bodyLen > MaxBodySize {
			return ParseInvalid, MsgPacket{}, pkgerr.New(pkgerr.MinPkgPacket, "body_len exceeds MAX_BODY_SIZE")
		}

		r.Commit(idx + 2)
		p.pending = hdr.pkt
		p.bodyLen = hdr.bodyLen
		p.headerParsed = true
	}

	data := r.Grab()
	if len(data) < p.bodyLen {
		return ParseNeedMore, MsgPacket{}, nil
	}

	body := make([]byte, p.bodyLen)
	copy(body, data[:p.bodyLen])
	r.Commit(p.bodyLen)

	out := p.pending
	out.Body = body
	p.headerParsed = false
	p.pending = MsgPacket{}
	p.bodyLen = 0

	return ParseOK, out, nil
}

type parsedHeader struct {
	pkt     MsgPacket
	bodyLen int
}

func parseHeaderLine(line []byte) (parsedHeader, error) {
	fields := bytes.Fields(line)
	if len(fields) < 4 {
		return parsedHeader{}, pkgerr.New(pkgerr.MinPkgPacket, "header has too few fields")
	}

	code := string(fields[0])
	if len(code) > 4 {
		return parsedHeader{}, pkgerr.New(pkgerr.MinPkgPacket, "code longer than 4 bytes")
	}

	trid64, err := strconv.ParseUint(string(fields[1]), 10, 16)
	if err != nil {
		return parsedHeader{}, pkgerr.Wrap(pkgerr.MinPkgPacket, "invalid trid", err)
	}

	flags, err := parseFlagBits(fields[2])
	if err != nil {
		return parsedHeader{}, err
	}

	bodyLen64, err := strconv.ParseUint(string(fields[3]), 10, 32)
	if err != nil {
		return parsedHeader{}, pkgerr.Wrap(pkgerr.MinPkgPacket, "invalid body_len", err)
	}

	pkt := MsgPacket{Code: code, TRID: uint16(trid64), Flags: flags}
	next := 4

	if flags&FlagChunked != 0 {
		if len(fields) < next+2 {
			return parsedHeader{}, pkgerr.New(pkgerr.MinPkgPacket, "chunked header missing total/index")
		}
		total, err := strconv.ParseUint(string(fields[next]), 10, 32)
		if err != nil {
			return parsedHeader{}, pkgerr.Wrap(pkgerr.MinPkgPacket, "invalid chunk_total", err)
		}
		index, err := strconv.ParseUint(string(fields[next+1]), 10, 32)
		if err != nil {
			return parsedHeader{}, pkgerr.Wrap(pkgerr.MinPkgPacket, "invalid chunk_index", err)
		}
		if total > 0 && index == 0 {
			return parsedHeader{}, pkgerr.New(pkgerr.MinPkgPacket, "chunk total>0 with index==0 is invalid")
		}
		pkt.ChunkTotal = uint32(total)
		pkt.ChunkIndex = uint32(index)
		next += 2
	}

	if len(fields) > next {
		pkt.Appendix = string(fields[next])
	}

	return parsedHeader{pkt: pkt, bodyLen: int(bodyLen64)}, nil
}

func parseFlagBits(field []byte) (uint8, error) {
	if len(field) == 1 && field[0] == '0' {
		return 0, nil
	}
	if len(field) > 3 {
		return 0, pkgerr.New(pkgerr.MinPkgPacket, "flag_bits longer than 3 chars")
	}
	var flags uint8
	for i, c := range field {
		switch c {
		case '1':
			flags |= 1 << uint(i)
		case '0':
			// no bit set
		default:
			return 0, pkgerr.New(pkgerr.MinPkgPacket, "flag_bits must be 0/1")
		}
	}
	return flags, nil
}
