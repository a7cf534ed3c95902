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

package sysinfo

import (
	"fmt"

	"github.com/sabouaram/pwnet/packet"
)

// AsPacket renders s as the body of a STAT response MsgPacket, the payload
// an admin/admin-tls listener hands back to a status probe.
func (s Snapshot) AsPacket(trid uint16) packet.MsgPacket {
	body := fmt.Sprintf(
		"uptime=%s cpu=%d host=%s load1=%.2f load5=%.2f load15=%.2f load_ok=%t rss=%d mem_ok=%t",
		s.Uptime, s.NumCPU, s.Hostname,
		s.LoadAverage.Load1, s.LoadAverage.Load5, s.LoadAverage.Load15, s.LoadAvailable,
		s.Memory.ResidentBytes, s.MemoryAvailable,
	)

	return packet.MsgPacket{
		Code: "STAT",
		TRID: trid,
		Body: []byte(body),
	}
}
