/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package pkgerr defines the closed set of error kinds surfaced by the
// reactor/channel/listener/instance fabric (spec §7) as numeric codes, the
// same way nabbar-golib/errors reserves one numeric range per package.
package pkgerr

// CodeError is a small numeric error code, grouped by package range below.
type CodeError uint16

// Per-package reserved ranges, mirroring nabbar-golib/errors' MinPkgXxx table.
const (
	UnknownError CodeError = 0

	MinPkgSockAddr CodeError = 100
	MinPkgIOBuf    CodeError = 200
	MinPkgReactor  CodeError = 300
	MinPkgSocket   CodeError = 400
	MinPkgPacket   CodeError = 500
	MinPkgChannel  CodeError = 600
	MinPkgListener CodeError = 700
	MinPkgPool     CodeError = 800
	MinPkgInstance CodeError = 900
	MinPkgConfig   CodeError = 1000
	MinPkgIPRange  CodeError = 1100
	MinPkgSysInfo  CodeError = 1200
	MinPkgLogger   CodeError = 1300
	MinPkgTimer    CodeError = 1400
	MinPkgCert     CodeError = 1500

	MinAvailable CodeError = 2000
)

// Error kinds, the closed set from spec §7.
const (
	KindConfigInvalid CodeError = MinPkgConfig + iota
	KindListenerOpenFailed
	KindAcceptFailed
	KindFDPassFailed
	KindConnectFailed
	KindReadClosed
	KindReadFailed
	KindWriteFailed
	KindTLSFailed
	KindInvalidPacket
	KindPacketTooLarge
	KindPingTimeout
	KindChildDied
	KindForkFailed
)

// String renders a human label for the code; unknown codes render numerically.
func (c CodeError) String() string {
	switch c {
	case KindConfigInvalid:
		return "config_invalid"
	case KindListenerOpenFailed:
		return "listener_open_failed"
	case KindAcceptFailed:
		return "accept_failed"
	case KindFDPassFailed:
		return "fd_pass_failed"
	case KindConnectFailed:
		return "connect_failed"
	case KindReadClosed:
		return "read_closed"
	case KindReadFailed:
		return "read_failed"
	case KindWriteFailed:
		return "write_failed"
	case KindTLSFailed:
		return "tls_failed"
	case KindInvalidPacket:
		return "invalid_packet"
	case KindPacketTooLarge:
		return "packet_too_large"
	case KindPingTimeout:
		return "ping_timeout"
	case KindChildDied:
		return "child_died"
	case KindForkFailed:
		return "fork_failed"
	case UnknownError:
		return "unknown_error"
	default:
		return "code_error"
	}
}
