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

package certificates

import (
	"crypto/tls"
	"net"
	"os"

	"github.com/sabouaram/pwnet/pkgerr"
	libsck "github.com/sabouaram/pwnet/sockaddr"
)

// Acceptor drives TLS server handshakes for accepted connections. Go's
// crypto/tls has no non-blocking handshake API, so each handshake runs to
// completion on its own goroutine against a net.Conn wrapping the raw fd
// (itself backed by the Go runtime's own netpoller, not our reactor);
// completion is delivered through a result queue drained by Pump, the
// same bounded-background-work shape spec §5 grants the Job Manager —
// this keeps every *caller-visible* state change landing on the main
// thread, even though the handshake's blocking wait happens off it.
type Acceptor struct {
	cfg     *Config
	results chan func()
}

// NewAcceptor wraps cfg for use as a listener.TLSStarter.
func NewAcceptor(cfg *Config) *Acceptor {
	return &Acceptor{cfg: cfg, results: make(chan func(), 64)}
}

// StartHandshake implements listener.TLSStarter. It takes ownership of fd:
// on any failure to adopt it as a net.Conn, fd is left for the caller to
// close; once adopted, the Acceptor's own conn owns its lifetime.
func (a *Acceptor) StartHandshake(fd int, peer libsck.Address, onDone func(fd int, session interface{}, ok bool)) error {
	f := os.NewFile(uintptr(fd), "pwnet-tls-accept")
	conn, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return pkgerr.Wrap(pkgerr.MinPkgCert, "adopt accepted fd", err)
	}

	tlsConn := tls.Server(conn, a.cfg.TLSConfig())

	go func() {
		err := tlsConn.Handshake()

		a.results <- func() {
			if err != nil {
				_ = tlsConn.Close()
				onDone(fd, nil, false)
				return
			}
			// A *tls.Conn performs its own record-layer framing over the
			// adopted net.Conn, so the completed session (not a raw fd)
			// is what the owning Channel drives from here; see
			// channel.NewTLS, which reads/writes tlsConn directly instead
			// of registering a raw fd with the reactor.
			onDone(fd, tlsConn, true)
		}
	}()

	return nil
}

// Pump delivers every completed handshake's onDone callback on the
// calling (main-loop) goroutine; call it once per tick, the same way
// Instance's JobManager.Drain is called.
func (a *Acceptor) Pump() {
	for {
		select {
		case cb := <-a.results:
			cb()
		default:
			return
		}
	}
}
