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

// Command pwhttpmirror is a TLS-terminated HTTP service that mirrors every
// request's body back as the response body, exercising the framework's
// certificates/channel.TLSChannel wiring end to end (spec §8 scenario 2,
// "HTTPS handshake").
package main

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sabouaram/pwnet/certificates"
	"github.com/sabouaram/pwnet/channel"
	"github.com/sabouaram/pwnet/config"
	"github.com/sabouaram/pwnet/instance"
	"github.com/sabouaram/pwnet/listener"
	libptc "github.com/sabouaram/pwnet/network/protocol"
	"github.com/sabouaram/pwnet/packet/httpmsg"
	"github.com/sabouaram/pwnet/pkgerr"
	"github.com/sabouaram/pwnet/pwlog"
	libsck "github.com/sabouaram/pwnet/sockaddr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is the build-reported application version.
const Version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		flagVersion bool
		flagVerbose bool
		flagStage   bool
		flagConfig  string
	)

	exitCode := 0

	root := &cobra.Command{
		Use:           "pwhttpmirror",
		Short:         "TLS-terminated HTTP request-body mirror built on the pwnet framework",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagVersion {
				fmt.Fprintln(cmd.OutOrStdout(), "pwhttpmirror", Version)
				return nil
			}
			exitCode = serve(resolveConfigPath(flagConfig, flagStage), flagVerbose)
			return nil
		},
	}

	flags := root.Flags()
	flags.BoolVarP(&flagVersion, "version", "V", false, "print version and exit")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "enable trace logging")
	flags.StringVarP(&flagConfig, "config", "f", "pwhttpmirror.ini", "path to the INI config file")
	flags.BoolVarP(&flagStage, "stage", "s", false, "load the staged config variant instead of the default")

	if err := root.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func resolveConfigPath(path string, stage bool) string {
	if !stage {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".stage" + ext
}

// mirrorChannel is an alias for channel.TLSChannel[httpmsg.Request]; this
// daemon drives it from the main loop: Pump to deliver queued callbacks,
// CheckIdle/State to expire idle connections.
type mirrorChannel = channel.TLSChannel[httpmsg.Request]

func serve(cfgPath string, verbose bool) int {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.TraceLevel
	}
	log := pwlog.New(level)

	pollerName, timeoutMs := bootstrapPoller(cfgPath, log)

	var mu sync.Mutex
	open := make(map[*mirrorChannel]struct{})
	var acceptor *certificates.Acceptor

	hooks := instance.Hooks{
		OnConfig: func(inst *instance.Instance, isDefault, isReload bool) error {
			cfg := inst.Config()
			if cfg.LogCmd.Path != "" {
				if err := pwlog.AttachFile(log, cfg.LogCmd.Path, rotatePolicyFor(cfg.LogCmd.Rotate)); err != nil {
					return err
				}
			}
			if isReload {
				log.Info("configuration reloaded")
			}
			return nil
		},
		OnInitListener: func(inst *instance.Instance, mode instance.Mode) error {
			a, err := openMirrorListener(inst, log, &mu, open)
			acceptor = a
			return err
		},
		OnEndTurn: func(inst *instance.Instance) {
			if acceptor != nil {
				acceptor.Pump()
			}

			idleTimeout := time.Duration(inst.Config().Timeout.PingMs) * time.Millisecond
			now := time.Now()
			mu.Lock()
			for ch := range open {
				ch.Pump()
				ch.CheckIdle(now, idleTimeout)
				if ch.State() != channel.StateActive {
					_ = ch.Close()
					delete(open, ch)
				}
			}
			mu.Unlock()
		},
		OnExit: func(inst *instance.Instance) {
			log.Info("pwhttpmirror exiting")
		},
	}

	inst := instance.New("pwhttpmirror", "main", hooks)
	return inst.Start(cfgPath, pollerName, timeoutMs, instance.ModeSingle)
}

func bootstrapPoller(cfgPath string, log *logrus.Logger) (name string, timeoutMs int) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.WithError(err).Debug("pre-read config failed, falling back to auto-detected poller")
		return "", 100
	}
	timeoutMs = cfg.Poller.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 100
	}
	return cfg.Poller.Type, timeoutMs
}

func rotatePolicyFor(rotate string) pwlog.RotatePolicy {
	if strings.EqualFold(rotate, "size") {
		return pwlog.RotatePolicy{By: pwlog.RotateBySize, MaxSize: 10 * 1024 * 1024}
	}
	return pwlog.RotatePolicy{By: pwlog.RotateDaily}
}

// openMirrorListener opens the TCP listener named "https" in the config
// directory, terminates TLS on every accepted connection with the
// certificate/key pair named in that section's cert/key keys, and mirrors
// each request's body back as the response body.
func openMirrorListener(inst *instance.Instance, log *logrus.Logger, mu *sync.Mutex, open map[*mirrorChannel]struct{}) (*certificates.Acceptor, error) {
	cfg := inst.Config()
	lc, ok := cfg.Listeners["https"]
	if !ok {
		return nil, pkgerr.New(pkgerr.MinPkgConfig, "missing [https] listener section (needs port/cert/key keys)")
	}

	certPath, keyPath := lc.Extra["cert"], lc.Extra["key"]
	if certPath == "" || keyPath == "" {
		return nil, pkgerr.New(pkgerr.MinPkgConfig, "[https] listener section needs cert= and key=")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.MinPkgCert, "load TLS key pair", err)
	}

	tlsCfg := &certificates.Config{Certs: []tls.Certificate{cert}}
	if err := tlsCfg.Validate(); err != nil {
		return nil, err
	}
	acceptor := certificates.NewAcceptor(tlsCfg)

	addr, err := libsck.NewInet4(net.IPv4zero, lc.Port)
	if err != nil {
		return nil, err
	}

	var solo *listener.SoloListener
	onAccept := func(params listener.AcceptParams) bool {
		tlsConn, ok := params.TLSSession.(*tls.Conn)
		if !ok {
			return false
		}

		var ch *mirrorChannel
		ch = channel.NewTLS[httpmsg.Request](tlsConn, &httpmsg.RequestParser{}, channel.Hooks[httpmsg.Request]{
			OnReadPacket: func(req httpmsg.Request) {
				resp := mirrorResponse(req)
				if err := ch.Write(resp); err != nil {
					log.WithError(err).Warn("mirror write failed")
				}
			},
			OnError: func(kind pkgerr.CodeError, extra error) {
				log.WithField("kind", kind).WithError(extra).Debug("mirror channel closed")
			},
		})

		mu.Lock()
		open[ch] = struct{}{}
		mu.Unlock()
		return true
	}

	solo = listener.NewSolo(-1, listener.TypeService, acceptor, onAccept)
	fd, err := listener.Open(inst.Reactor, libptc.NetworkTCP, addr, solo)
	if err != nil {
		return nil, err
	}
	solo.Bind(fd)

	log.WithField("port", lc.Port).Info("https mirror listener ready")
	return acceptor, nil
}

func mirrorResponse(req httpmsg.Request) *httpmsg.Response {
	var body []byte
	if req.Req != nil && req.Req.Body != nil {
		body, _ = io.ReadAll(req.Req.Body)
	}

	resp := &http.Response{
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
	return &httpmsg.Response{Resp: resp}
}
