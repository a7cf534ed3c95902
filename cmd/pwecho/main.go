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

// Command pwecho is a minimal message-packet echo service: every MsgPacket
// a peer sends back over a service listener is written back unchanged,
// exercising the framework's channel/listener/instance wiring end to end
// (spec §8 scenario 1, "Echo over TCP").
package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sabouaram/pwnet/channel"
	"github.com/sabouaram/pwnet/config"
	"github.com/sabouaram/pwnet/instance"
	"github.com/sabouaram/pwnet/listener"
	libptc "github.com/sabouaram/pwnet/network/protocol"
	"github.com/sabouaram/pwnet/packet"
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
		Use:           "pwecho",
		Short:         "Message-packet echo service built on the pwnet framework",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagVersion {
				fmt.Fprintln(cmd.OutOrStdout(), "pwecho", Version)
				return nil
			}
			exitCode = serve(resolveConfigPath(flagConfig, flagStage), flagVerbose)
			return nil
		},
	}

	flags := root.Flags()
	flags.BoolVarP(&flagVersion, "version", "V", false, "print version and exit")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "enable trace logging")
	flags.StringVarP(&flagConfig, "config", "f", "pwecho.ini", "path to the INI config file")
	flags.BoolVarP(&flagStage, "stage", "s", false, "load the staged config variant instead of the default")

	if err := root.Execute(); err != nil {
		return 1
	}
	return exitCode
}

// resolveConfigPath applies -s: pwecho.ini becomes pwecho.stage.ini.
func resolveConfigPath(path string, stage bool) string {
	if !stage {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".stage" + ext
}

func serve(cfgPath string, verbose bool) int {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.TraceLevel
	}
	log := pwlog.New(level)

	pollerName, timeoutMs := bootstrapPoller(cfgPath, log)

	var mu sync.Mutex
	open := make(map[*channel.Channel[packet.MsgPacket]]struct{})

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
			return openEchoListener(inst, log, &mu, open)
		},
		OnEndTurn: func(inst *instance.Instance) {
			idleTimeout := time.Duration(inst.Config().Timeout.PingMs) * time.Millisecond
			now := time.Now()
			mu.Lock()
			for ch := range open {
				ch.CheckIdle(now, idleTimeout)
				if ch.State() != channel.StateActive {
					_ = ch.Close()
					delete(open, ch)
				}
			}
			mu.Unlock()
		},
		OnExit: func(inst *instance.Instance) {
			log.Info("pwecho exiting")
		},
	}

	inst := instance.New("pwecho", "main", hooks)
	return inst.Start(cfgPath, pollerName, timeoutMs, instance.ModeSingle)
}

// bootstrapPoller pre-reads the config once to learn the poller settings
// Instance.Start needs before it can load the config itself; on any
// failure here Start's own load will surface the real error.
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

// openEchoListener opens the TCP listener named "echo" in the config
// directory and accepts connections as plain (non-TLS) MsgPacket channels
// that write back whatever they read.
func openEchoListener(inst *instance.Instance, log *logrus.Logger, mu *sync.Mutex, open map[*channel.Channel[packet.MsgPacket]]struct{}) error {
	cfg := inst.Config()
	lc, ok := cfg.Listeners["echo"]
	if !ok {
		return pkgerr.New(pkgerr.MinPkgConfig, "missing [echo] listener section (needs a port= key)")
	}

	addr, err := libsck.NewInet4(net.IPv4zero, lc.Port)
	if err != nil {
		return err
	}

	var solo *listener.SoloListener
	onAccept := func(params listener.AcceptParams) bool {
		var ch *channel.Channel[packet.MsgPacket]
		ch = channel.New[packet.MsgPacket](inst.Reactor, params.FD, &packet.Parser{}, channel.Hooks[packet.MsgPacket]{
			OnReadPacket: func(pkt packet.MsgPacket) {
				p := pkt
				if err := ch.Write(&p); err != nil {
					log.WithError(err).Warn("echo write failed")
				}
			},
			OnError: func(kind pkgerr.CodeError, extra error) {
				log.WithField("kind", kind).WithError(extra).Debug("echo channel closed")
			},
		})
		if err := ch.Register(0); err != nil {
			log.WithError(err).Warn("register echo channel failed")
			return false
		}
		mu.Lock()
		open[ch] = struct{}{}
		mu.Unlock()
		return true
	}

	solo = listener.NewSolo(-1, listener.TypeService, nil, onAccept)
	fd, err := listener.Open(inst.Reactor, libptc.NetworkTCP, addr, solo)
	if err != nil {
		return err
	}
	solo.Bind(fd)

	log.WithField("port", lc.Port).Info("echo listener ready")
	return nil
}
