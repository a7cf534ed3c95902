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

// Package config loads the INI configuration directory Instance reads at
// start and on reload (spec §4.5 "Config directory"): the well-known
// [process], [poller], [log.cmd]/[log.err], [timeout] sections plus any
// number of user-named listener sections, with every unrecognized
// section and key preserved verbatim for the caller.
package config

import (
	"strconv"
	"strings"

	"github.com/sabouaram/pwnet/pkgerr"
	"github.com/spf13/viper"
)

// ProcessMode selects single-process or pre-forked multi-process operation.
type ProcessMode string

const (
	ProcessSingle ProcessMode = "single"
	ProcessMulti  ProcessMode = "multi"
)

// Process corresponds to the [process] section.
type Process struct {
	Mode       ProcessMode
	ChildCount int
}

// Poller corresponds to the [poller] section.
type Poller struct {
	Type       string
	TimeoutMs  int
}

// Log corresponds to one of [log.cmd] / [log.err].
type Log struct {
	Path   string
	Rotate string
}

// Timeout corresponds to the [timeout] section.
type Timeout struct {
	JobMs  int
	PingMs int
}

// Listener is one user-named listener section; every key besides Port is
// carried through in Extra for the caller to interpret.
type Listener struct {
	Name  string
	Port  int
	Extra map[string]string
}

// Config is the parsed snapshot of one config directory load. Unknown is
// every section/key not recognized by the framework (spec: "Unknown
// sections and keys are preserved for the user").
type Config struct {
	Path      string
	Process   Process
	Poller    Poller
	LogCmd    Log
	LogErr    Log
	Timeout   Timeout
	Listeners map[string]Listener
	Unknown   map[string]map[string]string
}

var knownSections = map[string]bool{
	"process": true, "poller": true, "log.cmd": true, "log.err": true, "timeout": true,
}

// Load reads path as an INI file and decodes it into a Config, keeping
// every section the framework does not recognize in Unknown and every
// section with at least a "port" key as a listener.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	if err := v.ReadInConfig(); err != nil {
		return nil, pkgerr.Wrap(pkgerr.MinPkgConfig, "read config", err)
	}

	cfg := &Config{
		Path:      path,
		Listeners: make(map[string]Listener),
		Unknown:   make(map[string]map[string]string),
		Process:   Process{Mode: ProcessSingle, ChildCount: 0},
		Poller:    Poller{Type: "", TimeoutMs: 100},
		Timeout:   Timeout{JobMs: 1000, PingMs: 30000},
	}

	for _, sectionKey := range v.AllKeys() {
		section, key, ok := splitSectionKey(sectionKey)
		if !ok {
			continue
		}
		val := v.GetString(sectionKey)

		switch strings.ToLower(section) {
		case "process":
			switch strings.ToLower(key) {
			case "mode":
				if strings.EqualFold(val, string(ProcessMulti)) {
					cfg.Process.Mode = ProcessMulti
				} else {
					cfg.Process.Mode = ProcessSingle
				}
			case "childcount", "child_count":
				cfg.Process.ChildCount = v.GetInt(sectionKey)
			}
		case "poller":
			switch strings.ToLower(key) {
			case "type":
				cfg.Poller.Type = val
			case "timeout", "timeoutms", "timeout_ms":
				cfg.Poller.TimeoutMs = v.GetInt(sectionKey)
			}
		case "log.cmd":
			switch strings.ToLower(key) {
			case "path":
				cfg.LogCmd.Path = val
			case "rotate":
				cfg.LogCmd.Rotate = val
			}
		case "log.err":
			switch strings.ToLower(key) {
			case "path":
				cfg.LogErr.Path = val
			case "rotate":
				cfg.LogErr.Rotate = val
			}
		case "timeout":
			switch strings.ToLower(key) {
			case "jobms", "job_ms":
				cfg.Timeout.JobMs = v.GetInt(sectionKey)
			case "pingms", "ping_ms":
				cfg.Timeout.PingMs = v.GetInt(sectionKey)
			}
		default:
			if knownSections[strings.ToLower(section)] {
				continue
			}
			if cfg.Unknown[section] == nil {
				cfg.Unknown[section] = make(map[string]string)
			}
			cfg.Unknown[section][key] = val
		}
	}

	for section, kv := range cfg.Unknown {
		portStr, hasPort := kv["port"]
		if !hasPort {
			continue
		}
		l := Listener{Name: section, Extra: make(map[string]string)}
		for k, val := range kv {
			if k == "port" {
				if n, err := strconv.Atoi(portStr); err == nil {
					l.Port = n
				}
				continue
			}
			l.Extra[k] = val
		}
		cfg.Listeners[section] = l
		delete(cfg.Unknown, section)
	}

	return cfg, nil
}

// splitSectionKey turns viper's "section.key" AllKeys entries into their
// parts; keys with no section prefix are skipped (the framework only
// looks at sectioned INI values).
func splitSectionKey(sectionKey string) (section, key string, ok bool) {
	idx := strings.LastIndex(sectionKey, ".")
	if idx < 0 {
		return "", "", false
	}
	return sectionKey[:idx], sectionKey[idx+1:], true
}
