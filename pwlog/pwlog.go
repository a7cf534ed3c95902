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

// Package pwlog provides the structured logger every component logs
// through: a logrus.Logger plus a rotating file hook for the [log.cmd]
// and [log.err] destinations the config package parses (spec §6
// "Persisted state": "Log files, rotated daily or by size; the
// framework owns only their filenames and rotation timestamps").
package pwlog

import (
	"github.com/sirupsen/logrus"
)

// New creates a *logrus.Logger with a text formatter and the given level,
// writing to os.Stderr by default until file hooks are attached.
func New(level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}

// AttachFile wires a RotatingFileHook for path to log, restricted to the
// given levels (or every level when lvls is empty), rotating per policy.
func AttachFile(log *logrus.Logger, path string, policy RotatePolicy, lvls ...logrus.Level) error {
	hook, err := NewRotatingFileHook(path, policy, lvls...)
	if err != nil {
		return err
	}
	log.AddHook(hook)
	return nil
}
