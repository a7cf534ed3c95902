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

package pwlog

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RotateBy selects the rotation trigger.
type RotateBy uint8

const (
	RotateDaily RotateBy = iota
	RotateBySize
)

// RotatePolicy configures RotatingFileHook.
type RotatePolicy struct {
	By      RotateBy
	MaxSize int64 // bytes, only meaningful when By == RotateBySize
}

// RotatingFileHook is a logrus.Hook writing to a single file path, rotated
// either daily (the written file is renamed with a date suffix at the
// first write after midnight) or once it exceeds MaxSize bytes.
type RotatingFileHook struct {
	mu       sync.Mutex
	path     string
	policy   RotatePolicy
	levels   []logrus.Level
	file     *os.File
	size     int64
	openedAt time.Time
}

// NewRotatingFileHook opens (creating if needed) path and returns a ready
// hook. lvls restricts firing to those levels; empty means all levels.
func NewRotatingFileHook(path string, policy RotatePolicy, lvls ...logrus.Level) (*RotatingFileHook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	levels := lvls
	if len(levels) == 0 {
		levels = logrus.AllLevels
	}

	h := &RotatingFileHook{path: path, policy: policy, levels: levels}
	if err := h.open(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *RotatingFileHook) open() error {
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	h.file = f
	h.size = info.Size()
	h.openedAt = time.Now()
	return nil
}

// Levels implements logrus.Hook.
func (h *RotatingFileHook) Levels() []logrus.Level { return h.levels }

// Fire implements logrus.Hook: rotates if due, then appends the formatted entry.
func (h *RotatingFileHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Bytes()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dueForRotation(len(line)) {
		if err := h.rotate(); err != nil {
			return err
		}
	}

	n, err := h.file.Write(line)
	h.size += int64(n)
	return err
}

func (h *RotatingFileHook) dueForRotation(nextWrite int) bool {
	switch h.policy.By {
	case RotateDaily:
		now := time.Now()
		return now.Year() != h.openedAt.Year() || now.YearDay() != h.openedAt.YearDay()
	case RotateBySize:
		return h.policy.MaxSize > 0 && h.size+int64(nextWrite) > h.policy.MaxSize
	default:
		return false
	}
}

func (h *RotatingFileHook) rotate() error {
	if h.file != nil {
		_ = h.file.Close()
	}
	rotatedName := h.path + "." + h.openedAt.Format("20060102-150405")
	_ = os.Rename(h.path, rotatedName)
	return h.open()
}

// Close implements io.Closer.
func (h *RotatingFileHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	return h.file.Close()
}
