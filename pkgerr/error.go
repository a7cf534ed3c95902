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

package pkgerr

import "fmt"

// Error is a CodeError-carrying error that can wrap an underlying cause.
type Error interface {
	error
	Code() CodeError
	Unwrap() error
}

type wrapped struct {
	code  CodeError
	msg   string
	cause error
}

// New creates an Error with the given code and message, no wrapped cause.
func New(code CodeError, msg string) Error {
	return &wrapped{code: code, msg: msg}
}

// Wrap creates an Error with the given code, attaching cause as the Unwrap target.
func Wrap(code CodeError, msg string, cause error) Error {
	return &wrapped{code: code, msg: msg, cause: cause}
}

func (e *wrapped) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %s", e.code.String(), e.msg, e.cause.Error())
	}
	return fmt.Sprintf("[%s] %s", e.code.String(), e.msg)
}

func (e *wrapped) Code() CodeError {
	return e.code
}

func (e *wrapped) Unwrap() error {
	return e.cause
}

// Is reports whether target carries the same CodeError, supporting errors.Is.
func (e *wrapped) Is(target error) bool {
	var w *wrapped
	if t, ok := target.(*wrapped); ok {
		w = t
	} else {
		return false
	}
	return w.code == e.code
}
