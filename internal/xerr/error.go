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

package xerr

import "fmt"

// Kind maps a domain error onto the surface behaviour spec.md §7 requires: the
// HTTP status to emit and whether the connection keeps the keep-alive loop going.
type Kind uint8

const (
	KindNone Kind = iota
	KindClientTimeout
	KindHeaderTooLarge
	KindBodyTooLarge
	KindBadRequest
	KindMethodNotAllowed
	KindNotFound
	KindInternal
	KindBadGateway
	KindNotImplemented
)

// Status returns the HTTP status code to send for this Kind.
func (k Kind) Status() int {
	switch k {
	case KindClientTimeout:
		return 408
	case KindHeaderTooLarge:
		return 431
	case KindBodyTooLarge:
		return 413
	case KindBadRequest:
		return 400
	case KindMethodNotAllowed:
		return 405
	case KindNotFound:
		return 404
	case KindBadGateway:
		return 502
	case KindNotImplemented:
		return 501
	default:
		return 500
	}
}

// CloseAfter reports whether the connection must be closed after this error is
// surfaced to the client; only MethodNotAllowed keeps the keep-alive loop alive.
func (k Kind) CloseAfter() bool {
	return k != KindMethodNotAllowed
}

// Error is the coded error type every migux package constructs through its own
// CodeError block. It chains an optional parent so failures keep their root cause
// without needing exception-style unwinding.
type Error interface {
	error
	Code() CodeError
	Kind() Kind
	Parent() error
	Is(CodeError) bool
}

type codedError struct {
	code CodeError
	kind Kind
	msg  string
	ctx  string
	err  error
}

// New builds a coded error with an explicit message, kind and optional parent.
func New(code CodeError, kind Kind, msg string, parent error) Error {
	return &codedError{code: code, kind: kind, msg: msg, err: parent}
}

// Wrap attaches context to an existing error without losing its kind/code when the
// wrapped error is itself a migux Error; otherwise it is treated as Internal.
func Wrap(ctx string, err error) Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(Error); ok {
		return &codedError{code: e.Code(), kind: e.Kind(), msg: e.Error(), ctx: ctx, err: e}
	}
	return &codedError{code: UNK_ERROR, kind: KindInternal, msg: err.Error(), ctx: ctx, err: err}
}

func (e *codedError) Error() string {
	if e.ctx != "" {
		return fmt.Sprintf("%s: %s", e.ctx, e.msg)
	}
	return e.msg
}

func (e *codedError) Code() CodeError { return e.code }
func (e *codedError) Kind() Kind      { return e.kind }
func (e *codedError) Parent() error   { return e.err }
func (e *codedError) Unwrap() error   { return e.err }

func (e *codedError) Is(c CodeError) bool {
	if e.code == c {
		return true
	}
	if p, ok := e.err.(Error); ok {
		return p.Is(c)
	}
	return false
}
