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

// Package xerr provides coded error handling for the migux core, in the shape of
// the teacher's own golib/errors package: every package that needs its own error
// space picks a MinPkg* offset so codes never collide across the module, each
// error carries an HTTP-like status and an optional parent chain, and the worker
// and proxy engine inspect codes (not string matching) to decide how to respond.
package xerr

// CodeError is a numeric classification, similar in spirit to an HTTP status code,
// attached to every domain error raised by the core packages.
type CodeError uint16

const (
	UNK_ERROR CodeError = 0

	MinPkgReqRead    CodeError = 100
	MinPkgRouter     CodeError = 200
	MinPkgStatic     CodeError = 300
	MinPkgCache      CodeError = 400
	MinPkgProxy      CodeError = 500
	MinPkgPool       CodeError = 600
	MinPkgHealth     CodeError = 700
	MinPkgBridge     CodeError = 800
	MinPkgWorker     CodeError = 900
	MinPkgCertLoader CodeError = 1000
	MinPkgConfig     CodeError = 1100
	MinPkgServer     CodeError = 1200
)
