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

package reqread

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DiscardLengthBody advances past a length-delimited body the caller does not
// want to forward (e.g. a static GET with a stray body), enforcing maxBody.
func (r *Reader) DiscardLengthBody(bodyStart int, contentLength int64, maxBody int64, timeout time.Duration) error {
	if maxBody > 0 && contentLength > maxBody {
		return errBodyTooLarge()
	}
	end := bodyStart + int(contentLength)
	if _, err := r.ReadExactly(bodyStart, int(contentLength), timeout); err != nil {
		return err
	}
	r.Discard(end)
	return nil
}

// DiscardChunkedBody consumes a chunked body the caller does not want to
// forward, enforcing maxBody across the whole decoded payload, per spec.md §4.4
// "a helper discards chunked bodies while enforcing max_body_bytes".
func (r *Reader) DiscardChunkedBody(bodyStart int, maxBody int64, timeout time.Duration) error {
	offset := bodyStart
	var total int64

	for {
		line, next, err := r.ReadLine(offset, timeout)
		if err != nil {
			return err
		}
		sizeStr := string(line)
		if idx := strings.IndexByte(sizeStr, ';'); idx >= 0 {
			sizeStr = sizeStr[:idx]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
		if err != nil || size < 0 {
			return errBadRequest("malformed chunk size")
		}
		offset = next

		if size == 0 {
			// trailers: read until the blank line that ends them.
			for {
				tline, tnext, terr := r.ReadLine(offset, timeout)
				if terr != nil {
					return terr
				}
				offset = tnext
				if len(tline) == 0 {
					break
				}
			}
			r.Discard(offset)
			return nil
		}

		total += size
		if maxBody > 0 && total > maxBody {
			return errBodyTooLarge()
		}

		if _, err := r.ReadExactly(offset, int(size), timeout); err != nil {
			return err
		}
		offset += int(size)

		crlf, next2, err := r.ReadLine(offset, timeout)
		if err != nil {
			return err
		}
		if len(crlf) != 0 {
			return errBadRequest("malformed chunk terminator")
		}
		offset = next2
	}
}

// CopyLengthBody streams exactly contentLength bytes of a length-delimited
// body to w, for the proxy's request-forwarding path (spec.md §4.9 step 3).
func (r *Reader) CopyLengthBody(w io.Writer, bodyStart int, contentLength int64, maxBody int64, timeout time.Duration) error {
	if maxBody > 0 && contentLength > maxBody {
		return errBodyTooLarge()
	}
	data, err := r.ReadExactly(bodyStart, int(contentLength), timeout)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	r.Discard(bodyStart + int(contentLength))
	return nil
}

// CopyChunkedBody streams a chunked body to w, re-emitting each chunk frame
// (size-line + data + CRLF) and the terminating zero-size chunk plus trailers,
// enforcing maxBody across the whole decoded payload.
func (r *Reader) CopyChunkedBody(w io.Writer, bodyStart int, maxBody int64, timeout time.Duration) error {
	offset := bodyStart
	var total int64

	for {
		line, next, err := r.ReadLine(offset, timeout)
		if err != nil {
			return err
		}
		sizeStr := string(line)
		if idx := strings.IndexByte(sizeStr, ';'); idx >= 0 {
			sizeStr = sizeStr[:idx]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
		if err != nil || size < 0 {
			return errBadRequest("malformed chunk size")
		}
		offset = next

		if size == 0 {
			if _, err := fmt.Fprintf(w, "0\r\n"); err != nil {
				return err
			}
			for {
				tline, tnext, terr := r.ReadLine(offset, timeout)
				if terr != nil {
					return terr
				}
				offset = tnext
				if _, err := w.Write(tline); err != nil {
					return err
				}
				if _, err := io.WriteString(w, "\r\n"); err != nil {
					return err
				}
				if len(tline) == 0 {
					break
				}
			}
			r.Discard(offset)
			return nil
		}

		total += size
		if maxBody > 0 && total > maxBody {
			return errBodyTooLarge()
		}

		data, err := r.ReadExactly(offset, int(size), timeout)
		if err != nil {
			return err
		}
		offset += int(size)

		crlf, next2, err := r.ReadLine(offset, timeout)
		if err != nil {
			return err
		}
		if len(crlf) != 0 {
			return errBadRequest("malformed chunk terminator")
		}
		offset = next2

		if _, err := fmt.Fprintf(w, "%x\r\n", size); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
	}
}
