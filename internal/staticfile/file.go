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

package staticfile

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// httpTimeFormat is net/http.TimeFormat's layout, the GMT-suffixed HTTP-date
// RFC 7231 requires for Last-Modified (not time.RFC1123, which echoes the
// input time's own zone name).
const httpTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// ResolvedFile is the ephemeral per-request value spec.md §3 describes.
type ResolvedFile struct {
	Path        string
	Size        int64
	ModNanos    int64
	ETag        string
	LastMod     string
	ContentType string
}

var extFastPath = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".ico":  "image/x-icon",
	".wasm": "application/wasm",
}

// Stat resolves file metadata into a ResolvedFile, computing the weak ETag and
// Last-Modified values spec.md §3 defines, and the content-type via the
// extension fast-path falling back to mime.TypeByExtension.
func Stat(diskPath string) (*ResolvedFile, error) {
	fi, err := os.Stat(diskPath)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, os.ErrNotExist
	}

	modNanos := fi.ModTime().UnixNano()
	size := fi.Size()

	ext := strings.ToLower(filepath.Ext(diskPath))
	ctype, ok := extFastPath[ext]
	if !ok {
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			ctype = guessed
		} else {
			ctype = "application/octet-stream"
		}
	}

	return &ResolvedFile{
		Path:        diskPath,
		Size:        size,
		ModNanos:    modNanos,
		ETag:        fmt.Sprintf(`W/"%d-%d"`, size, modNanos),
		LastMod:     fi.ModTime().UTC().Format(httpTimeFormat),
		ContentType: ctype,
	}, nil
}
