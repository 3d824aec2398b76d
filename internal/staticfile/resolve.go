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

// Package staticfile is C7: path resolution with traversal guards, conditional
// GET, and file metadata for Static locations. Body emission (buffered or
// streamed) is done by the worker, not by this package.
package staticfile

import (
	"path"
	"strings"

	"github.com/nabbar/migux/internal/router"
)

// ResolveRelativePath implements spec.md §4.7/§8 property 3: it rejects any
// request whose decoded path contains a ".." segment, a backslash, or a
// doubled slash, and otherwise returns the on-disk path to serve.
//
// The decode step is the "minimal percent-decode of '.', '/', '\\'" spec.md §4.7
// names: only those three characters are unescaped before the safety check, so
// %2e%2e%2f cannot smuggle a traversal past the guard.
func ResolveRelativePath(reqPath string, loc *router.LocationRule, index string) (string, bool) {
	decoded := minimalPercentDecode(reqPath)

	if containsTraversal(decoded) {
		return "", false
	}

	if !hasPrefix(decoded, loc.Path) {
		return "", false
	}

	var rel string
	switch {
	case decoded == loc.Path || (decoded == "/" && loc.Path == "/"):
		rel = index
	case len(decoded) > len(loc.Path):
		rel = strings.TrimPrefix(decoded[len(loc.Path):], "/")
		if rel == "" {
			rel = index
		}
	default:
		return "", false
	}

	if rel == "" {
		return "", false
	}

	root := loc.Root
	return path.Join(root, rel), true
}

func hasPrefix(p, prefix string) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)] == prefix
}

func containsTraversal(p string) bool {
	if strings.Contains(p, "\\") || strings.Contains(p, "//") {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// minimalPercentDecode unescapes only %2e (.), %2f (/) and %5c (\), leaving any
// other percent-escape untouched: spec.md §4.7 deliberately does not want a full
// URL-decode here, only enough to catch encoded traversal attempts.
func minimalPercentDecode(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			switch strings.ToLower(s[i : i+3]) {
			case "%2e":
				b.WriteByte('.')
				i += 2
				continue
			case "%2f":
				b.WriteByte('/')
				i += 2
				continue
			case "%5c":
				b.WriteByte('\\')
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
