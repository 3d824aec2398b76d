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

// Package router is C6: server selection for a listener and longest-prefix
// location matching within the selected server.
package router

import "github.com/nabbar/migux/internal/config"

// LocationRule is the runtime form of config.Location, resolved against its
// owning ServerRuntime's defaults (root/index) once at startup.
type LocationRule struct {
	Path        string
	Kind        config.LocationKind
	Root        string
	Index       string
	Upstream    string
	StripPrefix bool
	Cache       config.TriState
}

// ServerRuntime is the immutable, shared-after-init server value spec.md §3
// describes. Locations is guaranteed non-empty by the constructor that builds it
// (internal/server injects the synthetic "/" rule when configuration supplied
// none).
type ServerRuntime struct {
	Name      string
	Root      string
	Index     string
	TLS       *config.TLS
	Locations []LocationRule
}

// Selector picks a ServerRuntime for a listener. Today's contract is "the first
// server of this listener" (spec.md §4.6); the function type exists so a future
// Host/SNI-based selector is a drop-in replacement without touching callers.
type Selector func(servers []*ServerRuntime, hostHeader string) *ServerRuntime

// SelectFirst is the current Selector: the first server bound to a listener.
func SelectFirst(servers []*ServerRuntime, _ string) *ServerRuntime {
	if len(servers) == 0 {
		return nil
	}
	return servers[0]
}

// Match returns the LocationRule whose Path is the longest prefix of path among
// all rules whose Path prefixes it; ties are broken by configuration order
// (first rule wins), matching spec.md §8 property 2. Locations is guaranteed
// non-empty, so Match always returns a rule.
func Match(locations []LocationRule, path string) *LocationRule {
	var best *LocationRule
	bestLen := -1

	for i := range locations {
		loc := &locations[i]
		if hasPrefix(path, loc.Path) && len(loc.Path) > bestLen {
			best = loc
			bestLen = len(loc.Path)
		}
	}

	if best == nil {
		return &locations[0]
	}
	return best
}

func hasPrefix(path, prefix string) bool {
	if len(prefix) > len(path) {
		return false
	}
	return path[:len(prefix)] == prefix
}
