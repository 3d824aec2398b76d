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

// Package worker is C5: the per-connection keep-alive loop. It reads one
// request at a time through reqread, selects a server and location through
// router, and dispatches to the static engine (C7, backed by C8) or the proxy
// engine (C9, backed by C10/C11), exactly as plain HTTP/1 and the C3 bridge's
// synthetic connections both expect.
package worker

import (
	"github.com/nabbar/migux/internal/cache"
	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/health"
	"github.com/nabbar/migux/internal/pool"
	"github.com/nabbar/migux/internal/proxy"
	"github.com/nabbar/migux/internal/router"
)

// Deps is the process-scoped, shared-after-init state spec.md §9 calls out:
// the round-robin counter map, pool map, health tracker and cache are all
// built once by internal/server and handed to every worker as a plain
// pointer set, never reached for through package-level globals.
type Deps struct {
	Servers   []*router.ServerRuntime
	HTTPConf  config.HTTP
	Upstreams map[string]config.Upstream
	Pools     map[string]*pool.Pool
	Counters  map[string]*proxy.Counters
	Tracker   *health.Tracker
	Cache     *cache.Cache
}

// Worker drives one accepted connection's keep-alive loop (spec.md §4.5).
type Worker struct {
	deps *Deps
}

// New builds a Worker bound to deps.
func New(deps *Deps) *Worker {
	return &Worker{deps: deps}
}
