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

// Package server is C1/C2: the process-scoped dependency-injection
// container spec.md §9 asks for. Build turns a validated config.Config into
// the runtime shapes the rest of the core consumes (router.ServerRuntime,
// per-upstream pools/counters/health), grouped by listen address the way the
// teacher's httpserver.PoolServer groups Server values by bind address. Start
// owns the accept loops (C1) and TLS/ALPN dispatch (C2); see listener.go and
// runtime.go.
package server

import (
	"fmt"

	"github.com/nabbar/migux/internal/cache"
	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/health"
	"github.com/nabbar/migux/internal/pool"
	"github.com/nabbar/migux/internal/proxy"
	"github.com/nabbar/migux/internal/router"
)

// Built is the fully resolved, ready-to-serve form of a config.Config: one
// router.ServerRuntime per config.Server, grouped under every distinct
// listen address (a Server contributes to its plain listener and, if it sets
// TLS, to a second TLS listener), plus the process-wide singletons every
// worker.Deps needs.
type Built struct {
	PlainListeners map[string][]*router.ServerRuntime
	TLSListeners   map[string][]*router.ServerRuntime
	TLSSpec        map[string]*config.TLS

	HTTPConf  config.HTTP
	Upstreams map[string]config.Upstream
	Pools     map[string]*pool.Pool
	Counters  map[string]*proxy.Counters
	Tracker   *health.Tracker
	Cache     *cache.Cache
}

// Build validates cfg and resolves it into a Built. The config-level
// cross-field checks (proxy locations reference a known upstream, paths
// start with "/") already ran inside cfg.Validate(); this pass only does the
// listener-grouping and singleton construction spec.md §9 leaves to the
// core.
func Build(cfg *config.Config) (*Built, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Built{
		PlainListeners: make(map[string][]*router.ServerRuntime),
		TLSListeners:   make(map[string][]*router.ServerRuntime),
		TLSSpec:        make(map[string]*config.TLS),
		HTTPConf:       cfg.HTTPConf,
		Upstreams:      cfg.Upstreams,
		Pools:          make(map[string]*pool.Pool),
		Counters:       make(map[string]*proxy.Counters),
		Tracker:        health.NewTracker(),
		Cache:          cache.New(cfg.HTTPConf),
	}

	for name := range cfg.Upstreams {
		b.Pools[name] = pool.New(cfg.Global.PoolCapacity(), cfg.Global.PoolIdleTTL(), cfg.Global.PoolDialTimeout())
		b.Counters[name] = proxy.NewCounters()
	}

	seen := make(map[string]bool, len(cfg.Servers))
	for i := range cfg.Servers {
		srv := &cfg.Servers[i]
		if seen[srv.Listen] {
			return nil, fmt.Errorf("server %q: duplicate listen address %q", srv.ServerName, srv.Listen)
		}
		seen[srv.Listen] = true

		rt := &router.ServerRuntime{
			Name:      serverName(srv),
			Root:      srv.Root,
			Index:     srv.Index,
			TLS:       srv.TLS,
			Locations: buildLocations(cfg.Locations, srv),
		}

		b.PlainListeners[srv.Listen] = append(b.PlainListeners[srv.Listen], rt)

		if srv.TLS != nil {
			b.TLSListeners[srv.TLS.Listen] = append(b.TLSListeners[srv.TLS.Listen], rt)
			b.TLSSpec[srv.TLS.Listen] = srv.TLS
		}
	}

	return b, nil
}

func serverName(srv *config.Server) string {
	if srv.ServerName != "" {
		return srv.ServerName
	}
	return srv.Listen
}

// buildLocations resolves the config.Location entries owned by srv (matched
// on ServerListen == srv.Listen) into router.LocationRule values, injecting
// the synthetic "/" static rule router.Match's doc comment requires when
// configuration supplied none — every ServerRuntime must route at least the
// root path.
func buildLocations(locations []config.Location, srv *config.Server) []router.LocationRule {
	var rules []router.LocationRule
	for i := range locations {
		loc := &locations[i]
		if loc.ServerListen != srv.Listen {
			continue
		}
		rules = append(rules, router.LocationRule{
			Path:        loc.Path,
			Kind:        loc.Kind,
			Root:        loc.Root,
			Index:       loc.Index,
			Upstream:    loc.Upstream,
			StripPrefix: loc.StripPrefix,
			Cache:       loc.Cache,
		})
	}

	for _, r := range rules {
		if r.Path == "/" {
			return rules
		}
	}

	return append(rules, router.LocationRule{
		Path:  "/",
		Kind:  config.LocationStatic,
		Root:  srv.Root,
		Index: srv.Index,
	})
}
