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

// Package proxy is C9: candidate ordering, header rewrite, and request/response
// relaying against an upstream pool.
package proxy

import (
	"sync"
	"sync/atomic"

	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/health"
)

// Counters holds one atomic rotation counter per upstream name, shared across
// every request the proxy engine handles for that upstream (spec.md §4.5:
// "a round-robin counter map ... concurrent map with fine-grained per-key
// locking").
type Counters struct {
	mu  sync.Mutex
	ctr map[string]*uint64
}

// NewCounters builds an empty counter map.
func NewCounters() *Counters {
	return &Counters{ctr: make(map[string]*uint64)}
}

func (c *Counters) next(name string) uint64 {
	c.mu.Lock()
	p, ok := c.ctr[name]
	if !ok {
		var v uint64
		p = &v
		c.ctr[name] = p
	}
	c.mu.Unlock()
	return atomic.AddUint64(p, 1) - 1
}

// Order returns the candidate address list for one request against upstream,
// per spec.md §4.9: single-address upstreams and non-round_robin strategies
// pass through unchanged; round_robin rotates by an atomically incremented
// counter, then filters to healthy addresses, falling back to the unfiltered
// rotation when every address is currently unhealthy.
func Order(name string, up config.Upstream, counters *Counters, tracker *health.Tracker) []string {
	addrs := up.Addresses
	if len(addrs) <= 1 {
		return addrs
	}
	if up.Strategy != config.StrategyRoundRobin {
		return addrs
	}

	i := counters.next(name) % uint64(len(addrs))
	rotated := make([]string, len(addrs))
	for j := range addrs {
		rotated[j] = addrs[(int(i)+j)%len(addrs)]
	}

	if tracker == nil {
		return rotated
	}
	healthy := tracker.FilterHealthy(name, rotated, up.HealthCfg.FailThreshold, up.HealthCfg.Cooldown())
	if len(healthy) == 0 {
		return rotated
	}
	return healthy
}
