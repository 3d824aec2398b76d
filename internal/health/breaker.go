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

// Package health is C11: a per-(upstream, address) breaker that tracks
// consecutive failures and trips into a cooldown window, plus an optional
// active prober that keeps the breaker state fresh between requests.
package health

import (
	"sync"
	"time"
)

// clock abstracts time.Now for deterministic tests, following the teacher's
// circuit breaker pattern.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// breaker is a two-state (closed/open) breaker: spec.md only asks for a
// threshold and a cooldown, so the half-open trial state the teacher's
// circuit breaker has is dropped rather than carried over unused.
type breaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	cooldown  time.Duration
	open      bool
	openedAt  time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &breaker{threshold: threshold, cooldown: cooldown}
}

// healthy reports whether the breaker currently allows traffic: a closed
// breaker is always healthy, an open one becomes healthy again once the
// cooldown window has elapsed (spec.md §4.11 "cooldown" invariant).
func (b *breaker) healthy(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if now.Sub(b.openedAt) >= b.cooldown {
		b.open = false
		b.failures = 0
		return true
	}
	return false
}

func (b *breaker) recordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

func (b *breaker) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.open = true
		b.openedAt = now
	}
}

// Key identifies one backend address within one named upstream.
type Key struct {
	Upstream string
	Address  string
}

// Tracker owns one breaker per (upstream, address) pair, created lazily on
// first use with the upstream's configured threshold/cooldown.
type Tracker struct {
	mu       sync.Mutex
	breakers map[Key]*breaker
	clk      clock
}

// NewTracker builds an empty, ready-to-use Tracker.
func NewTracker() *Tracker {
	return &Tracker{breakers: make(map[Key]*breaker), clk: realClock{}}
}

func (t *Tracker) get(k Key, threshold int, cooldown time.Duration) *breaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.breakers[k]
	if !ok {
		b = newBreaker(threshold, cooldown)
		t.breakers[k] = b
	}
	return b
}

// IsHealthy reports whether traffic should still be sent to this address.
func (t *Tracker) IsHealthy(k Key, threshold int, cooldown time.Duration) bool {
	b := t.get(k, threshold, cooldown)
	return b.healthy(t.clk.Now())
}

// RecordSuccess clears the failure count and closes the breaker.
func (t *Tracker) RecordSuccess(k Key, threshold int, cooldown time.Duration) {
	b := t.get(k, threshold, cooldown)
	b.recordSuccess(t.clk.Now())
}

// RecordFailure increments the failure count, tripping the breaker open once
// the threshold is reached.
func (t *Tracker) RecordFailure(k Key, threshold int, cooldown time.Duration) {
	b := t.get(k, threshold, cooldown)
	b.recordFailure(t.clk.Now())
}

// FilterHealthy returns the subset of addresses currently considered healthy
// for the given upstream. Per spec.md §4.9, when every address is unhealthy
// the caller should fall back to the full candidate list rather than fail
// outright — that fallback decision belongs to the proxy package, not here.
func (t *Tracker) FilterHealthy(upstream string, addresses []string, threshold int, cooldown time.Duration) []string {
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if t.IsHealthy(Key{Upstream: upstream, Address: addr}, threshold, cooldown) {
			out = append(out, addr)
		}
	}
	return out
}
