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

package health

import (
	"context"
	"net"
	"time"

	"github.com/nabbar/migux/internal/xlog"
)

// ProbeTarget is one (upstream, address) pair an active prober dials on a
// fixed interval, independent of live traffic — a supplemented feature
// original_source/ carries (a periodic backend health sweep) that the
// distilled spec only gestures at via Health.Active.
type ProbeTarget struct {
	Upstream string
	Address  string
	Timeout  time.Duration
}

// Prober runs one ticker per upstream and dials every configured address,
// feeding the result straight into the shared Tracker so the next proxied
// request sees up-to-date health without having paid for a failed dial itself.
type Prober struct {
	tracker   *Tracker
	log       *xlog.Logger
	threshold int
	cooldown  time.Duration
}

// NewProber builds a Prober bound to the given Tracker.
func NewProber(tracker *Tracker, threshold int, cooldown time.Duration) *Prober {
	return &Prober{tracker: tracker, log: xlog.Named("health-prober"), threshold: threshold, cooldown: cooldown}
}

// Run ticks at interval, dialing every target on each tick, until ctx is
// cancelled. Intended to be started once per upstream with Health.Active set.
func (p *Prober) Run(ctx context.Context, interval time.Duration, targets []ProbeTarget) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.probeAll(targets)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(targets)
		}
	}
}

func (p *Prober) probeAll(targets []ProbeTarget) {
	for _, tgt := range targets {
		p.probeOne(tgt)
	}
}

func (p *Prober) probeOne(tgt ProbeTarget) {
	timeout := tgt.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	key := Key{Upstream: tgt.Upstream, Address: tgt.Address}

	conn, err := net.DialTimeout("tcp", tgt.Address, timeout)
	if err != nil {
		p.tracker.RecordFailure(key, p.threshold, p.cooldown)
		p.log.Debugf("active probe failed for %s/%s: %v", tgt.Upstream, tgt.Address, err)
		return
	}
	_ = conn.Close()
	p.tracker.RecordSuccess(key, p.threshold, p.cooldown)
}
