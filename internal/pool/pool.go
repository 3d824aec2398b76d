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

// Package pool is C10: a per-address, idle-capped pool of persistent upstream
// connections, indexed the way the teacher's httpserver.pool indexes servers by
// bind address — here it is addresses mapping to a LIFO stack of sockets
// instead of names mapping to listeners.
package pool

import (
	"net"
	"sync"
	"time"
)

type idleConn struct {
	conn    net.Conn
	idledAt time.Time
}

type addrPool struct {
	mu    sync.Mutex
	conns []idleConn
}

// Pool is a process-wide map of address -> stack of idle connections, capped
// per address and expired lazily on checkout (spec.md §4.10).
type Pool struct {
	mu       sync.Mutex
	byAddr   map[string]*addrPool
	capacity int
	idleTTL  time.Duration
	dialTO   time.Duration
}

// New builds a Pool. capacity is the max idle connections kept per address (0
// means no pooling — every checkout dials fresh and every checkin closes).
func New(capacity int, idleTTL, dialTimeout time.Duration) *Pool {
	return &Pool{
		byAddr:   make(map[string]*addrPool),
		capacity: capacity,
		idleTTL:  idleTTL,
		dialTO:   dialTimeout,
	}
}

func (p *Pool) bucket(addr string) *addrPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.byAddr[addr]
	if !ok {
		b = &addrPool{}
		p.byAddr[addr] = b
	}
	return b
}

// Checkout returns a live connection to addr, reusing a pooled one when one is
// available and still within its idle TTL, dialing fresh otherwise.
func (p *Pool) Checkout(addr string) (net.Conn, error) {
	if p.capacity > 0 {
		b := p.bucket(addr)
		b.mu.Lock()
		for len(b.conns) > 0 {
			last := len(b.conns) - 1
			c := b.conns[last]
			b.conns = b.conns[:last]
			if p.idleTTL > 0 && time.Since(c.idledAt) > p.idleTTL {
				_ = c.conn.Close()
				continue
			}
			b.mu.Unlock()
			return c.conn, nil
		}
		b.mu.Unlock()
	}

	dialTO := p.dialTO
	if dialTO <= 0 {
		dialTO = 10 * time.Second
	}
	return net.DialTimeout("tcp", addr, dialTO)
}

// Checkin returns a connection to the pool for the given address if there is
// spare capacity and the caller asserts it is still reusable (e.g. the last
// response was read to completion and framed cleanly); otherwise it closes it.
func (p *Pool) Checkin(addr string, conn net.Conn, reusable bool) {
	if !reusable || p.capacity <= 0 {
		_ = conn.Close()
		return
	}

	b := p.bucket(addr)
	b.mu.Lock()
	if len(b.conns) >= p.capacity {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.conns = append(b.conns, idleConn{conn: conn, idledAt: time.Now()})
	b.mu.Unlock()
}

// Discard closes conn without returning it to the pool, e.g. after a write or
// parse error makes the connection's framing state unknown.
func (p *Pool) Discard(conn net.Conn) {
	_ = conn.Close()
}

// DialFresh bypasses the pool entirely and dials a brand-new connection,
// per spec.md §4.9 step 2's "connect_fresh once" retry after a failed write.
func (p *Pool) DialFresh(addr string) (net.Conn, error) {
	dialTO := p.dialTO
	if dialTO <= 0 {
		dialTO = 10 * time.Second
	}
	return net.DialTimeout("tcp", addr, dialTO)
}

// Idle returns the number of currently pooled idle connections for addr.
func (p *Pool) Idle(addr string) int {
	b := p.bucket(addr)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// CloseAll closes every pooled connection across all addresses, used during
// graceful shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	buckets := make([]*addrPool, 0, len(p.byAddr))
	for _, b := range p.byAddr {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	for _, b := range buckets {
		b.mu.Lock()
		for _, c := range b.conns {
			_ = c.conn.Close()
		}
		b.conns = nil
		b.mu.Unlock()
	}
}
