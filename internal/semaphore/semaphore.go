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

// Package semaphore is the process-wide concurrency permit pool of spec.md §4.1:
// one shared counting semaphore sized to global.worker_connections, acquired by
// the accept loop (blocking) and released when a connection task ends.
package semaphore

import "context"

// Semaphore is a counting permit pool. A zero-value Semaphore is not usable; use
// New.
type Semaphore struct {
	ch chan struct{}
}

// New builds a Semaphore with cap permits available. cap <= 0 means unlimited.
func New(cap int) *Semaphore {
	if cap <= 0 {
		return &Semaphore{ch: nil}
	}
	return &Semaphore{ch: make(chan struct{}, cap)}
}

// Acquire blocks until a permit is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if s.ch == nil {
		return nil
	}
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire acquires a permit without blocking, returning false if none is free.
func (s *Semaphore) TryAcquire() bool {
	if s.ch == nil {
		return true
	}
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns one permit to the pool. Releasing more often than acquiring
// does not panic: the receive finds no token and blocks the caller until some
// later Acquire adds one, so callers must pair every successful
// Acquire/TryAcquire with exactly one Release.
func (s *Semaphore) Release() {
	if s.ch == nil {
		return
	}
	<-s.ch
}

// Cap returns the configured permit capacity, 0 meaning unlimited.
func (s *Semaphore) Cap() int {
	if s.ch == nil {
		return 0
	}
	return cap(s.ch)
}

// InUse returns the number of permits currently held.
func (s *Semaphore) InUse() int {
	if s.ch == nil {
		return 0
	}
	return len(s.ch)
}
