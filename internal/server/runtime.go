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

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nabbar/migux/internal/bridge"
	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/health"
	"github.com/nabbar/migux/internal/metrics"
	"github.com/nabbar/migux/internal/router"
	"github.com/nabbar/migux/internal/semaphore"
	"github.com/nabbar/migux/internal/worker"
	"github.com/nabbar/migux/internal/xlog"
)

const (
	shutdownTimeout    = 10 * time.Second
	cacheGaugeInterval = 5 * time.Second
)

// tlsEndpoint bundles the per-listener pieces a TLS bind address needs: its
// own worker (the servers bound to that address may differ from the plain
// listener sharing the same config.Server), an HTTP/2 bridge wrapping that
// same worker, and the loaded *tls.Config.
type tlsEndpoint struct {
	worker *worker.Worker
	bridge *bridge.Bridge
	conf   *tls.Config
}

// Runtime is the running process: every accept loop (C1), the shared
// concurrency semaphore, the per-listener C5 workers and C3 bridges they
// dispatch into, and the active health probers (one per upstream with
// health.active set). Grounded on the teacher's httpserver.pool, which keeps
// a single container of servers keyed by bind address and offers one
// WaitNotify/Shutdown pair for the whole set instead of one per server.
type Runtime struct {
	built *Built

	plainWorkers map[string]*worker.Worker
	tlsEndpoints map[string]*tlsEndpoint

	sem *semaphore.Semaphore
	log *xlog.Logger

	listeners []net.Listener
	wg        sync.WaitGroup

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a Runtime from a validated config.Config, loading every TLS
// listener's certificate up front so a bad cert/key pair fails New
// rather than mid-handshake. It does not bind any socket; call Start for
// that.
func New(cfg *config.Config) (*Runtime, error) {
	built, err := Build(cfg)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		built:        built,
		plainWorkers: make(map[string]*worker.Worker),
		tlsEndpoints: make(map[string]*tlsEndpoint),
		sem:          semaphore.New(cfg.Global.WorkerConnections),
		log:          xlog.Named("server"),
		done:         make(chan struct{}),
	}

	for addr, servers := range built.PlainListeners {
		r.plainWorkers[addr] = newWorker(built, servers)
	}

	for addr, servers := range built.TLSListeners {
		w := newWorker(built, servers)
		spec := built.TLSSpec[addr]

		tlsConf, lerr := loadTLSConfig(spec)
		if lerr != nil {
			return nil, fmt.Errorf("tls listener %q: %w", addr, lerr)
		}

		r.tlsEndpoints[addr] = &tlsEndpoint{
			worker: w,
			conf:   tlsConf,
			bridge: bridge.New(func(conn net.Conn) { w.ServeConn(conn, true) }, bridge.Limits{
				ResponseTimeout:        built.HTTPConf.ClientReadTimeout(),
				MaxResponseHeaderBytes: built.HTTPConf.MaxUpstreamResponseHeaderBytes,
			}),
		}
	}

	return r, nil
}

func newWorker(built *Built, servers []*router.ServerRuntime) *worker.Worker {
	return worker.New(&worker.Deps{
		Servers:   servers,
		HTTPConf:  built.HTTPConf,
		Upstreams: built.Upstreams,
		Pools:     built.Pools,
		Counters:  built.Counters,
		Tracker:   built.Tracker,
		Cache:     built.Cache,
	})
}

// Start binds every listen address and launches its accept loop (C1), plus
// one active health prober per upstream that sets health.active. It returns
// once every listener is bound; Shutdown (or WaitNotify) stops everything it
// started.
func (r *Runtime) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for addr, w := range r.plainWorkers {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			r.Shutdown(context.Background())
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		r.listeners = append(r.listeners, ln)
		r.log.Infof("listening (plain) on %s", addr)

		r.wg.Add(1)
		go r.acceptLoop(ctx, ln, handlePlain(w))
	}

	for addr, ep := range r.tlsEndpoints {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			r.Shutdown(context.Background())
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		r.listeners = append(r.listeners, ln)
		r.log.Infof("listening (tls) on %s", addr)

		r.wg.Add(1)
		go r.acceptLoop(ctx, ln, r.handleTLS(ep))
	}

	r.startProbers(ctx)
	r.startCacheGaugeSync(ctx)

	return nil
}

// startCacheGaugeSync periodically mirrors the cache's cumulative counters
// into the metrics gauges exposed on /_migux/metrics, since cache.Cache
// itself has no subscriber/callback hook to push updates as they happen.
func (r *Runtime) startCacheGaugeSync(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(cacheGaugeInterval)
		defer ticker.Stop()
		for {
			snap := r.built.Cache.Snapshot()
			metrics.SyncCacheGauges(metrics.CacheSnapshot{
				MemoryHits:   snap.MemoryHits,
				MemoryMisses: snap.MemoryMisses,
				DiskHits:     snap.DiskHits,
				DiskMisses:   snap.DiskMisses,
				DiskBytes:    snap.DiskBytes,
			})
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// startProbers launches one health.Prober per upstream with HealthCfg.Active
// set, dialing every address on HealthCfg.Interval() until ctx is cancelled.
func (r *Runtime) startProbers(ctx context.Context) {
	for name, up := range r.built.Upstreams {
		if !up.HealthCfg.Active {
			continue
		}

		targets := make([]health.ProbeTarget, 0, len(up.Addresses))
		for _, addr := range up.Addresses {
			targets = append(targets, health.ProbeTarget{
				Upstream: name,
				Address:  addr,
				Timeout:  up.HealthCfg.Timeout(),
			})
		}

		prober := health.NewProber(r.built.Tracker, up.HealthCfg.FailThreshold, up.HealthCfg.Cooldown())
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			prober.Run(ctx, up.HealthCfg.Interval(), targets)
		}()
	}
}

// WaitNotify blocks until SIGINT, SIGTERM or SIGQUIT is received, then runs
// Shutdown with the package's default grace period. Grounded on the
// teacher's httpserver.server.WaitNotify, generalized from one server's
// signal.Notify/Shutdown pair to the whole Runtime's.
func (r *Runtime) WaitNotify() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	r.Shutdown(ctx)
}

// Shutdown stops every accept loop and health prober, closes all listeners,
// and waits for in-flight connections to drain or ctx to expire, whichever
// comes first.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.closeOnce.Do(func() {
		r.log.Infof("shutting down...")
		if r.cancel != nil {
			r.cancel()
		}
		for _, ln := range r.listeners {
			_ = ln.Close()
		}
		close(r.done)
	})

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		r.log.Warnf("shutdown deadline reached with connections still draining")
	}
}
