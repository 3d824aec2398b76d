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
	"errors"
	"net"

	"github.com/nabbar/migux/internal/certloader"
	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/worker"
)

// acceptLoop is C1: it owns one net.Listener and accepts connections until
// ctx is cancelled or the listener is closed by Shutdown, acquiring one
// semaphore permit per connection before spawning its handler task. The
// permit is held for the lifetime of the connection, not just the accept,
// so worker_connections caps live sockets rather than accept-rate.
func (r *Runtime) acceptLoop(ctx context.Context, ln net.Listener, handle func(net.Conn)) {
	defer r.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warnf("accept on %s: %v", ln.Addr(), err)
			continue
		}

		if err := r.sem.Acquire(ctx); err != nil {
			_ = conn.Close()
			return
		}

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer r.sem.Release()
			handle(conn)
		}()
	}
}

// handlePlain dispatches a plain-TCP connection straight to the HTTP/1
// worker loop; spec.md scopes ALPN-negotiated HTTP/2 to TLS listeners only,
// so no h2c path exists here.
func handlePlain(w *worker.Worker) func(net.Conn) {
	return func(conn net.Conn) { w.ServeConn(conn, false) }
}

// handleTLS performs the handshake inside the spawned task (C2), per
// spec.md §4.2, so a slow or hostile handshake never stalls acceptLoop. Once
// negotiated, ALPN decides whether the connection is handed to the HTTP/2
// bridge (C3) or the same HTTP/1 worker used by plain listeners.
func (r *Runtime) handleTLS(ep *tlsEndpoint) func(net.Conn) {
	return func(conn net.Conn) {
		tc := tls.Server(conn, ep.conf)
		if err := tc.Handshake(); err != nil {
			r.log.Debugf("TLS handshake failed from %s: %v", conn.RemoteAddr(), err)
			_ = tc.Close()
			return
		}
		defer tc.Close()

		if tc.ConnectionState().NegotiatedProtocol == "h2" {
			ep.bridge.ServeConn(tc)
			return
		}
		ep.worker.ServeConn(tc, true)
	}
}

// loadTLSConfig builds the *tls.Config for one TLS listen address.
func loadTLSConfig(spec *config.TLS) (*tls.Config, error) {
	cert, err := certloader.LoadKeyPair(spec.CertPath, spec.KeyPath)
	if err != nil {
		return nil, err
	}
	return certloader.BuildTLSConfig(cert, spec.HTTP2), nil
}
