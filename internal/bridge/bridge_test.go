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

package bridge_test

import (
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"golang.org/x/net/http2"

	"github.com/nabbar/migux/internal/bridge"
	"github.com/nabbar/migux/internal/reqread"
)

// echoWorker stands in for C5: it reads exactly one HTTP/1 request off conn
// and writes back a fixed response echoing the request path, the same
// contract a real connection worker offers.
func echoWorker(conn net.Conn) {
	defer conn.Close()

	reader := reqread.New(conn)
	req, err := reader.ReadRequest(
		reqread.Timeouts{Active: time.Second, Idle: time.Second},
		reqread.Limits{MaxHeaderBytes: 8192},
	)
	if err != nil {
		return
	}
	if req.HasBody() && !req.IsChunked {
		_, _ = reader.ReadExactly(req.BodyStart, int(req.ContentLength), time.Second)
	}

	body := "bridged: " + req.Path
	resp := "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
	_, _ = conn.Write([]byte(resp))
}

var _ = Describe("Bridge", func() {
	It("relays an HTTP/2 request through the HTTP/1 worker and back", func() {
		clientConn, serverConn := net.Pipe()

		b := bridge.New(echoWorker, bridge.Limits{
			ResponseTimeout:        time.Second,
			MaxResponseHeaderBytes: 8192,
		})
		go b.ServeConn(serverConn)

		tr := &http2.Transport{
			AllowHTTP: true,
			DialTLS: func(network, addr string, cfg *tls.Config) (net.Conn, error) {
				return clientConn, nil
			},
		}
		client := &http.Client{Transport: tr}

		resp, err := client.Get("https://bridge.local/hello")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(string(data)).To(Equal("bridged: /hello"))
	})
})
