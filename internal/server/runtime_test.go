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

package server_test

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/server"
)

// generateTempCert writes a short-lived self-signed EC certificate/key pair
// to dir, mirroring the teacher's httpserver/testhelpers.GenerateTempCert
// (ECDSA P256, "localhost"/"127.0.0.1" SANs).
func generateTempCert(dir string) (certPath, keyPath string) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).NotTo(HaveOccurred())

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	Expect(err).NotTo(HaveOccurred())

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	Expect(writePEM(certPath, "CERTIFICATE", der)).To(Succeed())

	keyBytes, err := x509.MarshalECPrivateKey(key)
	Expect(err).NotTo(HaveOccurred())
	Expect(writePEM(keyPath, "EC PRIVATE KEY", keyBytes)).To(Succeed())

	return certPath, keyPath
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}

func freePort() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func httpGET(addr, path string) (status string, body string) {
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	Expect(err).NotTo(HaveOccurred())
	defer conn.Close()

	_, _ = conn.Write([]byte("GET " + path + " HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"))
	r := bufio.NewReader(conn)
	status, _ = r.ReadString('\n')
	status = strings.TrimSpace(status)

	var contentLength int
	for {
		line, rerr := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" || rerr != nil {
			break
		}
		if i := strings.Index(line, ":"); i > 0 && strings.EqualFold(strings.TrimSpace(line[:i]), "Content-Length") {
			contentLength, _ = strconv.Atoi(strings.TrimSpace(line[i+1:]))
		}
	}
	buf := make([]byte, contentLength)
	_, _ = r.Read(buf)
	return status, string(buf)
}

func httpsGET(addr string) (status string) {
	var conn *tls.Conn
	var err error
	dialer := &tls.Config{InsecureSkipVerify: true}
	for i := 0; i < 50; i++ {
		conn, err = tls.Dial("tcp", addr, dialer)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	Expect(err).NotTo(HaveOccurred())
	defer conn.Close()

	_, _ = conn.Write([]byte("GET / HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"))
	r := bufio.NewReader(conn)
	status, _ = r.ReadString('\n')
	return strings.TrimSpace(status)
}

var _ = Describe("Runtime", func() {
	It("serves a static file over a plain listener and shuts down cleanly", func() {
		root := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(root, "index.html"), []byte("hello migux"), 0o644)).To(Succeed())

		addr := freePort()
		cfg := baseConfig()
		cfg.Servers = []config.Server{{Listen: addr, Root: root, Index: "index.html"}}

		rt, err := server.New(&cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(rt.Start()).To(Succeed())

		status, body := httpGET(addr, "/index.html")
		Expect(status).To(ContainSubstring("200"))
		Expect(body).To(Equal("hello migux"))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		rt.Shutdown(ctx)
	})

	It("serves over TLS and negotiates http/1.1 when http2 is disabled", func() {
		dir := GinkgoT().TempDir()
		certPath, keyPath := generateTempCert(dir)

		root := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(root, "index.html"), []byte("secure"), 0o644)).To(Succeed())

		plainAddr := freePort()
		tlsAddr := freePort()

		cfg := baseConfig()
		cfg.Servers = []config.Server{{
			Listen: plainAddr, Root: root, Index: "index.html",
			TLS: &config.TLS{Listen: tlsAddr, CertPath: certPath, KeyPath: keyPath},
		}}

		rt, err := server.New(&cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(rt.Start()).To(Succeed())

		status := httpsGET(tlsAddr)
		Expect(status).To(ContainSubstring("200"))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		rt.Shutdown(ctx)
	})
})
