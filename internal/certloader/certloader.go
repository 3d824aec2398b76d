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

// Package certloader is the C2 TLS-material boundary: spec.md §1 scopes the
// certificate loader itself out of the core, so this package only pins the
// interface — load a cert/key pair (PKCS8 preferred, RSA fallback) and build the
// *tls.Config with the right ALPN list.
package certloader

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/nabbar/migux/internal/xerr"
)

func init() {
	_ = xerr.MinPkgCertLoader
}

// LoadKeyPair reads a PEM cert chain and private key from disk. The private key
// block is parsed as PKCS8 first (the teacher's certificates/certs package does
// the same), falling back to PKCS1 (RSA) when PKCS8 parsing fails.
func LoadKeyPair(certPath, keyPath string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return tls.Certificate{}, xerr.New(xerr.MinPkgCertLoader, xerr.KindInternal, fmt.Sprintf("read cert file: %v", err), err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return tls.Certificate{}, xerr.New(xerr.MinPkgCertLoader, xerr.KindInternal, fmt.Sprintf("read key file: %v", err), err)
	}
	return ParsePair(keyPEM, certPEM)
}

// ParsePair builds a tls.Certificate from raw key/cert PEM bytes, preferring
// PKCS8 private keys and falling back to PKCS1 (RSA).
func ParsePair(keyPEM, certPEM []byte) (tls.Certificate, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err == nil {
		return cert, nil
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, xerr.New(xerr.MinPkgCertLoader, xerr.KindInternal, "no PEM block found in key", err)
	}

	if key, perr := x509.ParsePKCS8PrivateKey(block.Bytes); perr == nil {
		return buildWithKey(certPEM, key)
	}
	if key, perr := x509.ParsePKCS1PrivateKey(block.Bytes); perr == nil {
		return buildWithKey(certPEM, key)
	}

	return tls.Certificate{}, xerr.New(xerr.MinPkgCertLoader, xerr.KindInternal, "unsupported private key format", err)
}

func buildWithKey(certPEM []byte, key any) (tls.Certificate, error) {
	var certDER [][]byte
	rest := certPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			certDER = append(certDER, block.Bytes)
		}
	}
	if len(certDER) == 0 {
		return tls.Certificate{}, xerr.New(xerr.MinPkgCertLoader, xerr.KindInternal, "no certificate PEM block found", nil)
	}
	return tls.Certificate{Certificate: certDER, PrivateKey: key}, nil
}

// BuildTLSConfig assembles the *tls.Config for a listener: ALPN is [h2, http/1.1]
// when http2 is enabled, else [http/1.1] only (spec.md §4.2).
func BuildTLSConfig(cert tls.Certificate, http2 bool) *tls.Config {
	protos := []string{"http/1.1"}
	if http2 {
		protos = []string{"h2", "http/1.1"}
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   protos,
		MinVersion:   tls.VersionTLS12,
	}
}
