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

// Package config is the typed contract the core consumes (spec.md §6). Parsing the
// file on disk is out of scope for the core (cmd/migux does that with viper); this
// package only defines the validated shape and the Validate() pass.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Global holds process-wide knobs.
type Global struct {
	WorkerConnections   int `mapstructure:"worker_connections" yaml:"worker_connections" validate:"gt=0"`
	PoolIdleConnections int `mapstructure:"pool_idle_connections" yaml:"pool_idle_connections" validate:"gte=0"`
	PoolIdleTTLSecs     int `mapstructure:"pool_idle_ttl_secs" yaml:"pool_idle_ttl_secs" validate:"gte=0"`
	PoolDialTimeoutSecs int `mapstructure:"pool_dial_timeout_secs" yaml:"pool_dial_timeout_secs" validate:"gte=0"`
}

// defaultPoolIdleConnections/TTL/DialTimeout are applied when the config
// leaves the corresponding Global field at its zero value, so existing
// configs that predate the pool-sizing knobs keep working unchanged.
const (
	defaultPoolIdleConnections = 32
	defaultPoolIdleTTL         = 90 * time.Second
	defaultPoolDialTimeout     = 5 * time.Second
)

// PoolIdleTTL returns the configured idle-connection TTL, or the default if unset.
func (g Global) PoolIdleTTL() time.Duration {
	if g.PoolIdleTTLSecs <= 0 {
		return defaultPoolIdleTTL
	}
	return time.Duration(g.PoolIdleTTLSecs) * time.Second
}

// PoolDialTimeout returns the configured upstream dial timeout, or the default if unset.
func (g Global) PoolDialTimeout() time.Duration {
	if g.PoolDialTimeoutSecs <= 0 {
		return defaultPoolDialTimeout
	}
	return time.Duration(g.PoolDialTimeoutSecs) * time.Second
}

// PoolCapacity returns the configured per-address idle pool size, or the default if unset.
func (g Global) PoolCapacity() int {
	if g.PoolIdleConnections <= 0 {
		return defaultPoolIdleConnections
	}
	return g.PoolIdleConnections
}

// HTTP holds the timeout/limit/cache knobs spec.md §6 names under `http.*`.
type HTTP struct {
	ClientReadTimeoutSecs          int    `mapstructure:"client_read_timeout_secs" yaml:"client_read_timeout_secs" validate:"gt=0"`
	KeepaliveTimeoutSecs           int    `mapstructure:"keepalive_timeout_secs" yaml:"keepalive_timeout_secs" validate:"gt=0"`
	ProxyConnectTimeoutSecs        int    `mapstructure:"proxy_connect_timeout_secs" yaml:"proxy_connect_timeout_secs" validate:"gt=0"`
	ProxyWriteTimeoutSecs          int    `mapstructure:"proxy_write_timeout_secs" yaml:"proxy_write_timeout_secs" validate:"gt=0"`
	ProxyReadTimeoutSecs           int    `mapstructure:"proxy_read_timeout_secs" yaml:"proxy_read_timeout_secs" validate:"gt=0"`
	MaxRequestHeadersBytes         int    `mapstructure:"max_request_headers_bytes" yaml:"max_request_headers_bytes" validate:"gt=0"`
	MaxRequestBodyBytes            int64  `mapstructure:"max_request_body_bytes" yaml:"max_request_body_bytes" validate:"gt=0"`
	MaxUpstreamResponseHeaderBytes int    `mapstructure:"max_upstream_response_headers_bytes" yaml:"max_upstream_response_headers_bytes" validate:"gt=0"`
	MaxUpstreamResponseBodyBytes   int64  `mapstructure:"max_upstream_response_body_bytes" yaml:"max_upstream_response_body_bytes" validate:"gt=0"`
	CacheDir                       string `mapstructure:"cache_dir" yaml:"cache_dir"`
	CacheDefaultTTLSecs            int    `mapstructure:"cache_default_ttl_secs" yaml:"cache_default_ttl_secs" validate:"gte=0"`
	CacheMaxObjectBytes            int64  `mapstructure:"cache_max_object_bytes" yaml:"cache_max_object_bytes" validate:"gte=0"`
	CacheMaxTotalBytes             int64  `mapstructure:"cache_max_total_bytes" yaml:"cache_max_total_bytes" validate:"gte=0"`
	CacheMaxEntries                int    `mapstructure:"cache_max_entries" yaml:"cache_max_entries" validate:"gte=0"`
	CacheInactiveSecs              int    `mapstructure:"cache_inactive_secs" yaml:"cache_inactive_secs" validate:"gte=0"`
	Sendfile                       bool   `mapstructure:"sendfile" yaml:"sendfile"`
}

func (h HTTP) dur(secs int) time.Duration { return time.Duration(secs) * time.Second }

func (h HTTP) ClientReadTimeout() time.Duration   { return h.dur(h.ClientReadTimeoutSecs) }
func (h HTTP) KeepaliveTimeout() time.Duration    { return h.dur(h.KeepaliveTimeoutSecs) }
func (h HTTP) ProxyConnectTimeout() time.Duration { return h.dur(h.ProxyConnectTimeoutSecs) }
func (h HTTP) ProxyWriteTimeout() time.Duration   { return h.dur(h.ProxyWriteTimeoutSecs) }
func (h HTTP) ProxyReadTimeout() time.Duration    { return h.dur(h.ProxyReadTimeoutSecs) }
func (h HTTP) CacheDefaultTTL() time.Duration     { return h.dur(h.CacheDefaultTTLSecs) }
func (h HTTP) CacheInactive() time.Duration       { return h.dur(h.CacheInactiveSecs) }

// TLS is the per-listener TLS policy.
type TLS struct {
	Listen                  string `mapstructure:"listen" yaml:"listen" validate:"required"`
	CertPath                string `mapstructure:"cert_path" yaml:"cert_path" validate:"required"`
	KeyPath                 string `mapstructure:"key_path" yaml:"key_path" validate:"required"`
	HTTP2                   bool   `mapstructure:"http2" yaml:"http2"`
	RedirectHTTP            bool   `mapstructure:"redirect_http" yaml:"redirect_http"`
	HSTSMaxAgeSecs          int    `mapstructure:"hsts_max_age_secs" yaml:"hsts_max_age_secs" validate:"gte=0"`
	HSTSIncludeSubdomains   bool   `mapstructure:"hsts_include_subdomains" yaml:"hsts_include_subdomains"`
}

// Server is a virtual server bound to one listen address.
type Server struct {
	Listen     string `mapstructure:"listen" yaml:"listen" validate:"required"`
	Root       string `mapstructure:"root" yaml:"root" validate:"required"`
	Index      string `mapstructure:"index" yaml:"index"`
	ServerName string `mapstructure:"server_name" yaml:"server_name"`
	TLS        *TLS   `mapstructure:"tls" yaml:"tls"`
}

// LocationKind distinguishes static serving from proxying.
type LocationKind string

const (
	LocationStatic LocationKind = "static"
	LocationProxy  LocationKind = "proxy"
)

// TriState models the cache-enabled override: unset defers to the global policy.
type TriState int

const (
	Unset TriState = iota
	True
	False
)

// Location is one routing rule within a Server.
type Location struct {
	ServerListen string       `mapstructure:"server" yaml:"server" validate:"required"`
	Path         string       `mapstructure:"path" yaml:"path" validate:"required"`
	Kind         LocationKind `mapstructure:"type" yaml:"type" validate:"required,oneof=static proxy"`
	Root         string       `mapstructure:"root" yaml:"root"`
	Index        string       `mapstructure:"index" yaml:"index"`
	Upstream     string       `mapstructure:"upstream" yaml:"upstream"`
	StripPrefix  bool         `mapstructure:"strip_prefix" yaml:"strip_prefix"`
	Cache        TriState     `mapstructure:"-" yaml:"-"`
	CacheRaw     *bool        `mapstructure:"cache" yaml:"cache"`
}

// Health is the active/passive health-check policy for an upstream.
type Health struct {
	Active         bool `mapstructure:"active" yaml:"active"`
	IntervalSecs   int  `mapstructure:"interval_secs" yaml:"interval_secs" validate:"gte=0"`
	TimeoutSecs    int  `mapstructure:"timeout_secs" yaml:"timeout_secs" validate:"gte=0"`
	FailThreshold  int  `mapstructure:"fail_threshold" yaml:"fail_threshold" validate:"gte=0"`
	CooldownSecs   int  `mapstructure:"cooldown_secs" yaml:"cooldown_secs" validate:"gte=0"`
}

func (h Health) Interval() time.Duration { return time.Duration(h.IntervalSecs) * time.Second }
func (h Health) Timeout() time.Duration  { return time.Duration(h.TimeoutSecs) * time.Second }
func (h Health) Cooldown() time.Duration { return time.Duration(h.CooldownSecs) * time.Second }

// Strategy selects the candidate-ordering algorithm for an upstream.
type Strategy string

const (
	StrategySingle      Strategy = "single"
	StrategyRoundRobin  Strategy = "round_robin"
)

// Upstream is a named pool of backend addresses. Server accepts a single string, a
// bracket-list literal ("[a,b,c]") or a native YAML/JSON list; NormalizeServer
// normalizes all three to a []string (spec.md §3 UpstreamSpec).
type Upstream struct {
	ServerRaw any      `mapstructure:"server" yaml:"server" validate:"required"`
	Addresses []string `mapstructure:"-" yaml:"-"`
	Strategy  Strategy `mapstructure:"strategy" yaml:"strategy"`
	HealthCfg Health   `mapstructure:"health" yaml:"health"`
}

// NormalizeServer fills Addresses from ServerRaw, accepting a plain "host:port", a
// "[a,b,c]" literal, or a native list of strings.
func (u *Upstream) NormalizeServer() error {
	switch v := u.ServerRaw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
			parts := strings.Split(s, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			u.Addresses = out
		} else if s != "" {
			u.Addresses = []string{s}
		}
	case []string:
		u.Addresses = v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		u.Addresses = out
	default:
		return fmt.Errorf("upstream server value has unsupported type %T", v)
	}
	if len(u.Addresses) == 0 {
		return fmt.Errorf("upstream server list is empty")
	}
	if u.Strategy == "" {
		u.Strategy = StrategySingle
	}
	return nil
}

// Config is the full configuration contract consumed by the core (spec.md §6).
type Config struct {
	Global     Global              `mapstructure:"global" yaml:"global"`
	HTTPConf   HTTP                `mapstructure:"http" yaml:"http"`
	Servers    []Server            `mapstructure:"servers" yaml:"servers" validate:"required,dive"`
	Locations  []Location          `mapstructure:"locations" yaml:"locations"`
	Upstreams  map[string]Upstream `mapstructure:"upstreams" yaml:"upstreams"`
}

// Validate runs struct-tag validation (go-playground/validator) and the
// cross-field invariants spec.md pins: Proxy locations need an upstream name that
// exists, location paths start with "/", upstream address lists are non-empty.
func (c *Config) Validate() error {
	v := validator.New()

	for name, up := range c.Upstreams {
		up := up
		if err := up.NormalizeServer(); err != nil {
			return fmt.Errorf("upstream %q: %w", name, err)
		}
		c.Upstreams[name] = up
	}

	for i := range c.Locations {
		loc := &c.Locations[i]
		if loc.CacheRaw == nil {
			loc.Cache = Unset
		} else if *loc.CacheRaw {
			loc.Cache = True
		} else {
			loc.Cache = False
		}
		if !strings.HasPrefix(loc.Path, "/") {
			return fmt.Errorf("location path %q must start with '/'", loc.Path)
		}
		if loc.Kind == LocationProxy {
			if loc.Upstream == "" {
				return fmt.Errorf("location %q: proxy requires upstream", loc.Path)
			}
			if _, ok := c.Upstreams[loc.Upstream]; !ok {
				return fmt.Errorf("location %q: unknown upstream %q", loc.Path, loc.Upstream)
			}
		}
	}

	if err := v.Struct(c); err != nil {
		return err
	}

	return nil
}
