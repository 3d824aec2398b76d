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

// Command migux runs the reverse proxy and static file server described by a
// single YAML/JSON/TOML config file. Parsing and wiring here is deliberately
// thin: everything that matters lives in internal/config and internal/server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/server"
	"github.com/nabbar/migux/internal/xlog"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var logLevel string

	fs := flag.NewFlagSet("migux", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "/etc/migux/migux.yaml", "path to the configuration file")
	fs.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}

	xlog.SetLevel(logLevel)
	log := xlog.Named("main")

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Errorf("config: %v", err)
		return 1
	}

	rt, err := server.New(cfg)
	if err != nil {
		log.Errorf("build runtime: %v", err)
		return 1
	}

	if err := rt.Start(); err != nil {
		log.Errorf("start: %v", err)
		return 1
	}

	log.Infof("migux started")
	rt.WaitNotify()
	log.Infof("migux stopped")
	return 0
}

// loadConfig reads configPath with viper (the loader the teacher's sibling
// tools use) and decodes it into the typed contract internal/config pins,
// then validates it.
func loadConfig(configPath string) (*config.Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", configPath, err)
	}

	return &cfg, nil
}
