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

// Package xlog wraps logrus with a fields-first API matching the shape of the
// teacher's logger package (golib/logger/entry.go, golib/logger/fields.go), scoped
// down to what the core needs: one named logger per component, structured fields,
// no hook/syslog/gelf plumbing.
package xlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	base     = logrus.New()
	baseOnce sync.Once
)

func root() *logrus.Logger {
	baseOnce.Do(func() {
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		base.SetLevel(logrus.InfoLevel)
	})
	return base
}

// SetLevel adjusts the global log level, e.g. from a config flag at startup.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		root().SetLevel(lvl)
	}
}

// Logger is a named, field-carrying logger handed to each component
// constructor, mirroring "one logger instance per server" in httpserver/server.go.
type Logger struct {
	entry *logrus.Entry
}

// Named returns a Logger scoped to component, e.g. xlog.Named("proxy").
func Named(component string) *Logger {
	return &Logger{entry: root().WithField("component", component)}
}

// With returns a derived Logger carrying additional structured fields.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// ErrCtx logs err (if non-nil) with a message and contextual fields, mirroring
// golib/logger's LogErrorCtxf convention.
func (l *Logger) ErrCtx(err error, msg string, fields map[string]any) {
	if err == nil {
		return
	}
	e := l.entry
	if fields != nil {
		e = e.WithFields(logrus.Fields(fields))
	}
	e.WithError(err).Error(msg)
}
