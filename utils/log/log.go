// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log wraps a global zap.SugaredLogger so that any package can log
// without threading a logger through every constructor. Configure must be
// called once during process startup, before any other package logs.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// ConfigureLogger builds and installs a logger from config as the global
// logger, returning the underlying *zap.Logger so callers can defer
// zlog.Sync(). Panics on invalid config, matching cmd-time fail-fast
// semantics.
func ConfigureLogger(config zap.Config) *zap.Logger {
	l, err := config.Build()
	if err != nil {
		panic("configure logger: " + err.Error())
	}
	SetGlobalLogger(l.Sugar())
	return l
}

// SetGlobalLogger overrides the global logger, primarily for tests that want
// to assert on emitted log lines.
func SetGlobalLogger(l *zap.SugaredLogger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a child logger with the given structured fields, specified as
// alternating key/value pairs.
func With(args ...interface{}) *zap.SugaredLogger {
	return current().With(args...)
}

// Debug logs at debug level.
func Debug(args ...interface{}) { current().Debug(args...) }

// Debugf logs at debug level with formatting.
func Debugf(template string, args ...interface{}) { current().Debugf(template, args...) }

// Info logs at info level.
func Info(args ...interface{}) { current().Info(args...) }

// Infof logs at info level with formatting.
func Infof(template string, args ...interface{}) { current().Infof(template, args...) }

// Warn logs at warn level.
func Warn(args ...interface{}) { current().Warn(args...) }

// Warnf logs at warn level with formatting.
func Warnf(template string, args ...interface{}) { current().Warnf(template, args...) }

// Error logs at error level.
func Error(args ...interface{}) { current().Error(args...) }

// Errorf logs at error level with formatting.
func Errorf(template string, args ...interface{}) { current().Errorf(template, args...) }

// Fatal logs at fatal level then calls os.Exit(1).
func Fatal(args ...interface{}) { current().Fatal(args...) }

// Fatalf logs at fatal level with formatting then calls os.Exit(1).
func Fatalf(template string, args ...interface{}) { current().Fatalf(template, args...) }
