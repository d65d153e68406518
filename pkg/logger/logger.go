// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package logger holds the process-wide zap logger used across the saga
// engine. It is initialized lazily so that library consumers who configure
// zap themselves can install their own logger before first use.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger      *zap.Logger
	mu          sync.RWMutex
	initialized bool
)

// Init initializes the global logger with a production configuration.
// Calling Init more than once is a no-op.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	if initialized && logger != nil {
		return
	}
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	logger = l
	initialized = true
}

// SetLogger installs a custom logger, replacing any previously configured one.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
	initialized = l != nil
}

// Get returns the global logger, initializing it if necessary.
func Get() *zap.Logger {
	mu.RLock()
	if initialized && logger != nil {
		defer mu.RUnlock()
		return logger
	}
	mu.RUnlock()

	Init()

	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sugar returns the global sugared logger.
func Sugar() *zap.SugaredLogger {
	return Get().Sugar()
}

// Reset discards the global logger. It exists for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		_ = logger.Sync()
	}
	logger = nil
	initialized = false
}
