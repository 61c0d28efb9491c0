/*
Copyright 2017 Heptio Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging provides small, reusable ambient-logging helpers. RateGate
// serves the heartbeat path, which swallows transport errors but avoids
// flooding the log, capped at one message per window. The runtime-info
// updater does not use it: it logs every read failure at Warn.
package logging

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateGate allows at most one log line per window for a given key. It is
// safe for concurrent use.
type RateGate struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRateGate constructs a RateGate that allows one entry through per
// window, per key.
func NewRateGate(window time.Duration) *RateGate {
	return &RateGate{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Allow reports whether a log line for key should be emitted now.
func (g *RateGate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if last, ok := g.last[key]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[key] = now
	return true
}

// WarnRateLimited logs at DEBUG level (transport errors are expected and
// recoverable) if the gate allows it for key, otherwise it is a no-op.
func (g *RateGate) WarnRateLimited(key string, fields logrus.Fields, format string, args ...interface{}) {
	if !g.Allow(key) {
		return
	}
	logrus.WithFields(fields).Debugf(format, args...)
}
