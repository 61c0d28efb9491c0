/*
Copyright 2018 Heptio Inc.

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

// Package testmanager implements the Test Manager & Direct Test Runners
// (Component E, spec.md §2): each allocated test runs in its own task and
// can receive test messages (used for SIGTSTP-style cancellation, spec.md
// §4.4). Concurrency is grounded on the teacher's errgroup use in
// cmd/sonobuoy/app/retrieve.go (one goroutine per unit of work, errors
// joined back through the group).
package testmanager

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/google/ats/pkg/job"
)

// DirectTestRunnerSetting configures one test run.
type DirectTestRunnerSetting struct {
	Test         *job.Test
	DeviceIDs    []string
	MessagePlugins []MessagePlugin
}

// TestMessage is delivered to a running test, e.g. the SIGTSTP
// cancellation message of spec.md §4.4.
type TestMessage struct {
	Signal string
	Reason string
}

// MessagePlugin observes test messages sent to a running test.
type MessagePlugin interface {
	OnMessage(testID string, msg TestMessage)
}

// Runner executes one test's body. Production runners delegate to a
// Tradefed-style subprocess; tests may supply a fake. cancel delivers
// cooperative-shutdown messages (e.g. the SIGTSTP cancellation of
// spec.md §4.4); a Runner that ignores it simply runs to completion.
type Runner interface {
	Run(test *job.Test, deviceIDs []string, cancel <-chan TestMessage) job.Result
}

type runningTest struct {
	cancel  chan TestMessage
	done    chan struct{}
	plugins []MessagePlugin
}

// Manager owns the lifecycle of every currently running test for one job.
type Manager struct {
	runner Runner

	mu      sync.Mutex
	running map[string]*runningTest
}

// NewManager constructs a Manager that executes tests via runner.
func NewManager(runner Runner) *Manager {
	return &Manager{runner: runner, running: make(map[string]*runningTest)}
}

// Start launches setting.Test in its own goroutine (through an errgroup
// local to this call, which nothing waits on) and returns nil immediately
// without waiting for the test to finish, per spec.md §4.3 step 5's
// "create a direct test runner ... and start the runner via the test
// manager" (start is fire-and-forget from the job runner's perspective).
func (m *Manager) Start(setting DirectTestRunnerSetting, onDone func(job.Result)) error {
	rt := &runningTest{
		cancel:  make(chan TestMessage, 1),
		done:    make(chan struct{}),
		plugins: setting.MessagePlugins,
	}

	m.mu.Lock()
	m.running[setting.Test.Locator.ID] = rt
	m.mu.Unlock()

	var eg errgroup.Group
	eg.Go(func() error {
		defer close(rt.done)
		result := m.runner.Run(setting.Test, setting.DeviceIDs, rt.cancel)
		m.mu.Lock()
		delete(m.running, setting.Test.Locator.ID)
		m.mu.Unlock()
		if onDone != nil {
			onDone(result)
		}
		return nil
	})
	return nil
}

// SendMessage delivers msg to testID if it is currently running, notifying
// every subscribed MessagePlugin. It is a no-op (logged by the caller, not
// here) if the test has already finished or never started.
func (m *Manager) SendMessage(testID string, msg TestMessage) bool {
	m.mu.Lock()
	rt, ok := m.running[testID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case rt.cancel <- msg:
	default:
	}
	for _, p := range rt.plugins {
		p.OnMessage(testID, msg)
	}
	return true
}

// IsAnyTestRunning reports whether at least one test is currently active,
// used by the job runner's allocation-loop exit condition (spec.md §4.3).
func (m *Manager) IsAnyTestRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running) > 0
}

// KillAll requests cooperative shutdown of every running test, per
// spec.md §4.3's kill_all_tests contract.
func (m *Manager) KillAll(reason string) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.SendMessage(id, TestMessage{Signal: "SIGTSTP", Reason: reason})
	}
}
