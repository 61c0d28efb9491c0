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

package testmanager

import (
	"testing"
	"time"

	"github.com/google/ats/pkg/job"
)

type blockingRunner struct {
	received chan TestMessage
}

func (r *blockingRunner) Run(test *job.Test, deviceIDs []string, cancel <-chan TestMessage) job.Result {
	msg := <-cancel
	r.received <- msg
	return job.Result{Kind: job.ResultAbort, Cause: msg.Reason}
}

func TestSendMessageReachesRunningTest(t *testing.T) {
	runner := &blockingRunner{received: make(chan TestMessage, 1)}
	m := NewManager(runner)
	test := &job.Test{Locator: job.Locator{ID: "t1"}, JobID: "job-1", Status: job.TestRunning}

	var gotResult job.Result
	done := make(chan struct{})
	if err := m.Start(DirectTestRunnerSetting{Test: test}, func(r job.Result) {
		gotResult = r
		close(done)
	}); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if !m.IsAnyTestRunning() {
		t.Fatal("expected IsAnyTestRunning to be true right after Start")
	}

	if ok := m.SendMessage("t1", TestMessage{Signal: "SIGTSTP", Reason: "cancelled"}); !ok {
		t.Fatal("SendMessage returned false for a running test")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for test completion")
	}

	if gotResult.Kind != job.ResultAbort || gotResult.Cause != "cancelled" {
		t.Fatalf("got result %+v, want ABORT{cancelled}", gotResult)
	}
	if m.IsAnyTestRunning() {
		t.Fatal("expected IsAnyTestRunning to be false after completion")
	}
}

func TestSendMessageToUnknownTestReturnsFalse(t *testing.T) {
	m := NewManager(&blockingRunner{received: make(chan TestMessage, 1)})
	if m.SendMessage("never-started", TestMessage{Signal: "SIGTSTP"}) {
		t.Fatal("expected false for a test that never started")
	}
}
