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

package sessionplugin

import (
	"testing"
	"time"

	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/session"
	"github.com/google/ats/pkg/testmanager"
)

type fakeHandler struct {
	built   []string
	stopped bool
}

func (h *fakeHandler) BuildJobs(sessionID string, cmd *session.RunCommand) ([]string, error) {
	h.built = append(h.built, sessionID)
	return []string{"job-1"}, nil
}

func (h *fakeHandler) StopAddingNewJobs(sessionID string) { h.stopped = true }

type fakeMessenger struct {
	received []testmanager.TestMessage
}

func (m *fakeMessenger) SendMessage(testID string, msg testmanager.TestMessage) bool {
	m.received = append(m.received, msg)
	return true
}

func newTestPlugin() (*Plugin, *session.Store, string) {
	store := session.NewStore()
	id := store.Submit("client-1", session.Config{RunCommand: &session.RunCommand{TestPlan: "cts"}})
	return New(store, session.NewNotifier(), &fakeHandler{}, nil), store, id
}

func TestSessionStartingSeedsRunCommandState(t *testing.T) {
	p, store, id := newTestPlugin()
	sess := store.Get(id)

	p.OnSessionStarting(id, sess.Config)

	got := store.Get(id).Output.RunCommandState
	if got == nil {
		t.Fatal("expected RunCommandState to be seeded")
	}
	if got.CommandID != 1 {
		t.Fatalf("got command id %d, want 1", got.CommandID)
	}
	if got.RunningInvocation == nil {
		t.Fatal("expected RunningInvocation map to be initialized")
	}
}

func TestTestStartingThenEndedUpdatesRunCommandState(t *testing.T) {
	p, store, id := newTestPlugin()
	sess := store.Get(id)
	p.OnSessionStarting(id, sess.Config)

	p.OnTestStarting(id, "job-1", "test-1", []string{"device-1"}, "cts", "")

	out := store.Get(id).Output
	if _, ok := out.RunCommandState.RunningInvocation["test-1"]; !ok {
		t.Fatal("expected test-1 to be tracked in RunningInvocation")
	}

	p.OnTestEnded(id, "test-1", job.Result{Kind: job.ResultPass}, 2*time.Second)

	out = store.Get(id).Output
	if _, ok := out.RunCommandState.RunningInvocation["test-1"]; ok {
		t.Fatal("expected test-1 to be removed from RunningInvocation")
	}
	if out.RunCommandState.TotalExecutionTime != 2*time.Second {
		t.Fatalf("got total execution time %v, want 2s", out.RunCommandState.TotalExecutionTime)
	}
}

func TestCancelDeliversSignalToRunningTests(t *testing.T) {
	p, store, id := newTestPlugin()
	sess := store.Get(id)
	p.OnSessionStarting(id, sess.Config)

	messenger := &fakeMessenger{}
	p.RegisterJobMessenger("job-1", messenger)
	p.OnTestStarting(id, "job-1", "test-1", []string{"device-1"}, "cts", "")

	handler := p.handler.(*fakeHandler)
	p.Cancel(id, "client requested abort")

	if !handler.stopped {
		t.Fatal("expected StopAddingNewJobs to be called")
	}
	if len(messenger.received) != 1 || messenger.received[0].Signal != "SIGTSTP" {
		t.Fatalf("got messages %+v, want one SIGTSTP message", messenger.received)
	}
}

func TestCancelBeforeTestStartingStillDeliversOnArrival(t *testing.T) {
	p, store, id := newTestPlugin()
	sess := store.Get(id)
	p.OnSessionStarting(id, sess.Config)

	messenger := &fakeMessenger{}
	p.RegisterJobMessenger("job-1", messenger)

	p.Cancel(id, "pre-emptive abort")
	p.OnTestStarting(id, "job-1", "test-1", []string{"device-1"}, "cts", "")

	if len(messenger.received) != 1 {
		t.Fatalf("got %d messages, want 1 delivered on test start", len(messenger.received))
	}
}

func TestSessionEndedWithoutResultProcessorReportsFailure(t *testing.T) {
	p, store, id := newTestPlugin()
	sess := store.Get(id)
	p.OnSessionStarting(id, sess.Config)
	p.OnSessionStarted(id, sess.Config)

	p.OnSessionEnded(id, sess.Config)

	out := store.Get(id).Output
	if out.Failure == nil {
		t.Fatal("expected Failure to be set when no ResultProcessor is configured")
	}
}
