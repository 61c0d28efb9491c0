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

package runcommand

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/events"
	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/scheduler"
	"github.com/google/ats/pkg/session"
	"github.com/google/ats/pkg/sessionplugin"
	"github.com/google/ats/pkg/testmanager"
)

type fakeQuerier struct {
	devices []scheduler.DeviceInfo
}

func (q *fakeQuerier) Query(filter scheduler.DeviceQueryFilter) ([]scheduler.DeviceInfo, error) {
	return q.devices, nil
}

func alwaysEligible(scheduler.DeviceInfo) bool { return true }

type fakeInvoker struct {
	invoked chan struct{}
	result  job.Result
}

func (f *fakeInvoker) Invoke(test *job.Test, deviceIDs []string, cancel <-chan testmanager.TestMessage, runtimeInfoPath string) job.Result {
	if f.invoked != nil {
		close(f.invoked)
	}
	return f.result
}

func newTestHandler(t *testing.T, invoker Invoker) (*Handler, *session.Store, *sessionplugin.Plugin) {
	t.Helper()
	cfg := config.Default()
	cfg.RemoveJobGenFilesWhenFinished = false

	store := session.NewStore()
	plugin := sessionplugin.New(store, session.NewNotifier(), nil, nil)

	h := New(cfg, events.NewBus(), &fakeQuerier{}, scheduler.Verifier(alwaysEligible), invoker, plugin, store, nil, 0, nil)
	return h, store, plugin
}

func TestBuildJobsAssignsTradefedIDForXtsType(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeInvoker{result: job.Result{Kind: job.ResultPass}})

	ids, err := h.BuildJobs("session-1", &session.RunCommand{TestPlan: "cts", XtsType: "cts"})
	if err != nil {
		t.Fatalf("BuildJobs returned error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d job ids, want 1 for an xTS run", len(ids))
	}
}

func TestBuildJobsReturnsNoIDsForNonTradefed(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeInvoker{result: job.Result{Kind: job.ResultPass}})

	ids, err := h.BuildJobs("session-1", &session.RunCommand{TestPlan: "custom-script"})
	if err != nil {
		t.Fatalf("BuildJobs returned error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("got %d job ids, want 0 for a non-tradefed run", len(ids))
	}
}

func TestBuildJobsNoOpAfterStopAddingNewJobs(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeInvoker{})

	h.StopAddingNewJobs("session-1")
	ids, err := h.BuildJobs("session-1", &session.RunCommand{TestPlan: "cts", XtsType: "cts"})
	if err != nil {
		t.Fatalf("BuildJobs returned error: %v", err)
	}
	if ids != nil {
		t.Fatalf("got %v, want no jobs built after StopAddingNewJobs", ids)
	}
}

func TestProcessResultsWritesInvocationSummary(t *testing.T) {
	h, store, _ := newTestHandler(t, &fakeInvoker{})
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "android-cts"), 0755); err != nil {
		t.Fatal(err)
	}

	cmd := &session.RunCommand{TestPlan: "cts", XtsRootDir: root}
	cmd.InitialState.CommandLineArgs = "run cts"

	id := store.Submit("client-1", session.Config{RunCommand: cmd})
	store.MutateOutput(id, func(out *session.Output) {
		out.RunCommandState = &session.RunCommandState{CommandID: 7, RunningInvocation: map[string]session.Invocations{}}
	})

	summary, err := h.ProcessResults(id, cmd)
	if err != nil {
		t.Fatalf("ProcessResults returned error: %v", err)
	}
	if summary == "" {
		t.Fatal("expected a non-empty summary message")
	}
}
