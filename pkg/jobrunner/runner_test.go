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

package jobrunner

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/events"
	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/scheduler"
	"github.com/google/ats/pkg/testmanager"
	"github.com/google/ats/pkg/time/timetest"
)

type fakeAllocator struct {
	mu          sync.Mutex
	allocations []scheduler.AllocationWithStats
	served      bool
	setUpErr    error
}

func (f *fakeAllocator) SetUp() error  { return f.setUpErr }
func (f *fakeAllocator) IsLocal() bool { return true }
func (f *fakeAllocator) ExtraAllocation(test *job.Test) {}
func (f *fakeAllocator) ReleaseAllocation(alloc job.Allocation, result job.Result, deviceDirty bool) {
}
func (f *fakeAllocator) TearDown() {}

func (f *fakeAllocator) PollAllocations() []scheduler.AllocationWithStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.served {
		return nil
	}
	f.served = true
	return f.allocations
}

func (f *fakeAllocator) VerifyAndAccept(tests map[string]*job.Test, alloc scheduler.AllocationWithStats) (*job.Test, bool) {
	t, ok := tests[alloc.TestID]
	if !ok || t.JobID != alloc.JobID || t.Status != job.TestNew {
		return nil, false
	}
	return t, true
}

type passRunner struct{}

func (passRunner) Run(test *job.Test, deviceIDs []string, cancel <-chan testmanager.TestMessage) job.Result {
	return job.Result{Kind: job.ResultPass}
}

func TestRunCompletesJobOnTestPass(t *testing.T) {
	timetest.UseNoAfter()
	defer timetest.ResetAfter()

	j := &job.Job{
		Locator: job.Locator{ID: "job-1"},
		Timing:  job.Timing{StartTimeout: time.Hour, JobTimeout: time.Hour},
		Tests:   []*job.Test{{Locator: job.Locator{ID: "t1"}, JobID: "job-1", Status: job.TestNew}},
	}
	alloc := &fakeAllocator{
		allocations: []scheduler.AllocationWithStats{{Allocation: job.Allocation{TestID: "t1", JobID: "job-1"}}},
	}
	r := New(j, config.Default(), events.NewBus(), alloc, testmanager.NewManager(passRunner{}), nil)

	done := make(chan struct{})
	go func() { r.Run(); close(done) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job runner to finish")
	}

	if j.Result.Kind != job.ResultPass {
		t.Fatalf("got job result %+v, want PASS", j.Result)
	}
	if j.Tests[0].Status != job.TestDone {
		t.Fatalf("got test status %v, want DONE", j.Tests[0].Status)
	}
}

func TestAllocationLoopZeroStartTimeoutTimesOutImmediately(t *testing.T) {
	timetest.UseNoAfter()
	defer timetest.ResetAfter()

	j := &job.Job{
		Locator: job.Locator{ID: "job-1"},
		Timing:  job.Timing{StartTimeout: 0, JobTimeout: time.Hour},
		Tests:   []*job.Test{{Locator: job.Locator{ID: "t1"}, JobID: "job-1", Status: job.TestNew}},
	}
	r := New(j, config.Default(), events.NewBus(), &fakeAllocator{}, testmanager.NewManager(passRunner{}), nil)

	done := make(chan struct{})
	go func() { r.allocationLoop(); close(done) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for allocation loop to time out")
	}

	if j.Result.Kind != job.ResultTimeout {
		t.Fatalf("got job result %+v, want TIMEOUT", j.Result)
	}
}

func TestAllocationLoopAllocatorSetUpFailureYieldsErrorResult(t *testing.T) {
	timetest.UseNoAfter()
	defer timetest.ResetAfter()

	j := &job.Job{
		Locator: job.Locator{ID: "job-1"},
		Timing:  job.Timing{StartTimeout: time.Hour, JobTimeout: time.Hour},
		Tests:   []*job.Test{{Locator: job.Locator{ID: "t1"}, JobID: "job-1", Status: job.TestNew}},
	}
	alloc := &fakeAllocator{setUpErr: errors.New("device pool unreachable")}
	r := New(j, config.Default(), events.NewBus(), alloc, testmanager.NewManager(passRunner{}), nil)

	done := make(chan struct{})
	go func() { r.allocationLoop(); close(done) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for allocation loop to return")
	}

	if j.Result.Kind != job.ResultError {
		t.Fatalf("got job result %+v, want ERROR", j.Result)
	}
}

func TestPreRunSkipJobMarksAllTestsSkipped(t *testing.T) {
	j := &job.Job{
		Locator: job.Locator{ID: "job-1"},
		Tests:   []*job.Test{{Locator: job.Locator{ID: "t1"}, JobID: "job-1", Status: job.TestNew}},
	}
	bus := events.NewBus()
	bus.Subscribe(events.ClassInternal, func(event interface{}) error {
		return &events.SkipJob{Reason: "device pool disabled"}
	})
	r := New(j, config.Default(), bus, &fakeAllocator{}, testmanager.NewManager(passRunner{}), nil)

	if skip := r.preRun(); !skip {
		t.Fatal("expected preRun to report skip=true")
	}
	if j.Result.Kind != job.ResultSkip {
		t.Fatalf("got job result %+v, want SKIP", j.Result)
	}
	if j.Tests[0].Status != job.TestDone || j.Tests[0].Result.Kind != job.ResultSkip {
		t.Fatalf("got test %+v, want DONE/SKIP", j.Tests[0])
	}
}
