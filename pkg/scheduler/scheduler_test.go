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

package scheduler

import (
	"testing"
	"time"

	"github.com/google/ats/pkg/job"
)

func TestSchedulerMediatedPollDrainsQueue(t *testing.T) {
	s := NewSchedulerMediated("job-1", nil, nil)
	s.Enqueue(job.Allocation{TestID: "t1", JobID: "job-1", DeviceIDs: []string{"d1"}},
		[]DeviceInfo{{ID: "d1"}}, time.Now())

	got := s.PollAllocations()
	if len(got) != 1 {
		t.Fatalf("got %d allocations, want 1", len(got))
	}
	if again := s.PollAllocations(); len(again) != 0 {
		t.Fatalf("expected an empty second poll, got %d", len(again))
	}
}

func TestVerifyAndAcceptRejectsWrongJob(t *testing.T) {
	s := NewSchedulerMediated("job-1", nil, nil)
	tests := map[string]*job.Test{
		"t1": {Locator: job.Locator{ID: "t1"}, JobID: "job-2", Status: job.TestNew},
	}
	_, ok := s.VerifyAndAccept(tests, AllocationWithStats{Allocation: job.Allocation{TestID: "t1", JobID: "job-2"}})
	if ok {
		t.Fatal("expected rejection of an allocation for a test belonging to a different job")
	}
}

func TestVerifyAndAcceptRejectsNonNewStatus(t *testing.T) {
	s := NewSchedulerMediated("job-1", nil, nil)
	tests := map[string]*job.Test{
		"t1": {Locator: job.Locator{ID: "t1"}, JobID: "job-1", Status: job.TestAssigned},
	}
	_, ok := s.VerifyAndAccept(tests, AllocationWithStats{Allocation: job.Allocation{TestID: "t1", JobID: "job-1"}})
	if ok {
		t.Fatal("expected rejection of an allocation for a test that is not NEW")
	}
}

type fakeQuerier struct {
	devices []DeviceInfo
	err     error
}

func (f *fakeQuerier) Query(DeviceQueryFilter) ([]DeviceInfo, error) {
	return f.devices, f.err
}

func TestProxyMediatedSetUpFailFastOnQueryError(t *testing.T) {
	p := NewProxyMediated("job-1", &fakeQuerier{err: errUnavailable}, nil)
	err := p.SetUp()
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*FailFastError); !ok {
		t.Fatalf("expected *FailFastError, got %T", err)
	}
}

var errUnavailable = fakeErr("device manager unavailable")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
