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

// Package scheduler implements the Scheduler & Device Allocator (Component
// D, spec.md §4.2): two interchangeable Allocator implementations that
// resolve device allocations for tests, grounded on the teacher's queried
// function pattern in pkg/discovery/queries.go (a query measured by
// elapsed time, returning either a result or an error) generalized from
// Kubernetes object queries to device-fleet queries.
package scheduler

import (
	"time"

	"github.com/google/ats/pkg/job"
)

// DeviceInfo describes one device returned by a fleet query, spec.md §4.5.
type DeviceInfo struct {
	ID         string
	Dimensions map[string]string
}

// DeviceQueryFilter narrows a fleet query; the external Device Querier
// interprets it (spec.md §4.5 — consumed only, never implemented here).
type DeviceQueryFilter struct {
	RequiredDimensions map[string]string
	ExcludeSerials     []string
	IncludeSerials     []string
}

// DeviceQuerier is the external collaborator that answers fleet queries.
// The core must not share state with it.
type DeviceQuerier interface {
	Query(filter DeviceQueryFilter) ([]DeviceInfo, error)
}

// AllocationWithStats is one dequeued allocation plus the wall-clock time
// it took the allocator to produce it, used for the allocation-time
// properties recorded in spec.md §4.3 step 5.
type AllocationWithStats struct {
	job.Allocation
	QueueLatency time.Duration
}

// FailFastError is returned by SetUp when the configured exit strategy
// determines up front that allocation cannot succeed (spec.md §4.2).
type FailFastError struct {
	Reason string
}

func (e *FailFastError) Error() string { return "fail-fast: " + e.Reason }

// Verifier is a pluggable check run against a device before an allocation
// is accepted, spec.md §4.2's "device passes a pluggable verifier" step.
type Verifier func(DeviceInfo) bool

// Allocator is the Scheduler & Device Allocator contract, spec.md §4.2.
type Allocator interface {
	SetUp() error
	PollAllocations() []AllocationWithStats
	ExtraAllocation(test *job.Test)
	ReleaseAllocation(alloc job.Allocation, result job.Result, deviceDirty bool)
	TearDown()
	IsLocal() bool
	// VerifyAndAccept applies the ownership/status/verifier checks of
	// spec.md §4.2's polling step to one dequeued allocation.
	VerifyAndAccept(tests map[string]*job.Test, alloc AllocationWithStats) (*job.Test, bool)
}

// verifyAndAccept runs the ownership/status/verifier checks of spec.md
// §4.2's polling step, shared by both Allocator implementations.
func verifyAndAccept(jobID string, tests map[string]*job.Test, alloc job.Allocation, verify Verifier, devices func(ids []string) []DeviceInfo, reQueue func(job.Allocation)) (*job.Test, bool) {
	t, exists := tests[alloc.TestID]
	if !exists {
		return nil, false
	}
	if t.JobID != jobID {
		reQueue(alloc)
		return nil, false
	}
	if t.Status != job.TestNew {
		reQueue(alloc)
		return nil, false
	}
	if verify != nil {
		for _, d := range devices(alloc.DeviceIDs) {
			if !verify(d) {
				reQueue(alloc)
				return nil, false
			}
		}
	}
	return t, true
}
