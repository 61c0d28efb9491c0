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

// Package job holds the Job/Test/Allocation data model shared by the
// scheduler, test manager, and job runner (spec.md §3), grounded on the
// teacher's plugin.Result/plugin.ExpectedResult pairing in pkg/plugin
// (a locator-keyed unit of work with a mutable, monotonically progressing
// status).
package job

import "time"

// TestStatus is a Test's lifecycle state. It moves monotonically through
// NEW → ASSIGNED → RUNNING → DONE, with NEW → SUSPENDED → DONE and
// NEW → DONE (not-started) as the only other legal sequences (spec §8).
type TestStatus string

const (
	TestNew       TestStatus = "NEW"
	TestAssigned  TestStatus = "ASSIGNED"
	TestSuspended TestStatus = "SUSPENDED"
	TestRunning   TestStatus = "RUNNING"
	TestDone      TestStatus = "DONE"
)

// ResultKind is a Test or Job's terminal result classification. It starts
// at Unknown and, once set to anything else, is never overwritten by the
// job runner (timeouts/aborts excepted, which only ever transition from
// Unknown).
type ResultKind string

const (
	ResultUnknown ResultKind = "UNKNOWN"
	ResultPass    ResultKind = "PASS"
	ResultFail    ResultKind = "FAIL"
	ResultError   ResultKind = "ERROR"
	ResultTimeout ResultKind = "TIMEOUT"
	ResultAbort   ResultKind = "ABORT"
	ResultSkip    ResultKind = "SKIP"
)

// Result pairs a ResultKind with an explanatory cause code, mirroring the
// CLIENT_JR_* cause identifiers named throughout spec.md §4.3.
type Result struct {
	Kind  ResultKind
	Cause string
}

// Locator identifies a Job or Test by id and a human-readable name.
type Locator struct {
	ID   string
	Name string
}

// Timing carries a Job's scheduling timestamps.
type Timing struct {
	Start        time.Time
	End          time.Time
	StartTimeout time.Duration
	JobTimeout   time.Duration
}

// SubDeviceSpec is the device requirement for one slot of a multi-device
// test; a Test may require one or more.
type SubDeviceSpec struct {
	Dimensions map[string]string
}

// Test is a single unit of execution belonging to a Job.
type Test struct {
	Locator    Locator
	JobID      string
	Status     TestStatus
	Result     Result
	Warnings   []string
	Properties map[string]string
	SubDevices []SubDeviceSpec
}

// SetResultIfUnknown sets t.Result only if it is currently ResultUnknown,
// implementing the "never overwritten once non-UNKNOWN" invariant of
// spec.md §3.
func (t *Test) SetResultIfUnknown(r Result) {
	if t.Result.Kind == ResultUnknown || t.Result.Kind == "" {
		t.Result = r
	}
}

// AllDone reports whether every test in ts has reached TestDone.
func AllDone(ts []*Test) bool {
	for _, t := range ts {
		if t.Status != TestDone {
			return false
		}
	}
	return true
}

// Job is the unit the Job Runner drives through its state machine.
type Job struct {
	Locator    Locator
	Dimensions map[string]string
	Parameters map[string]string
	SubDevices []SubDeviceSpec
	Timing     Timing
	Result     Result
	Warnings   []string
	Properties map[string]string
	Files      map[string][]string
	Tests      []*Test
}

// SetResultIfUnknown sets j.Result only if it is currently ResultUnknown,
// the Job-level counterpart of Test.SetResultIfUnknown.
func (j *Job) SetResultIfUnknown(r Result) {
	if j.Result.Kind == ResultUnknown || j.Result.Kind == "" {
		j.Result = r
	}
}

// AllocationExitStrategy mirrors config.AllocationExitStrategy without
// importing pkg/config, so job has no dependency on the config package.
type AllocationExitStrategy string

const (
	AllocationExitNormal          AllocationExitStrategy = "NORMAL"
	AllocationExitFailFastNoIdle  AllocationExitStrategy = "FAIL_FAST_NO_IDLE"
	AllocationExitFailFastNoMatch AllocationExitStrategy = "FAIL_FAST_NO_MATCH"
)

// Allocation binds a Test to one or more devices, produced asynchronously
// by the Device Allocator. DeviceDirty marks a device as needing recovery
// before reuse (spec.md §4.3 step 5's start-failure path).
type Allocation struct {
	TestID      string
	JobID       string
	DeviceIDs   []string
	DeviceDirty bool
}
