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

// Package diagnostics implements the Allocation Diagnostician (Component
// J, spec.md §4.3.2): a bounded sequence of progressively narrower device
// queries run when a job stalls waiting for its first allocation, producing
// a classified report that drives the job's terminal error-id attribution.
package diagnostics

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/scheduler"
)

// ErrorID classifies why no device was available, feeding the job
// finalization table of spec.md §4.3.
type ErrorID string

const (
	ErrorInfra      ErrorID = "INFRA_ERROR"
	ErrorUserConfig ErrorID = "USER_CONFIG_ERROR"
	ErrorUnknown    ErrorID = "UNKNOWN_ERROR"
)

// maxRuns is the cap named in spec.md §8: exactly 6 diagnosis runs per
// job; the 7th call must be a no-op.
const maxRuns = 6

// Report is the cached outcome of the most recent diagnosis run.
type Report struct {
	ErrorID ErrorID
	Detail  string
}

// Criterion is one progressively narrower device-query filter tried by a
// diagnosis run, paired with the ErrorID it implies if it finds nothing.
type Criterion struct {
	Filter      scheduler.DeviceQueryFilter
	IfNoneFound ErrorID
	Detail      string
}

// Diagnostician runs up to maxRuns diagnosis passes for one job.
type Diagnostician struct {
	querier    scheduler.DeviceQuerier
	criteria   []Criterion
	heapFloorMB int
	heapNowMB   func() int

	mu      sync.Mutex
	runs    int
	last    *Report
}

// New constructs a Diagnostician. heapFloorMB and heapNow implement
// spec.md §4.3.2's "skip diagnosis if configured max heap is below
// threshold" guard, avoiding OOM on large fleets.
func New(querier scheduler.DeviceQuerier, criteria []Criterion, heapFloorMB int, heapNow func() int) *Diagnostician {
	return &Diagnostician{querier: querier, criteria: criteria, heapFloorMB: heapFloorMB, heapNowMB: heapNow}
}

// Run executes the next diagnosis pass, caching and returning its Report.
// Subsequent calls beyond maxRuns are no-ops returning the last cached
// Report. A failure in the diagnosis logic itself is swallowed and logged
// (spec.md §7's DiagnosticError: "always recoverable; logged only").
func (d *Diagnostician) Run() *Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.heapNowMB != nil && d.heapNowMB() < d.heapFloorMB {
		logrus.Warn("skipping allocation diagnosis: configured heap below threshold")
		return d.last
	}
	if d.runs >= maxRuns {
		return d.last
	}
	d.runs++

	report := d.diagnoseLocked()
	d.last = report
	return report
}

// Last returns the most recently cached Report, or nil if none has run.
func (d *Diagnostician) Last() *Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Diagnostician) diagnoseLocked() *Report {
	for _, c := range d.criteria {
		devices, err := d.querier.Query(c.Filter)
		if err != nil {
			logrus.WithError(err).Debug("allocation diagnosis query failed, continuing")
			continue
		}
		if len(devices) == 0 {
			return &Report{ErrorID: c.IfNoneFound, Detail: c.Detail}
		}
	}
	return &Report{ErrorID: ErrorUnknown, Detail: "no criterion conclusively explained the stall"}
}
