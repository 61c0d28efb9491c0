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
	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/scheduler"
)

// suitableDeviceChecker is the periodic guard of spec.md §4.3.1: it only
// fires while a job has never received an allocation, and proves (or
// disproves) that devices currently exist to satisfy the job's subdevice
// specs without actually reserving anything.
//
// Query failures are ignored (and counted toward the exhaustion limit,
// spec.md §4.3.1's "query failures are ignored (re-counted)"). Once
// maxQueries ticks have passed without a positive match, onExhausted fires.
type suitableDeviceChecker struct {
	querier     scheduler.DeviceQuerier
	subdevices  []job.SubDeviceSpec
	maxQueries  int
	onExhausted func()

	queries int
}

func newSuitableDeviceChecker(querier scheduler.DeviceQuerier, subdevices []job.SubDeviceSpec, maxQueries int, onExhausted func()) *suitableDeviceChecker {
	return &suitableDeviceChecker{querier: querier, subdevices: subdevices, maxQueries: maxQueries, onExhausted: onExhausted}
}

// tick issues one round of device queries (one per subdevice spec),
// proves whether a full assignment exists via maximum-cardinality
// bipartite matching, and fires onExhausted once the query budget runs out
// without ever finding one.
func (c *suitableDeviceChecker) tick() (matched bool) {
	c.queries++

	candidates := make([][]string, len(c.subdevices))
	for i, spec := range c.subdevices {
		devices, err := c.querier.Query(scheduler.DeviceQueryFilter{RequiredDimensions: spec.Dimensions})
		if err != nil {
			logrus.WithError(err).Debug("suitable-device query failed, ignoring")
			continue
		}
		ids := make([]string, 0, len(devices))
		for _, d := range devices {
			ids = append(ids, d.ID)
		}
		candidates[i] = ids
	}

	if maximumMatching(candidates) == len(c.subdevices) {
		return true
	}
	if c.maxQueries > 0 && c.queries >= c.maxQueries && c.onExhausted != nil {
		c.onExhausted()
	}
	return false
}

// maximumMatching computes a maximum-cardinality bipartite matching between
// subdevice indices (left side, indices of candidates) and device ids
// (right side, the union of every candidate list), via Kuhn's augmenting-
// path algorithm. Fleet sizes here are small (tens to low hundreds of
// devices), so the simple O(V*E) algorithm is sufficient.
func maximumMatching(candidates [][]string) int {
	matchedDevice := make(map[string]int) // device id -> subdevice index
	matchSize := 0

	var tryAugment func(i int, visited map[string]bool) bool
	tryAugment = func(i int, visited map[string]bool) bool {
		for _, id := range candidates[i] {
			if visited[id] {
				continue
			}
			visited[id] = true
			owner, taken := matchedDevice[id]
			if !taken || tryAugment(owner, visited) {
				matchedDevice[id] = i
				return true
			}
		}
		return false
	}

	for i := range candidates {
		if tryAugment(i, make(map[string]bool)) {
			matchSize++
		}
	}
	return matchSize
}
