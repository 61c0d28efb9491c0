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

import "github.com/google/ats/pkg/job"

// JobStartEvent is posted across all five event scopes before the
// allocation loop begins, spec.md §4.3's pre-run step (d).
type JobStartEvent struct {
	Job *job.Job
}

// JobFirstAllocationEvent is posted once, the first time any allocation is
// received for a job, spec.md §4.3 step 5. It is posted with PostForward, so
// listeners of all five scopes receive it in forward order; delivery is not
// restricted to the API_PLUGIN scope.
type JobFirstAllocationEvent struct {
	Job *job.Job
}

// JobEndEvent is posted across all five event scopes, in reverse order,
// once a job's terminal result has been assigned, spec.md §4.3's
// post-run finalization step.
type JobEndEvent struct {
	Job *job.Job
}
