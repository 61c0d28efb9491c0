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
	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/testmanager"
)

// Invoker is the external collaborator that actually runs a Tradefed or
// non-Tradefed subprocess for one test (spec.md §1's "Tradefed subprocess
// internals" Non-goal — this package only wraps the invocation with status
// transitions, runtime-info plumbing, and session-plugin notification).
// runtimeInfoPath, if non-empty, names the file the invocation is expected
// to write its Tradefed Runtime-Info Snapshot to.
type Invoker interface {
	Invoke(test *job.Test, deviceIDs []string, cancel <-chan testmanager.TestMessage, runtimeInfoPath string) job.Result
}
