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
	"path/filepath"
	"time"

	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/sessionplugin"
	"github.com/google/ats/pkg/testmanager"
)

// testRunner adapts an Invoker into a testmanager.Runner, wrapping each
// invocation with the status transition and session-plugin notification
// spec.md §4.4 requires around every Tradefed-class test run.
type testRunner struct {
	plugin         *sessionplugin.Plugin
	invoker        Invoker
	sessionID      string
	jobID          string
	testPlan       string
	runtimeInfoDir string
}

func (r *testRunner) Run(test *job.Test, deviceIDs []string, cancel <-chan testmanager.TestMessage) job.Result {
	test.Status = job.TestRunning

	var runtimeInfoPath string
	if r.runtimeInfoDir != "" {
		runtimeInfoPath = filepath.Join(r.runtimeInfoDir, test.Locator.ID+".json")
	}
	r.plugin.OnTestStarting(r.sessionID, r.jobID, test.Locator.ID, deviceIDs, r.testPlan, runtimeInfoPath)

	start := time.Now()
	result := r.invoker.Invoke(test, deviceIDs, cancel, runtimeInfoPath)
	r.plugin.OnTestEnded(r.sessionID, test.Locator.ID, result, time.Since(start))

	return result
}
