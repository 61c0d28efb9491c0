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

package sessionplugin

import (
	"github.com/google/ats/pkg/session"
	"github.com/google/ats/pkg/testmanager"
)

// RunCommandHandler is the external collaborator that turns a RunCommand
// into Tradefed and non-Tradefed jobs, spec.md §4.4's "call the Run Command
// Handler to build tradefed jobs". The session plugin only orchestrates the
// lifecycle events around job creation; it never builds jobs itself.
type RunCommandHandler interface {
	// BuildJobs creates jobs for cmd and returns the set of tradefed job
	// ids among them; non-tradefed jobs are added immediately by the
	// handler itself when there are no tradefed jobs.
	BuildJobs(sessionID string, cmd *session.RunCommand) (tradefedJobIDs []string, err error)
	// StopAddingNewJobs tells the handler to stop enqueueing further jobs,
	// spec.md §4.4's cancellation step 1.
	StopAddingNewJobs(sessionID string)
}

// ResultProcessor performs spec.md §4.4's handleResultProcessing: copying
// Tradefed/non-Tradefed generated logs and results into the canonical xTS
// layout, updating the latest symlink, and producing invocation_summary.txt.
type ResultProcessor interface {
	ProcessResults(sessionID string, cmd *session.RunCommand) (successMessage string, err error)
}

// ListCommandHandler answers a ListCommand with a single terminal output.
type ListCommandHandler interface {
	HandleList(cmd *session.ListCommand) (output string, err error)
}

// DumpCommandHandler answers a DumpCommand with a single terminal output.
type DumpCommandHandler interface {
	HandleDump(cmd *session.DumpCommand) (output string, err error)
}

// TestMessenger is the subset of testmanager.Manager the session plugin
// needs to deliver cancellation messages, scoped narrowly so this package
// does not need the rest of testmanager.Manager's surface.
type TestMessenger interface {
	SendMessage(testID string, msg testmanager.TestMessage) bool
}
