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

// Package sessionplugin implements the ATS Session Plugin (Component G,
// spec.md §4.4): the event-subscribed coordinator that turns one Session's
// RunCommand into jobs, tracks every running Tradefed invocation under
// RunCommandState, and propagates cancellation. Grounded on the teacher's
// pkg/plugin/aggregation.Aggregator (a central struct holding lock-guarded
// maps of per-unit state, fed by check-ins, that answers "is everything
// done yet") generalized from one-shot result collection to a live,
// continuously-updated run command state.
package sessionplugin

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/jobrunner"
	"github.com/google/ats/pkg/runtimeinfo"
	"github.com/google/ats/pkg/session"
	"github.com/google/ats/pkg/testmanager"
)

// RuntimeInfoPollInterval is the fixed delay spec.md §4.4 requires between
// runtime-info polls.
const RuntimeInfoPollInterval = 5 * time.Second

type trackedTest struct {
	jobID string
}

// Plugin coordinates one Session: it owns the monotonic command-id counter,
// the running-tradefed-tests registry, the per-job test messengers used for
// cancellation, and a runtimeinfo.Updater per session with an active
// RunCommand.
type Plugin struct {
	store    *session.Store
	notifier *session.Notifier
	handler  RunCommandHandler
	results  ResultProcessor
	lister   ListCommandHandler
	dumper   DumpCommandHandler

	nextCommandID int64

	// runningTestsLock (spec.md §5's lock-ordering rule: acquire this
	// before testCancellationLock).
	runningTestsLock sync.Mutex
	runningTradefed  map[string]trackedTest
	messengers       map[string]TestMessenger
	updaters         map[string]*runtimeinfo.Updater
	updaterStop      map[string]chan struct{}

	testCancellationLock sync.Mutex
	cancellations        map[string]testmanager.TestMessage
}

// New constructs a Plugin. results and lister/dumper may be nil until
// pkg/runcommand supplies them; a nil collaborator degrades the
// corresponding path to a Failure output rather than panicking.
func New(store *session.Store, notifier *session.Notifier, handler RunCommandHandler, results ResultProcessor) *Plugin {
	return &Plugin{
		store:           store,
		notifier:        notifier,
		handler:         handler,
		results:         results,
		runningTradefed: make(map[string]trackedTest),
		messengers:      make(map[string]TestMessenger),
		updaters:        make(map[string]*runtimeinfo.Updater),
		updaterStop:     make(map[string]chan struct{}),
		cancellations:   make(map[string]testmanager.TestMessage),
	}
}

// SetRunCommandHandler wires the RunCommandHandler collaborator in after
// construction, since pkg/runcommand.Handler itself needs a *Plugin to
// construct, creating an unavoidable two-step wiring order at server
// startup.
func (p *Plugin) SetRunCommandHandler(h RunCommandHandler) { p.handler = h }

// SetResultProcessor wires the ResultProcessor collaborator in after
// construction, for the same reason as SetRunCommandHandler.
func (p *Plugin) SetResultProcessor(r ResultProcessor) { p.results = r }

// SetListCommandHandler wires the ListCommand collaborator in after
// construction, since pkg/runcommand is built after this package.
func (p *Plugin) SetListCommandHandler(h ListCommandHandler) { p.lister = h }

// SetDumpCommandHandler wires the DumpCommand collaborator in after
// construction.
func (p *Plugin) SetDumpCommandHandler(h DumpCommandHandler) { p.dumper = h }

// OnSessionStarting runs before the session transitions to RUNNING. For a
// RunCommand it assigns a monotonically increasing command id and seeds
// RunCommandState; ListCommand and DumpCommand are answered here directly
// since they have no invocation to track, spec.md §4.4.
func (p *Plugin) OnSessionStarting(sessionID string, cfg session.Config) {
	switch {
	case cfg.RunCommand != nil:
		id := atomic.AddInt64(&p.nextCommandID, 1)
		p.store.MutateOutput(sessionID, func(out *session.Output) {
			out.RunCommandState = &session.RunCommandState{
				CommandID:         id,
				RunningInvocation: make(map[string]session.Invocations),
			}
		})
	case cfg.ListCommand != nil:
		output, err := p.handleList(cfg.ListCommand)
		p.setTerminalOutput(sessionID, output, err)
	case cfg.DumpCommand != nil:
		output, err := p.handleDump(cfg.DumpCommand)
		p.setTerminalOutput(sessionID, output, err)
	}
}

func (p *Plugin) handleList(cmd *session.ListCommand) (string, error) {
	if p.lister == nil {
		return "", errNoCollaborator("list command handler")
	}
	return p.lister.HandleList(cmd)
}

func (p *Plugin) handleDump(cmd *session.DumpCommand) (string, error) {
	if p.dumper == nil {
		return "", errNoCollaborator("dump command handler")
	}
	return p.dumper.HandleDump(cmd)
}

func (p *Plugin) setTerminalOutput(sessionID, output string, err error) {
	p.store.MutateOutput(sessionID, func(out *session.Output) {
		if err != nil {
			msg := err.Error()
			out.Failure = &msg
			return
		}
		out.Success = &output
	})
}

// OnSessionStarted builds the session's jobs via the Run Command Handler
// and, for a RunCommand, starts the runtime-info updater on its 5-second
// fixed delay, spec.md §4.4.
func (p *Plugin) OnSessionStarted(sessionID string, cfg session.Config) {
	if cfg.RunCommand == nil {
		return
	}
	if p.handler != nil {
		if _, err := p.handler.BuildJobs(sessionID, cfg.RunCommand); err != nil {
			logrus.WithField("session_id", sessionID).WithError(err).
				Error("building jobs for run command failed")
		}
	}

	updater := runtimeinfo.NewUpdater(p.store, sessionID, RuntimeInfoPollInterval)
	stop := make(chan struct{})
	p.runningTestsLock.Lock()
	p.updaters[sessionID] = updater
	p.updaterStop[sessionID] = stop
	p.runningTestsLock.Unlock()
	go updater.Run(stop)
}

// RegisterJobMessenger makes jobID's running tests reachable for
// cancellation delivery; runcommand.Handler.BuildJobs calls this with the
// job's test manager before launching the job runner.
func (p *Plugin) RegisterJobMessenger(jobID string, messenger TestMessenger) {
	p.runningTestsLock.Lock()
	defer p.runningTestsLock.Unlock()
	p.messengers[jobID] = messenger
}

// UnregisterJobMessenger drops jobID's messenger once its JobEndEvent
// fires.
func (p *Plugin) UnregisterJobMessenger(jobID string) {
	p.runningTestsLock.Lock()
	defer p.runningTestsLock.Unlock()
	delete(p.messengers, jobID)
}

// OnJobEnd is an events.Bus listener registered at events.APIPlugin scope;
// it drops the job's messenger registration.
func (p *Plugin) OnJobEnd(event interface{}) error {
	if e, ok := event.(*jobrunner.JobEndEvent); ok && e.Job != nil {
		p.UnregisterJobMessenger(e.Job.Locator.ID)
	}
	return nil
}

// OnTestStarting records testID's invocation under RunCommandState,
// registers it for runtime-info polling and cancellation if runtimeInfoPath
// is non-empty, and immediately dispatches any cancellation that arrived
// before the test started. Registration under runningTestsLock is
// mutually exclusive with Cancel's snapshot-and-record critical section
// (spec.md §5's ordering rule), so a test is always either present in
// Cancel's snapshot or able to observe the recorded cancellation here —
// never both absent.
func (p *Plugin) OnTestStarting(sessionID, jobID, testID string, deviceIDs []string, testPlan, runtimeInfoPath string) {
	now := time.Now()
	p.store.MutateOutput(sessionID, func(out *session.Output) {
		if out.RunCommandState == nil {
			return
		}
		out.RunCommandState.RunningInvocation[testID] = session.Invocations{
			StartTime: now,
			Items: []session.Invocation{{
				CommandID:    out.RunCommandState.CommandID,
				StartTime:    now,
				DeviceIDs:    deviceIDs,
				StateSummary: testPlan,
			}},
		}
	})

	p.runningTestsLock.Lock()
	p.runningTradefed[testID] = trackedTest{jobID: jobID}
	if runtimeInfoPath != "" {
		if updater, ok := p.updaters[sessionID]; ok {
			updater.Track(testID, runtimeInfoPath)
		}
	}
	messenger := p.messengers[jobID]
	p.runningTestsLock.Unlock()

	if messenger == nil {
		return
	}
	p.testCancellationLock.Lock()
	msg, cancelled := p.cancellations[sessionID]
	p.testCancellationLock.Unlock()
	if cancelled {
		messenger.SendMessage(testID, msg)
	}
}

// OnTestEnded removes testID from the running-tradefed registry,
// accumulates its execution time into RunCommandState, and drops its
// runtime-info tracking, spec.md §4.4.
func (p *Plugin) OnTestEnded(sessionID, testID string, result job.Result, duration time.Duration) {
	p.runningTestsLock.Lock()
	delete(p.runningTradefed, testID)
	if updater, ok := p.updaters[sessionID]; ok {
		updater.Untrack(testID)
	}
	p.runningTestsLock.Unlock()

	p.store.MutateOutput(sessionID, func(out *session.Output) {
		if out.RunCommandState == nil {
			return
		}
		out.RunCommandState.TotalExecutionTime += duration
		delete(out.RunCommandState.RunningInvocation, testID)
	})

	if result.Kind != job.ResultPass {
		logrus.WithFields(logrus.Fields{
			"session_id": sessionID,
			"test_id":    testID,
			"result":     result.Kind,
			"cause":      result.Cause,
		}).Warn("test ended without PASS")
	}
}

// Cancel implements spec.md §4.4's cancellation path: stop the Run Command
// Handler from adding new jobs, then build a SIGTSTP test message and, in
// one critical section (runningTestsLock held across the nested
// testCancellationLock acquisition, per spec.md §5's ordering rule),
// snapshot the currently running tests and record the cancellation before
// releasing either lock. This closes the race where a test's
// OnTestStarting could otherwise run between a snapshot and a separate
// record step, missing both the snapshot and the recorded message.
// Delivery to the snapshot happens outside the locks.
func (p *Plugin) Cancel(sessionID, reason string) {
	if p.handler != nil {
		p.handler.StopAddingNewJobs(sessionID)
	}
	msg := testmanager.TestMessage{Signal: "SIGTSTP", Reason: reason}

	type target struct {
		testID    string
		messenger TestMessenger
	}
	p.runningTestsLock.Lock()
	var targets []target
	for testID, tt := range p.runningTradefed {
		if messenger, ok := p.messengers[tt.jobID]; ok {
			targets = append(targets, target{testID: testID, messenger: messenger})
		}
	}
	p.testCancellationLock.Lock()
	p.cancellations[sessionID] = msg
	p.testCancellationLock.Unlock()
	p.runningTestsLock.Unlock()

	for _, t := range targets {
		t.messenger.SendMessage(t.testID, msg)
	}
	if p.notifier != nil {
		p.notifier.Publish(session.Notification{SessionID: sessionID, Kind: session.NotificationCancellation})
	}
}

// OnSessionEnded stops the session's runtime-info updater and, for a
// RunCommand, hands off to the Result Processor to finalize the xTS result
// layout before composing the terminal Success/Failure output.
func (p *Plugin) OnSessionEnded(sessionID string, cfg session.Config) {
	p.runningTestsLock.Lock()
	if stop, ok := p.updaterStop[sessionID]; ok {
		close(stop)
		delete(p.updaterStop, sessionID)
		delete(p.updaters, sessionID)
	}
	p.runningTestsLock.Unlock()

	if cfg.RunCommand == nil {
		return
	}
	if p.results == nil {
		p.setTerminalOutput(sessionID, "", errNoCollaborator("result processor"))
		return
	}
	success, err := p.results.ProcessResults(sessionID, cfg.RunCommand)
	p.setTerminalOutput(sessionID, success, err)
}

type collaboratorError string

func (e collaboratorError) Error() string { return string(e) + " not configured" }

func errNoCollaborator(name string) error { return collaboratorError(name) }
