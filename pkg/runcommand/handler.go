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

// Package runcommand implements the Run Command Handler (Component H,
// spec.md §2/§4.4): turning a session's RunCommand into Tradefed or
// non-Tradefed jobs driven by pkg/jobrunner, and finalizing result
// artifacts into the canonical xTS filesystem layout once a session ends.
// Grounded on pkg/plugin/aggregation/run.go's construct-then-launch
// sequence (build the aggregator and its dependents, then hand off to a
// background goroutine) and pkg/tarball's archive-then-place-under-a-
// canonical-directory shape for result finalization.
package runcommand

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/diagnostics"
	"github.com/google/ats/pkg/events"
	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/jobrunner"
	"github.com/google/ats/pkg/scheduler"
	"github.com/google/ats/pkg/session"
	"github.com/google/ats/pkg/sessionplugin"
	"github.com/google/ats/pkg/testmanager"
	"github.com/google/ats/pkg/xtsfs"
)

// Default job timing, since spec.md's RunCommand carries no per-command
// start/job timeout fields; every job built here uses these values.
const (
	defaultStartTimeout = 10 * time.Minute
	defaultJobTimeout   = 4 * time.Hour
)

// Handler builds and drives jobs for RunCommands and finalizes their
// result artifacts, implementing sessionplugin.RunCommandHandler and
// sessionplugin.ResultProcessor.
type Handler struct {
	cfg      *config.Config
	bus      *events.Bus
	querier  scheduler.DeviceQuerier
	verifier scheduler.Verifier
	invoker  Invoker
	plugin   *sessionplugin.Plugin
	store    *session.Store

	diagnosticCriteria []diagnostics.Criterion
	heapFloorMB        int
	heapNowMB          func() int

	tmpRoot string

	nextJobID int64

	mu      sync.Mutex
	stopped map[string]bool
}

// New constructs a Handler. heapNowMB and diagnosticCriteria may be nil,
// disabling allocation diagnosis for every job this handler builds.
func New(cfg *config.Config, bus *events.Bus, querier scheduler.DeviceQuerier, verifier scheduler.Verifier, invoker Invoker, plugin *sessionplugin.Plugin, store *session.Store, diagnosticCriteria []diagnostics.Criterion, heapFloorMB int, heapNowMB func() int) *Handler {
	return &Handler{
		cfg:                cfg,
		bus:                bus,
		querier:            querier,
		verifier:           verifier,
		invoker:            invoker,
		plugin:             plugin,
		store:              store,
		diagnosticCriteria: diagnosticCriteria,
		heapFloorMB:        heapFloorMB,
		heapNowMB:          heapNowMB,
		tmpRoot:            filepath.Join(os.TempDir(), "ats-jobs"),
		stopped:            make(map[string]bool),
	}
}

// BuildJobs creates and starts one job for cmd. A RunCommand with a
// non-empty XtsType builds a Tradefed-class job and returns its id in
// tradefedJobIDs; an empty XtsType builds a non-Tradefed job immediately
// and returns no tradefed ids, per spec.md §4.4's "if none, add
// non-tradefed jobs immediately."
func (h *Handler) BuildJobs(sessionID string, cmd *session.RunCommand) ([]string, error) {
	h.mu.Lock()
	if h.stopped[sessionID] {
		h.mu.Unlock()
		return nil, nil
	}
	h.mu.Unlock()

	isTradefed := cmd.XtsType != ""
	jobID := h.newJobID()

	j := &job.Job{
		Locator:    job.Locator{ID: jobID, Name: cmd.TestPlan},
		Dimensions: buildDimensions(cmd),
		SubDevices: buildSubDevices(cmd),
		Timing:     job.Timing{StartTimeout: defaultStartTimeout, JobTimeout: defaultJobTimeout},
		Properties: map[string]string{"session_id": sessionID},
		Tests: []*job.Test{{
			Locator:    job.Locator{ID: jobID + "-t1", Name: cmd.TestPlan},
			JobID:      jobID,
			Status:     job.TestNew,
			SubDevices: buildSubDevices(cmd),
		}},
	}

	var allocator scheduler.Allocator
	if h.cfg.EnableProxyMode {
		allocator = scheduler.NewProxyMediated(jobID, h.querier, h.verifier)
	} else {
		allocator = scheduler.NewSchedulerMediated(jobID, h.querier, h.verifier)
	}

	tmpDir := filepath.Join(h.tmpRoot, jobID)
	testManager := testmanager.NewManager(&testRunner{
		plugin:         h.plugin,
		invoker:        h.invoker,
		sessionID:      sessionID,
		jobID:          jobID,
		testPlan:       cmd.TestPlan,
		runtimeInfoDir: tmpDir,
	})
	h.plugin.RegisterJobMessenger(jobID, testManager)

	var diagnostician *diagnostics.Diagnostician
	if len(h.diagnosticCriteria) > 0 && h.heapNowMB != nil {
		diagnostician = diagnostics.New(h.querier, h.diagnosticCriteria, h.heapFloorMB, h.heapNowMB)
	}

	runner := jobrunner.New(j, h.cfg, h.bus, allocator, testManager, diagnostician)
	if h.cfg.RemoveJobGenFilesWhenFinished {
		runner.SetCleanup(func() error { return os.RemoveAll(tmpDir) })
	}

	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating job tmp dir for %s", jobID)
	}

	go runner.Run()

	if isTradefed {
		return []string{jobID}, nil
	}
	return nil, nil
}

// StopAddingNewJobs marks sessionID so future BuildJobs calls are no-ops,
// spec.md §4.4's cancellation step 1.
func (h *Handler) StopAddingNewJobs(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped[sessionID] = true
}

// ProcessResults implements handleResultProcessing: resolve the xTS
// filesystem layout, create the per-run results/logs directories, point
// their "latest" links at them, write invocation_summary.txt, and compose
// the final success message from command_line_args, session id, and
// command id, per spec.md §4.4.
func (h *Handler) ProcessResults(sessionID string, cmd *session.RunCommand) (string, error) {
	layout, err := xtsfs.DiscoverLayout(cmd.XtsRootDir)
	if err != nil {
		return "", errors.Wrap(err, "resolving xts filesystem layout")
	}

	ts := xtsfs.NewTimestampDir(time.Now())
	resultsDir, err := layout.ResultsDir(ts)
	if err != nil {
		return "", errors.Wrap(err, "creating results directory")
	}
	if _, err := layout.LogsDir(ts); err != nil {
		return "", errors.Wrap(err, "creating logs directory")
	}
	if err := layout.UpdateLatest("results", ts); err != nil {
		return "", errors.Wrap(err, "updating results/latest")
	}
	if err := layout.UpdateLatest("logs", ts); err != nil {
		return "", errors.Wrap(err, "updating logs/latest")
	}

	commandID := int64(0)
	if sess := h.store.Get(sessionID); sess != nil && sess.Output.RunCommandState != nil {
		commandID = sess.Output.RunCommandState.CommandID
	}

	summary := fmt.Sprintf("command_line_args=%q session_id=%s command_id=%d", cmd.InitialState.CommandLineArgs, sessionID, commandID)
	if err := xtsfs.WriteInvocationSummary(resultsDir, summary); err != nil {
		return "", errors.Wrap(err, "writing invocation summary")
	}

	logrus.WithFields(logrus.Fields{"session_id": sessionID, "command_id": commandID}).
		Info("run command result processing complete")
	return summary, nil
}

func (h *Handler) newJobID() string {
	id := atomic.AddInt64(&h.nextJobID, 1)
	return fmt.Sprintf("job-%d", id)
}

func buildDimensions(cmd *session.RunCommand) map[string]string {
	dims := make(map[string]string)
	if cmd.RequiredDeviceType != "" {
		dims["device_type"] = cmd.RequiredDeviceType
	}
	for k, v := range cmd.DevicePropertyMap {
		dims[k] = v
	}
	return dims
}

func buildSubDevices(cmd *session.RunCommand) []job.SubDeviceSpec {
	dims := buildDimensions(cmd)
	if len(cmd.ProductTypes) > 0 {
		dims["product_type"] = cmd.ProductTypes[0]
	}
	return []job.SubDeviceSpec{{Dimensions: dims}}
}
