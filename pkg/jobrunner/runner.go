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

// Package jobrunner implements the Job Runner (Component F, spec.md §4.3):
// the full per-job state machine, from pre-run plugin dispatch through the
// polling allocation loop to post-run finalization. It is grounded on
// pkg/plugin/aggregation/run.go's Run() orchestration function (construct →
// launch → wait-with-timeout), generalized into a richer multi-phase
// sequence.
package jobrunner

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/diagnostics"
	"github.com/google/ats/pkg/events"
	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/scheduler"
	"github.com/google/ats/pkg/testmanager"
	atstime "github.com/google/ats/pkg/time"
)

// Fixed protocol constants named throughout spec.md §4.3.
const (
	baseSleepInterval     = 1 * time.Second
	sleepOverrunWarnRatio = 4
	pendingPrinterPeriod  = 30 * time.Second
	diagnosticInterval    = 60 * time.Second
	allocationDiagnoseN   = 3
	threadPoolShutdownCap = 5 * time.Minute

	realTimePollsBeforeSlowdown = 15
	standardPollsBeforeSlowdown = 4

	multiplierLocal        = 1
	multiplierNoNewTests   = 40
	multiplierRealTimeFast = 4
	multiplierRealTimeSlow = 16
	multiplierStandardFast = 2
	multiplierStandardSlow = 16
)

// Runner drives one Job through the full state machine of spec.md §4.3.
type Runner struct {
	job           *job.Job
	cfg           *config.Config
	bus           *events.Bus
	allocator     scheduler.Allocator
	testManager   *testmanager.Manager
	diagnostician *diagnostics.Diagnostician
	checker       *suitableDeviceChecker

	mu             sync.Mutex
	testsByID      map[string]*job.Test
	pollCount      int
	everAllocated  bool
	abortRequested bool
	manualAbort    bool

	cleanup func() error
}

// SetCleanup registers a hook run once at the very end of postRun to clear
// run-file, gen-file, and tmp-file directories, per spec.md §4.3's
// post-run finalization. A failure is swallowed and logged as a warning,
// never overwrites the job's already-assigned result.
func (r *Runner) SetCleanup(cleanup func() error) {
	r.cleanup = cleanup
}

// New constructs a Runner for j. diagnostician may be nil, disabling
// allocation diagnosis entirely (the run-count/heap-floor guards then never
// fire). The Suitable-Device Checker is not a parameter: the allocation
// loop builds it from cfg.AllocationExitStrategy and builds none for NORMAL.
func New(j *job.Job, cfg *config.Config, bus *events.Bus, allocator scheduler.Allocator, tm *testmanager.Manager, diagnostician *diagnostics.Diagnostician) *Runner {
	byID := make(map[string]*job.Test, len(j.Tests))
	for _, t := range j.Tests {
		byID[t.Locator.ID] = t
	}
	return &Runner{
		job:           j,
		cfg:           cfg,
		bus:           bus,
		allocator:     allocator,
		testManager:   tm,
		diagnostician: diagnostician,
		testsByID:     byID,
	}
}

// Run drives the job to a terminal result in the calling goroutine, per
// spec.md §4.3's "run() starts the state machine in the current task".
func (r *Runner) Run() {
	if skip := r.preRun(); skip {
		r.postRun()
		return
	}
	r.allocationLoop()
	r.postRun()
}

// KillAllTests requests cooperative shutdown of every in-flight test, per
// spec.md §4.3's kill_all_tests contract. Safe to call multiple times or
// concurrently with Run; later calls subsume earlier ones.
func (r *Runner) KillAllTests(reason string) {
	r.mu.Lock()
	r.abortRequested = true
	r.mu.Unlock()
	r.testManager.KillAll(reason)
}

// preRun implements spec.md §4.3's pre-run steps (a)-(d). Returns true if a
// plugin signalled "skip job".
func (r *Runner) preRun() bool {
	if r.job.Properties == nil {
		r.job.Properties = make(map[string]string)
	}
	r.job.Properties["trace.job_id"] = r.job.Locator.ID

	err := r.bus.PostForward(JobStartEvent{Job: r.job})
	if err == nil {
		return false
	}

	if skip, ok := err.(*events.SkipJob); ok {
		for _, t := range r.job.Tests {
			t.SetResultIfUnknown(job.Result{Kind: job.ResultSkip, Cause: skip.Reason})
			t.Status = job.TestDone
		}
		r.job.SetResultIfUnknown(job.Result{Kind: job.ResultSkip, Cause: skip.Reason})
		return true
	}

	r.job.Warnings = append(r.job.Warnings, err.Error())
	return false
}

// allocationLoop implements spec.md §4.3's allocation loop exactly, the
// select/ticker shape grounded on pkg/plugin/aggregation/run.go's
// `select { case <-timeout: ...; case <-doneServ: ...; case <-doneAggr: ...
// }`, generalized here into a sleeping poll loop instead of a one-shot
// select, since the job runner must repeatedly re-evaluate allocator state.
func (r *Runner) allocationLoop() {
	start := atstime.Now()
	r.job.Timing.Start = start
	expireTime := start.Add(r.job.Timing.StartTimeout)
	diagnosticTime := expireTime.Add(-minDuration(diagnosticInterval*(allocationDiagnoseN-1), r.job.Timing.StartTimeout/2))

	if err := r.allocator.SetUp(); err != nil {
		msg := fmt.Sprintf("allocator setup failed, skipping allocation: %v", err)
		r.job.Warnings = append(r.job.Warnings, msg)
		r.job.SetResultIfUnknown(job.Result{Kind: job.ResultError, Cause: msg})
		return
	}
	defer r.allocator.TearDown()

	r.checker = r.suitableDeviceCheckerForExitStrategy()

	nextPoll := start
	printerDue := start.Add(pendingPrinterPeriod)

	for !(job.AllDone(r.job.Tests) && !r.testManager.IsAnyTestRunning()) {
		r.mu.Lock()
		aborted := r.abortRequested
		r.mu.Unlock()
		if aborted {
			r.job.SetResultIfUnknown(job.Result{Kind: job.ResultAbort, Cause: "CLIENT_JR_JOB_EXEC_INTERRUPTED"})
			return
		}

		sleepStart := atstime.Now()
		<-atstime.After(baseSleepInterval)
		if overran := atstime.Now().Sub(sleepStart); overran > baseSleepInterval*sleepOverrunWarnRatio {
			logrus.WithField("job_id", r.job.Locator.ID).Warnf("allocation loop sleep overran by more than %dx", sleepOverrunWarnRatio)
		}

		now := atstime.Now()
		if r.job.Timing.JobTimeout > 0 && now.Sub(start) > r.job.Timing.JobTimeout {
			r.job.SetResultIfUnknown(job.Result{Kind: job.ResultTimeout, Cause: "CLIENT_JR_JOB_EXPIRED"})
			return
		}

		if now.Before(nextPoll) {
			continue
		}
		r.pollCount++
		nextPoll = now.Add(r.nextPollInterval())

		r.drainAndAssign()

		if !r.everAllocated {
			if now.After(expireTime) {
				r.onJobStartTimeout(true)
				return
			}
			if now.After(diagnosticTime) {
				r.runDiagnosticNonBlocking()
				diagnosticTime = diagnosticTime.Add(diagnosticInterval)
			}
		}

		if !r.everAllocated && r.cfg.AllocationExitStrategy != config.AllocationExitNormal && r.checker != nil {
			r.checker.tick()
		}

		if now.After(printerDue) {
			r.printPendingTests()
			printerDue = now.Add(pendingPrinterPeriod)
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// nextPollInterval implements the multiplier table of spec.md §4.3 step 4.
func (r *Runner) nextPollInterval() time.Duration {
	switch {
	case r.allocator.IsLocal():
		return baseSleepInterval * multiplierLocal
	case !r.anyTestPending():
		return baseSleepInterval * multiplierNoNewTests
	case r.cfg.RealTimeJob:
		if r.pollCount <= realTimePollsBeforeSlowdown {
			return baseSleepInterval * multiplierRealTimeFast
		}
		return baseSleepInterval * multiplierRealTimeSlow
	default:
		if r.pollCount <= standardPollsBeforeSlowdown {
			return baseSleepInterval * multiplierStandardFast
		}
		return baseSleepInterval * multiplierStandardSlow
	}
}

func (r *Runner) anyTestPending() bool {
	for _, t := range r.job.Tests {
		if t.Status == job.TestNew {
			return true
		}
	}
	return false
}

// drainAndAssign implements spec.md §4.3 step 5.
func (r *Runner) drainAndAssign() {
	for _, alloc := range r.allocator.PollAllocations() {
		t, ok := r.allocator.VerifyAndAccept(r.testsByID, alloc)
		if !ok {
			continue
		}

		if t.Properties == nil {
			t.Properties = make(map[string]string)
		}
		t.Properties["allocation.queue_latency_ms"] = fmt.Sprintf("%d", alloc.QueueLatency.Milliseconds())
		t.Properties["allocation.queue_latency_s"] = fmt.Sprintf("%.3f", alloc.QueueLatency.Seconds())

		if !r.everAllocated {
			r.everAllocated = true
			if err := r.bus.PostForward(JobFirstAllocationEvent{Job: r.job}); err != nil {
				r.job.Warnings = append(r.job.Warnings, err.Error())
			}
		}

		t.Status = job.TestAssigned
		setting := testmanager.DirectTestRunnerSetting{Test: t, DeviceIDs: alloc.DeviceIDs}
		if err := r.testManager.Start(setting, func(result job.Result) {
			t.SetResultIfUnknown(result)
			t.Status = job.TestDone
			r.allocator.ReleaseAllocation(alloc.Allocation, result, false)
		}); err != nil {
			t.SetResultIfUnknown(job.Result{Kind: job.ResultError, Cause: err.Error()})
			t.Status = job.TestDone
			r.allocator.ReleaseAllocation(alloc.Allocation, t.Result, true)
		}
	}
}

// suitableDeviceCheckerForExitStrategy builds the checker used by step 7 of
// spec.md §4.3's allocation loop; NORMAL strategy jobs never use it (step 7
// only fires when AllocationExitStrategy != NORMAL), so it returns nil in
// that case along with the "max retries = 1" table of §4.3's
// allocation-exit strategies for the fail-fast variants.
func (r *Runner) suitableDeviceCheckerForExitStrategy() *suitableDeviceChecker {
	var maxQueries int
	switch r.cfg.AllocationExitStrategy {
	case config.AllocationExitFailFastNoIdle, config.AllocationExitFailFastNoMatch:
		maxQueries = 1
	default:
		return nil
	}
	var subdevices []job.SubDeviceSpec
	for _, t := range r.job.Tests {
		subdevices = append(subdevices, t.SubDevices...)
	}
	if len(subdevices) == 0 {
		return nil
	}
	querier, ok := r.allocator.(interface {
		Querier() scheduler.DeviceQuerier
	})
	if !ok {
		return nil
	}
	return newSuitableDeviceChecker(querier.Querier(), subdevices, maxQueries, func() { r.onJobStartTimeout(false) })
}

func (r *Runner) onJobStartTimeout(isStartTimeoutExpired bool) {
	cause := "CLIENT_JR_JOB_START_TIMEOUT"
	if isStartTimeoutExpired {
		cause = "CLIENT_JR_JOB_START_TIMEOUT_EXPIRED"
	}
	r.job.SetResultIfUnknown(job.Result{Kind: job.ResultTimeout, Cause: cause})
}

func (r *Runner) runDiagnosticNonBlocking() {
	if r.diagnostician == nil {
		return
	}
	go func() {
		report := r.diagnostician.Run()
		if report == nil {
			return
		}
		logrus.WithField("job_id", r.job.Locator.ID).WithField("error_id", report.ErrorID).
			Debug("allocation diagnosis report updated")
	}()
}

func (r *Runner) printPendingTests() {
	counts := map[job.TestStatus]int{}
	for _, t := range r.job.Tests {
		counts[t.Status]++
	}
	logrus.WithField("job_id", r.job.Locator.ID).Infof("pending tests: new=%d assigned=%d running=%d done=%d",
		counts[job.TestNew], counts[job.TestAssigned], counts[job.TestRunning], counts[job.TestDone])
}

// postRun implements spec.md §4.3's post-run finalization: shut down the
// test thread pool, assign a terminal job result from the finalization
// table, apply manual-abort overrides, and post JobEndEvent in reverse
// scope order.
func (r *Runner) postRun() {
	r.waitForInFlightTests(threadPoolShutdownCap)

	if r.manualAbort {
		for _, t := range r.job.Tests {
			if t.Status != job.TestDone && t.Status == job.TestNew {
				t.SetResultIfUnknown(job.Result{Kind: job.ResultAbort, Cause: "CLIENT_JR_JOB_MANUALLY_ABORTED"})
				t.Status = job.TestDone
			}
		}
	}

	r.job.SetResultIfUnknown(r.finalResult())

	if err := r.bus.PostReverse(JobEndEvent{Job: r.job}); err != nil {
		r.job.Warnings = append(r.job.Warnings, err.Error())
	}

	if r.cleanup != nil {
		if err := r.cleanup(); err != nil {
			logrus.WithField("job_id", r.job.Locator.ID).WithError(err).
				Warn("cleaning up run/gen/tmp file directories failed")
		}
	}
}

func (r *Runner) waitForInFlightTests(limit time.Duration) {
	deadline := atstime.Now().Add(limit)
	for r.testManager.IsAnyTestRunning() && atstime.Now().Before(deadline) {
		<-atstime.After(baseSleepInterval)
	}
}

// finalResult scans every test's final status and classifies the job's
// terminal result per the table in spec.md §4.3.
func (r *Runner) finalResult() job.Result {
	if len(r.job.Tests) == 0 {
		return job.Result{Kind: job.ResultError, Cause: "CLIENT_JR_JOB_START_WITHOUT_TEST"}
	}

	var anyErrorLike, anyFail, anySuspended, anyNotStarted bool
	allSkipped := true
	for _, t := range r.job.Tests {
		if t.Result.Kind == job.ResultError || t.Result.Kind == job.ResultTimeout {
			anyErrorLike = true
		}
		if t.Result.Kind == job.ResultFail {
			anyFail = true
		}
		if t.Result.Kind != job.ResultSkip {
			allSkipped = false
		}
		if t.Status == job.TestSuspended {
			anySuspended = true
		}
		if t.Status == job.TestNew {
			anyNotStarted = true
		}
	}

	switch {
	case anyErrorLike && r.diagnosticDominant(diagnostics.ErrorInfra):
		return job.Result{Kind: job.ResultError, Cause: "CLIENT_JR_JOB_HAS_INFRA_ERROR_TEST"}
	case anyErrorLike:
		return job.Result{Kind: job.ResultError, Cause: "CLIENT_JR_JOB_HAS_ERROR_TEST"}
	case anyFail:
		return job.Result{Kind: job.ResultFail, Cause: "CLIENT_JR_JOB_HAS_FAIL_TEST"}
	case r.diagnosticDominant(diagnostics.ErrorInfra):
		return job.Result{Kind: job.ResultError, Cause: "CLIENT_JR_JOB_HAS_ALLOC_ERROR_TEST"}
	case r.diagnosticDominant(diagnostics.ErrorUserConfig):
		return job.Result{Kind: job.ResultError, Cause: "CLIENT_JR_JOB_HAS_ALLOC_FAIL_TEST"}
	case anySuspended:
		return job.Result{Kind: job.ResultError, Cause: "CLIENT_JR_JOB_HAS_ALLOC_FAIL_TEST"}
	case anyNotStarted && !r.everAllocated:
		return r.job.Result
	case allSkipped:
		return job.Result{Kind: job.ResultSkip}
	default:
		return job.Result{Kind: job.ResultPass}
	}
}

func (r *Runner) diagnosticDominant(id diagnostics.ErrorID) bool {
	if r.diagnostician == nil {
		return false
	}
	report := r.diagnostician.Last()
	return report != nil && report.ErrorID == id
}
