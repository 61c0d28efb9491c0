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

package main

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/job"
	"github.com/google/ats/pkg/testmanager"
)

// subprocessInvoker runs each allocated test as a shell command, grounded
// on the Preparer's exec.Cmd spawn-and-watch pattern in
// pkg/preparer/preparer.go. Tradefed subprocess internals are out of
// scope; this exists so runcommand.Handler has a real, non-fake Invoker to
// drive.
type subprocessInvoker struct {
	cfg *config.Config
}

func newSubprocessInvoker(cfg *config.Config) *subprocessInvoker {
	return &subprocessInvoker{cfg: cfg}
}

func (iv *subprocessInvoker) Invoke(test *job.Test, deviceIDs []string, cancel <-chan testmanager.TestMessage, runtimeInfoPath string) job.Result {
	command := iv.cfg.TestCommandTemplate
	if strings.Contains(command, "%s") {
		command = fmt.Sprintf(command, test.Locator.Name)
	}
	cmd := exec.Command("sh", "-c", command)

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return job.Result{Kind: job.ResultError, Cause: err.Error()}
	}
	go func() { done <- cmd.Wait() }()

	select {
	case msg := <-cancel:
		logrus.WithField("test", test.Locator.ID).WithField("reason", msg.Reason).Info("cancelling test subprocess")
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-done
		return job.Result{Kind: job.ResultAbort, Cause: msg.Reason}
	case err := <-done:
		if err != nil {
			return job.Result{Kind: job.ResultFail, Cause: err.Error()}
		}
		return job.Result{Kind: job.ResultPass}
	}
}
