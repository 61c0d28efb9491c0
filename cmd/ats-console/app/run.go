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

package app

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/google/ats/pkg/errlog"
	"github.com/google/ats/pkg/session"
)

const pollInterval = 2 * time.Second

type runFlags struct {
	testPlan             string
	xtsRootDir           string
	xtsType              string
	deviceSerialsInclude []string
	deviceSerialsExclude []string
	productTypes         []string
	moduleFiltersInclude []string
	moduleFiltersExclude []string
	extraArgs            []string
	requiredDeviceType   string
	wait                 bool
}

// NewCmdRun implements submitSession for a RunCommand (Component C),
// grounded on cmd/sonobuoy/app/run.go's "prepare, then submit" shape.
func NewCmdRun() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submits an xTS run to the OLC server",
		Args:  cobra.ExactArgs(0),
		Run:   submitRun(&f),
	}

	flags := cmd.Flags()
	flags.StringVar(&f.testPlan, "test-plan", "", "xTS test plan to run (e.g. cts)")
	flags.StringVar(&f.xtsRootDir, "xts-root-dir", "", "root directory of the xTS install")
	flags.StringVar(&f.xtsType, "xts-type", "", "xTS type (cts, gts, vts, ...); empty runs a non-tradefed job")
	flags.StringSliceVar(&f.deviceSerialsInclude, "serial", nil, "device serials to include")
	flags.StringSliceVar(&f.deviceSerialsExclude, "exclude-serial", nil, "device serials to exclude")
	flags.StringSliceVar(&f.productTypes, "product-type", nil, "acceptable device product types")
	flags.StringSliceVar(&f.moduleFiltersInclude, "module", nil, "modules to include")
	flags.StringSliceVar(&f.moduleFiltersExclude, "exclude-module", nil, "modules to exclude")
	flags.StringSliceVar(&f.extraArgs, "extra-arg", nil, "extra xTS command-line arguments")
	flags.StringVar(&f.requiredDeviceType, "device-type", "", "required device type dimension")
	flags.BoolVar(&f.wait, "wait", true, "wait for the session to finish and print its output")
	return cmd
}

func (f *runFlags) toConfig() session.Config {
	return session.Config{
		RunCommand: &session.RunCommand{
			TestPlan:             f.testPlan,
			XtsRootDir:           f.xtsRootDir,
			XtsType:              f.xtsType,
			DeviceSerialsInclude: f.deviceSerialsInclude,
			DeviceSerialsExclude: f.deviceSerialsExclude,
			ProductTypes:         f.productTypes,
			ModuleFiltersInclude: f.moduleFiltersInclude,
			ModuleFiltersExclude: f.moduleFiltersExclude,
			RequiredDeviceType:   f.requiredDeviceType,
			ExtraArgs:            f.extraArgs,
		},
	}
}

func submitRun(f *runFlags) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}

		if _, err := newPreparer(cfg).Prepare(); err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}

		stub := newSessionStub(cfg)
		sessionID, err := stub.SubmitSession(cfg.ClientID, f.toConfig())
		if err != nil {
			errlog.LogError(err)
			os.Exit(1)
		}
		fmt.Printf("session %s submitted\n", sessionID)

		if !f.wait {
			return
		}
		os.Exit(waitForSession(stub, sessionID))
	}
}

func waitForSession(stub *session.Stub, sessionID string) int {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " waiting for session to finish"
	s.Start()
	defer s.Stop()

	for {
		sessions, err := stub.GetAllSessions("", "")
		if err != nil {
			errlog.LogError(err)
			return 1
		}
		for _, sess := range sessions {
			if sess.ID != sessionID {
				continue
			}
			if sess.Status != session.StatusFinished {
				break
			}
			return reportOutput(sess.Output)
		}
		time.Sleep(pollInterval)
	}
}

func reportOutput(out session.Output) int {
	switch {
	case out.Success != nil:
		fmt.Println(*out.Success)
		return 0
	case out.Failure != nil:
		fmt.Fprintln(os.Stderr, *out.Failure)
		return 1
	default:
		fmt.Fprintln(os.Stderr, "session finished with no output")
		return 1
	}
}
