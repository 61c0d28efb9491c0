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
	"os"

	"github.com/google/ats/pkg/errlog"
	"github.com/spf13/cobra"
)

var logLevel string

// NewRootCommand builds the ats-console command tree: run, status, kill,
// version, grounded on cmd/sonobuoy/app/root.go's persistent-flags-plus-
// subcommands shape.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ats-console",
		Short: "Drives Android xTS runs against an ATS OLC server",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(0)
		},
	}

	root.PersistentFlags().BoolVarP(&errlog.DebugOutput, "debug", "d", false, "enable debug output (includes stack traces)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: panic, fatal, error, warn, info, debug, trace")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return errlog.SetLevel(logLevel)
	}

	root.AddCommand(NewCmdRun())
	root.AddCommand(NewCmdStatus())
	root.AddCommand(NewCmdKill())
	root.AddCommand(NewCmdVersion())
	return root
}
