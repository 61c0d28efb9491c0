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

	"github.com/google/ats/pkg/buildinfo"
	"github.com/google/ats/pkg/errlog"
	"github.com/spf13/cobra"
)

// NewCmdVersion reports the console's own build version and, if a server is
// reachable, the running server's version too.
func NewCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the ats-console version and the running server's version",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ats-console %s\n", buildinfo.Version)

			cfg, err := loadConfig()
			if err != nil {
				errlog.LogError(err)
				os.Exit(1)
			}
			resp, err := newControlClient(cfg).GetVersion()
			if err != nil {
				fmt.Println("server: unavailable")
				return
			}
			fmt.Printf("server: %s (pid %d)\n", resp.VersionInfo.Version, resp.ProcessID)
		},
	}
}
