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

	"github.com/google/ats/pkg/errlog"
	"github.com/spf13/cobra"
)

// NewCmdKill implements killServer (Component A), forcibly terminating the
// OLC server if --forcibly is set, otherwise honoring its unfinished-
// session refusal per spec.md §6.
func NewCmdKill() *cobra.Command {
	var forcibly bool
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Kills the running OLC server",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				errlog.LogError(err)
				os.Exit(1)
			}

			if _, err := newPreparer(cfg).Kill(forcibly); err != nil {
				errlog.LogError(err)
				os.Exit(1)
			}
			fmt.Println("server stopped")
		},
	}
	cmd.Flags().BoolVar(&forcibly, "forcibly", false, "kill the server even if sessions are still running")
	return cmd
}
