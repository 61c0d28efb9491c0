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
	"text/tabwriter"

	"github.com/google/ats/pkg/errlog"
	"github.com/spf13/cobra"
)

// NewCmdStatus lists sessions known to the OLC server, grounded on
// cmd/sonobuoy/app/status.go's tabwriter summary shape.
func NewCmdStatus() *cobra.Command {
	var nameRegex, statusRegex string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Lists sessions known to the OLC server",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				errlog.LogError(err)
				os.Exit(1)
			}

			sessions, err := newSessionStub(cfg).GetAllSessions(nameRegex, statusRegex)
			if err != nil {
				errlog.LogError(err)
				os.Exit(1)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 3, ' ', tabwriter.AlignRight)
			fmt.Fprintf(tw, "SESSION\tNAME\tSTATUS\tCLIENT\t\n")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", s.ID, s.Name, s.Status, s.ClientID)
			}
			tw.Flush()
		},
	}
	cmd.Flags().StringVar(&nameRegex, "name", "", "filter sessions by name regex")
	cmd.Flags().StringVar(&statusRegex, "status", "", "filter sessions by status regex")
	return cmd
}
