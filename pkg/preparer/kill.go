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

package preparer

import (
	"fmt"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/controlplane"
	atstime "github.com/google/ats/pkg/time"
)

const (
	killPollInterval = 1 * time.Second
	killPollAttempts = 10
)

// Kill implements the kill algorithm of spec.md §4.1. forcibly escalates to
// SIGKILL against the reported server pid when the server refuses to die
// gracefully.
func (p *Preparer) Kill(forcibly bool) (controlplane.KillServerResponse, error) {
	resp, err := p.client.KillServer(p.cfg.ClientID)
	if err != nil {
		return resp, newErr(KindCannotKillExisting, err)
	}

	if !resp.Success {
		table := renderKillFailure(resp.Failure)
		if !forcibly {
			return resp, newErr(KindCannotKillExisting, fmt.Errorf("server declined to stop:\n%s", table))
		}
		logrus.Warnf("server declined to stop, sending SIGKILL to pid %d:\n%s", resp.ServerPID, table)
		if err := syscall.Kill(resp.ServerPID, syscall.SIGKILL); err != nil {
			return resp, newErr(KindCannotKillExisting, fmt.Errorf("SIGKILL pid %d: %w", resp.ServerPID, err))
		}
		return resp, nil
	}

	for i := 0; i < killPollAttempts; i++ {
		<-atstime.After(killPollInterval)
		if _, err := p.client.GetVersion(); err != nil && isUnavailable(err) {
			return resp, nil
		}
	}
	return resp, newErr(KindStillRunning, fmt.Errorf("server still reachable %s after kill succeeded", killPollAttempts*killPollInterval))
}

// renderKillFailure tabulates unfinished sessions and alive clients the
// server reported as reasons it refused to stop, grounded on
// cmd/sonobuoy/app/*.go's tabwriter-based status tables.
func renderKillFailure(f *controlplane.KillServerFailure) string {
	if f == nil {
		return "(no reason reported)"
	}
	buf := &strings.Builder{}
	tw := tabwriter.NewWriter(buf, 0, 4, 2, ' ', 0)
	if len(f.UnfinishedSessions) > 0 {
		fmt.Fprintln(tw, "SESSION ID\tNAME\tSTATUS\tSUBMITTED")
		for _, s := range f.UnfinishedSessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Status, s.Submitted.Format(time.RFC3339))
		}
	}
	if len(f.AliveClients) > 0 {
		fmt.Fprintln(tw, "ALIVE CLIENT")
		for _, c := range f.AliveClients {
			fmt.Fprintf(tw, "%s\n", c)
		}
	}
	tw.Flush()
	return buf.String()
}

