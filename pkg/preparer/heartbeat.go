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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/logging"
	atstime "github.com/google/ats/pkg/time"
)

const (
	heartbeatInterval  = 10 * time.Second
	heartbeatRateLimit = 5 * time.Minute
)

// StartHeartbeat schedules a Heartbeat{client_id} call every
// heartbeatInterval until stop is closed, per spec.md §4.1. Transport
// errors are swallowed and rate-logged rather than propagated, since a
// single missed heartbeat is not actionable by the caller.
func (p *Preparer) StartHeartbeat(stop <-chan struct{}) {
	gate := logging.NewRateGate(heartbeatRateLimit)
	ticker := atstime.NewTicker(heartbeatInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := p.client.Heartbeat(p.cfg.ClientID); err != nil {
					gate.WarnRateLimited("heartbeat", logrus.Fields{"client_id": p.cfg.ClientID}, "heartbeat failed: %v", err)
				}
			}
		}
	}()
}
