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
	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/scheduler"
)

// staticQuerier answers fleet queries from a fixed serial list rather than
// contacting a real fleet service; how a production querier discovers
// devices is out of scope here (spec.md's device-querier Non-goal), but the
// control plane still needs a live scheduler.DeviceQuerier to wire through.
type staticQuerier struct {
	serials []string
}

func newStaticQuerier(cfg *config.Config) scheduler.DeviceQuerier {
	if cfg.DisableDeviceQuerier {
		return &staticQuerier{}
	}
	return &staticQuerier{serials: cfg.StaticDeviceSerials}
}

func (q *staticQuerier) Query(filter scheduler.DeviceQueryFilter) ([]scheduler.DeviceInfo, error) {
	excluded := make(map[string]bool, len(filter.ExcludeSerials))
	for _, s := range filter.ExcludeSerials {
		excluded[s] = true
	}
	included := make(map[string]bool, len(filter.IncludeSerials))
	for _, s := range filter.IncludeSerials {
		included[s] = true
	}

	var devices []scheduler.DeviceInfo
	for _, serial := range q.serials {
		if excluded[serial] {
			continue
		}
		if len(included) > 0 && !included[serial] {
			continue
		}
		devices = append(devices, scheduler.DeviceInfo{ID: serial, Dimensions: filter.RequiredDimensions})
	}
	return devices, nil
}
