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

	"github.com/google/ats/pkg/buildinfo"
	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/controlplane"
	"github.com/google/ats/pkg/preparer"
	"github.com/google/ats/pkg/session"
)

const clientMaxRetries = 3

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func baseURL(cfg *config.Config) string {
	return fmt.Sprintf("http://%s:%d", cfg.OLCServerHost, cfg.OLCServerPort)
}

func newControlClient(cfg *config.Config) *controlplane.Client {
	return controlplane.NewClient(baseURL(cfg), clientMaxRetries)
}

func newSessionStub(cfg *config.Config) *session.Stub {
	return session.NewStub(baseURL(cfg), clientMaxRetries)
}

func newPreparer(cfg *config.Config) *preparer.Preparer {
	version := controlplane.VersionInfo{Version: buildinfo.Version, BuildUser: buildinfo.BuildUser, BuildTime: buildinfo.BuildTime}
	return preparer.New(cfg, newControlClient(cfg), version)
}
