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

// Package session implements the Session data model (spec.md §3) and the
// client-side Session Stub (Component C). Session-service RPC transport
// mirrors pkg/controlplane's mux-routed HTTP/JSON shape.
package session

import "time"

// Status is a Session's lifecycle state.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusRunning   Status = "RUNNING"
	StatusFinished  Status = "FINISHED"
)

// Reserved property-map keys, spec.md §3.
const (
	PropertyCommandID         = "command_id"
	PropertySessionClientID   = "session_client_id"
	PropertyContainStartedTest = "contain_started_test"
)

// RunCommand is an immutable specification of an xTS run, spec.md §3.
type RunCommand struct {
	TestPlan     string
	XtsRootDir   string
	XtsType      string
	DeviceSerialsInclude []string
	DeviceSerialsExclude []string
	ProductTypes []string
	ModuleFiltersInclude []string
	ModuleFiltersExclude []string
	ModuleMetadataFilters map[string]string
	ModuleArgs   []string
	ExtraArgs    []string
	RetryDescriptors []string
	RequiredDeviceType string
	MinBatteryLevel  int
	MaxBatteryLevel  int
	MinSdkLevel      int
	MaxSdkLevel      int
	EnableXtsDynamicDownload bool
	InitialState struct {
		CommandLineArgs string
	}
	DevicePropertyMap map[string]string
}

// ListCommandKind distinguishes the two ListCommand variants.
type ListCommandKind string

const (
	ListDevicesCommand ListCommandKind = "ListDevicesCommand"
	ListModulesCommand ListCommandKind = "ListModulesCommand"
)

// ListCommand asks for a point-in-time listing; it has a single terminal
// output and no invocation tracking (spec.md §4.4).
type ListCommand struct {
	Kind ListCommandKind
}

// DumpCommandKind distinguishes the three DumpCommand variants.
type DumpCommandKind string

const (
	DumpEnvVarCommand     DumpCommandKind = "DumpEnvVarCommand"
	DumpStackTraceCommand DumpCommandKind = "DumpStackTraceCommand"
	DumpUptimeCommand     DumpCommandKind = "DumpUptimeCommand"
)

// DumpCommand asks the server to dump diagnostic state.
type DumpCommand struct {
	Kind DumpCommandKind
}

// Config is the tagged AtsSessionPluginConfig variant (spec.md §6): exactly
// one of RunCommand, ListCommand, DumpCommand is set.
type Config struct {
	RunCommand  *RunCommand
	ListCommand *ListCommand
	DumpCommand *DumpCommand
}

// Invocation is one live test's runtime snapshot, spec.md §3.
type Invocation struct {
	CommandID    int64
	StartTime    time.Time
	DeviceIDs    []string
	StateSummary string
}

// Invocations is the per-test set of invocation records.
type Invocations struct {
	StartTime time.Time
	Items     []Invocation
}

// RunCommandState is the live per-command state mutated under a single
// lock; every mutation writes the full state through to
// AtsSessionPluginOutput atomically (spec.md §3, §5).
type RunCommandState struct {
	CommandID          int64
	TotalExecutionTime time.Duration
	RunningInvocation  map[string]Invocations
	InitialState       string
}

// Output is the tagged AtsSessionPluginOutput variant, spec.md §6.
type Output struct {
	Success         *string
	Failure         *string
	RunCommandState *RunCommandState
}

// Session is the top-level unit the server manages, spec.md §3.
type Session struct {
	ID       string
	Name     string
	ClientID string
	Status   Status
	Config   Config
	Output   Output
	Properties map[string]string
	Submitted time.Time
}
