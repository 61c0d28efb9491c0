/*
Copyright 2017 Heptio Inc.

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

// Package config holds the configuration knobs that used to live behind
// Flags.instance() in the Java original. Every value is threaded in at
// construction time instead of read from global state.
package config

import "time"

// LaunchStrategy selects how the Server Preparer spawns a new OLC server
// process.
type LaunchStrategy string

const (
	// LaunchInProcessSupervised watches the child's stdout for the
	// "OLC server started" marker line.
	LaunchInProcessSupervised LaunchStrategy = "in-process-supervised"
	// LaunchDetached spawns with `sh -c 'nohup ... &'` and relies solely on
	// getVersion retries for readiness.
	LaunchDetached LaunchStrategy = "detached"
)

// AllocationExitStrategy controls how aggressively the Job Runner gives up
// waiting for a device allocation.
type AllocationExitStrategy string

const (
	// AllocationExitNormal is the default, patient strategy.
	AllocationExitNormal AllocationExitStrategy = "NORMAL"
	// AllocationExitFailFastNoIdle fails fast if no idle device exists.
	AllocationExitFailFastNoIdle AllocationExitStrategy = "FAIL_FAST_NO_IDLE"
	// AllocationExitFailFastNoMatch fails fast if no matching device exists.
	AllocationExitFailFastNoMatch AllocationExitStrategy = "FAIL_FAST_NO_MATCH"
)

// Config is the full set of knobs recognized by the control plane. It is
// assembled once (by the viper-backed loader) and threaded explicitly into
// every component that needs it; no component reads global state.
type Config struct {
	// ClientID identifies the calling client to the OLC server.
	ClientID string `mapstructure:"client_id"`
	// ClientComponentName is a human-readable label for the client.
	ClientComponentName string `mapstructure:"client_component_name"`

	// OLCServerPort is the control/session RPC port.
	OLCServerPort int `mapstructure:"olc_server_port"`
	// OLCServerHost is the host the OLC server listens/is reached on.
	OLCServerHost string `mapstructure:"olc_server_host"`

	// AtsConsoleOLCServerXmx is the heap-max argument passed to the spawned
	// server runtime.
	AtsConsoleOLCServerXmx string `mapstructure:"ats_console_olc_server_xmx"`
	// AtsConsoleAlwaysRestartOLCServer forces a restart on the first
	// preparation attempt of a process lifetime, even if a compatible
	// server is found.
	AtsConsoleAlwaysRestartOLCServer bool `mapstructure:"ats_console_always_restart_olc_server"`
	// AtsConsoleOLCServerOutputPath is the fallback stdout/stderr capture
	// file read when the in-memory stderr buffer is empty.
	AtsConsoleOLCServerOutputPath string `mapstructure:"ats_console_olc_server_output_path"`

	// LaunchStrategy selects the process-spawn strategy (spec §4.1).
	LaunchStrategy LaunchStrategy `mapstructure:"launch_strategy"`

	// TestCommandTemplate is the shell command run for each allocated
	// test, with %s substituted for the test's name; Tradefed subprocess
	// internals are out of scope here, so this is a minimal, swappable
	// invocation rather than a real xTS launcher.
	TestCommandTemplate string `mapstructure:"test_command_template"`

	// DisableDeviceQuerier short-circuits device fleet queries (tests only).
	DisableDeviceQuerier bool `mapstructure:"disable_device_querier"`
	// StaticDeviceSerials seeds the built-in static device querier, since
	// this control plane does not prescribe how a real fleet is discovered.
	StaticDeviceSerials []string `mapstructure:"static_device_serials"`
	// RealTimeJob switches the poll-interval multiplier table to its
	// real-time variant.
	RealTimeJob bool `mapstructure:"real_time_job"`
	// RemoveJobGenFilesWhenFinished controls whether gen-files are cleared
	// during post-run finalization.
	RemoveJobGenFilesWhenFinished bool `mapstructure:"remove_job_gen_files_when_finished"`
	// LowerLimitOfJVMMaxMemoryAllowForAllocationDiagnosticMB gates whether
	// allocation diagnosis runs at all, to avoid OOM on large fleets.
	LowerLimitOfJVMMaxMemoryAllowForAllocationDiagnosticMB int `mapstructure:"lower_limit_of_jvm_max_memory_allow_for_allocation_diagnostic"`
	// XtsDisableTfResultLog disables Tradefed result logging.
	XtsDisableTfResultLog bool `mapstructure:"xts_disable_tf_result_log"`
	// EnableProxyMode selects the proxy-mediated device allocator.
	EnableProxyMode bool `mapstructure:"enable_proxy_mode"`
	// AtsDeviceRecoveryTimeout bounds how long a device may spend
	// recovering before being treated as unusable.
	AtsDeviceRecoveryTimeout time.Duration `mapstructure:"ats_device_recovery_timeout"`

	// AllocationExitStrategy is the default allocation-exit policy; jobs
	// may override it individually.
	AllocationExitStrategy AllocationExitStrategy `mapstructure:"allocation_exit_strategy"`
}

// Default returns a Config populated with sensible defaults. Fixed protocol
// constants named throughout spec.md (the 40s start-wait, the 10s heartbeat
// interval, etc.) are not configuration and live as constants next to the
// components that use them.
func Default() *Config {
	return &Config{
		ClientComponentName:              "ats-console",
		OLCServerPort:                    7470,
		OLCServerHost:                    "localhost",
		AtsConsoleOLCServerXmx:           "4g",
		AtsConsoleAlwaysRestartOLCServer: false,
		LaunchStrategy:                   LaunchInProcessSupervised,
		TestCommandTemplate:              "true",
		DisableDeviceQuerier:             false,
		RealTimeJob:                      false,
		RemoveJobGenFilesWhenFinished:    true,
		LowerLimitOfJVMMaxMemoryAllowForAllocationDiagnosticMB: 2048,
		XtsDisableTfResultLog:    false,
		EnableProxyMode:          false,
		AtsDeviceRecoveryTimeout: 5 * time.Minute,
		AllocationExitStrategy:   AllocationExitNormal,
	}
}
