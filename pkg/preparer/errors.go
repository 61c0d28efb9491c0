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

// Package preparer implements the client-side Server Preparer (spec.md
// §4.1): it guarantees exactly one live OLC server, starting, connecting to,
// and killing it as needed.
package preparer

import "fmt"

// Kind classifies the eight user-discernible preparer failure modes named
// in spec.md §7.
type Kind string

const (
	KindConnectExisting       Kind = "ConnectExisting"
	KindStartServer           Kind = "StartServer"
	KindInitializeServer      Kind = "InitializeServer"
	KindOlcServerAbnormalExit Kind = "OlcServerAbnormalExit"
	KindConnectNew            Kind = "ConnectNew"
	KindCannotKillExisting    Kind = "CannotKillExisting"
	KindStillRunning          Kind = "StillRunning"
	KindDiagnosticError       Kind = "DiagnosticError"
	// KindVersionMismatch is not in the §7 taxonomy's failure list (it is a
	// warning-and-continue case per §4.1 step 2) but is modeled the same way
	// so callers can treat it uniformly when the configured policy escalates it.
	KindVersionMismatch Kind = "VersionMismatch"
)

// Error is the typed error every preparer operation returns on failure, a
// classification carrying a stable Code(), grounded on the teacher's
// *httpError type in pkg/plugin/aggregation/aggregator.go (an error type
// that carries a classification alongside the message).
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// Unwrap allows errors.Is/As to see through to the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Code returns the stable error code used for the process exit code
// (spec.md §6 "Exit codes").
func (e *Error) Code() string { return string(e.Kind) }

func newErr(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}
