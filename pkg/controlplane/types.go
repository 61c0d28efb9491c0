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

// Package controlplane implements the control-service RPCs named in
// spec.md §6: getVersion, heartbeat, killServer, abortSessions. Transport is
// plain HTTP/JSON multiplexed with gorilla/mux, grounded on the same
// router-based request/response shape the teacher uses for its aggregation
// result check-in API (pkg/plugin/aggregation/handler.go).
package controlplane

import "time"

// VersionInfo identifies a build of the OLC server or client.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildUser string `json:"build_user,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// GetVersionResponse is the reply to GetVersion. ProcessID participates in
// wire identity but is explicitly excluded from version equality checks
// (spec.md §8's clearProcessId round-trip law).
type GetVersionResponse struct {
	VersionInfo VersionInfo `json:"version_info"`
	ProcessID   int         `json:"process_id"`
}

// ClearProcessID returns a copy of r with ProcessID zeroed, for version
// comparisons that must ignore it.
func (r GetVersionResponse) ClearProcessID() GetVersionResponse {
	r.ProcessID = 0
	return r
}

// Equal reports whether two GetVersionResponses are equal once ProcessID is
// disregarded.
func (r GetVersionResponse) Equal(other GetVersionResponse) bool {
	return r.ClearProcessID() == other.ClearProcessID()
}

// HeartbeatRequest is sent every 10s by a connected client.
type HeartbeatRequest struct {
	ClientID string `json:"client_id"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// KillServerRequest asks the server to shut itself down.
type KillServerRequest struct {
	ClientID string `json:"client_id"`
}

// UnfinishedSession describes one reason the server declined to die.
type UnfinishedSession struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Submitted time.Time `json:"submitted"`
}

// KillServerFailure is populated when KillServer declines.
type KillServerFailure struct {
	UnfinishedSessions []UnfinishedSession `json:"unfinished_sessions,omitempty"`
	AliveClients       []string            `json:"alive_clients,omitempty"`
}

// KillServerResponse is the reply to KillServer.
type KillServerResponse struct {
	Success   bool               `json:"success"`
	Failure   *KillServerFailure `json:"failure,omitempty"`
	ServerPID int                `json:"server_pid"`
}

// AbortSessionsRequest asks the server to abort a set of sessions by id.
type AbortSessionsRequest struct {
	SessionIDs []string `json:"session_ids"`
}

// AbortSessionsResponse echoes back the session ids that were actually
// aborted (a subset of the request if some ids were unknown).
type AbortSessionsResponse struct {
	SessionIDs []string `json:"session_ids"`
}
