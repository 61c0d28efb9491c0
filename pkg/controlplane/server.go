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

package controlplane

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	// PathVersion is the getVersion endpoint.
	PathVersion = "/api/v1/control/version"
	// PathHeartbeat is the heartbeat endpoint.
	PathHeartbeat = "/api/v1/control/heartbeat"
	// PathKillServer is the killServer endpoint.
	PathKillServer = "/api/v1/control/kill"
	// PathAbortSessions is the abortSessions endpoint.
	PathAbortSessions = "/api/v1/control/abort-sessions"
)

// Backend is implemented by the OLC server to answer control RPCs.
type Backend interface {
	Version() VersionInfo
	Heartbeat(clientID string)
	KillServer(clientID string) KillServerResponse
	AbortSessions(sessionIDs []string) []string
}

// NewHandler builds the mux-routed control-service HTTP handler, grounded on
// the teacher's mux.Router-based aggregation Handler in
// pkg/plugin/aggregation/handler.go.
func NewHandler(backend Backend) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(PathVersion, versionHandler(backend)).Methods(http.MethodGet)
	r.HandleFunc(PathHeartbeat, heartbeatHandler(backend)).Methods(http.MethodPost)
	r.HandleFunc(PathKillServer, killServerHandler(backend)).Methods(http.MethodPost)
	r.HandleFunc(PathAbortSessions, abortSessionsHandler(backend)).Methods(http.MethodPost)
	return r
}

func versionHandler(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := GetVersionResponse{
			VersionInfo: b.Version(),
			ProcessID:   os.Getpid(),
		}
		writeJSON(w, resp)
	}
}

func heartbeatHandler(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HeartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.Heartbeat(req.ClientID)
		writeJSON(w, HeartbeatResponse{Acknowledged: true})
	}
}

func killServerHandler(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req KillServerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logrus.WithField("client_id", req.ClientID).Info("received killServer request")
		writeJSON(w, b.KillServer(req.ClientID))
	}
}

func abortSessionsHandler(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AbortSessionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, AbortSessionsResponse{SessionIDs: b.AbortSessions(req.SessionIDs)})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode control-plane response")
	}
}
