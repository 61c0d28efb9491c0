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

package session

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	PathSubmitSession  = "/api/v1/session/submit"
	PathGetAllSessions = "/api/v1/session/list"
	PathAbortSessions  = "/api/v1/session/abort"
	PathNotifications  = "/api/v1/session/notifications"
)

// SubmitRequest is the body for SubmitSession.
type SubmitRequest struct {
	ClientID string `json:"client_id"`
	Config   Config `json:"config"`
}

// SubmitResponse carries the newly created session id.
type SubmitResponse struct {
	SessionID string `json:"session_id"`
}

// GetAllRequest filters GetAllSessions.
type GetAllRequest struct {
	NameRegex   string `json:"name_regex"`
	StatusRegex string `json:"status_regex"`
}

// GetAllResponse is the list of matching sessions.
type GetAllResponse struct {
	Sessions []*Session `json:"sessions"`
}

// AbortRequest names the sessions to abort.
type AbortRequest struct {
	SessionIDs []string `json:"session_ids"`
}

// AbortResponse echoes back the ids actually aborted.
type AbortResponse struct {
	SessionIDs []string `json:"session_ids"`
}

// NewHandler builds the mux-routed session-service HTTP handler, grounded
// on pkg/controlplane's router shape, which is itself grounded on the
// teacher's pkg/plugin/aggregation/handler.go. onAbort, if non-nil, runs
// after a successful store.Abort with the ids actually aborted, so that a
// session plugin can propagate cancellation to its running tests without
// this package depending on it (spec.md §4.4's cancellation path).
func NewHandler(store *Store, notifier *Notifier, onAbort func(sessionIDs []string)) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(PathSubmitSession, submitHandler(store)).Methods(http.MethodPost)
	r.HandleFunc(PathGetAllSessions, getAllHandler(store)).Methods(http.MethodPost)
	r.HandleFunc(PathAbortSessions, abortHandler(store, notifier, onAbort)).Methods(http.MethodPost)
	r.HandleFunc(PathNotifications, notifier.StreamHandler()).Methods(http.MethodGet)
	return r
}

func submitHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := store.Submit(req.ClientID, req.Config)
		writeJSON(w, SubmitResponse{SessionID: id})
	}
}

func getAllHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GetAllRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sessions, err := store.All(req.NameRegex, req.StatusRegex)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, GetAllResponse{Sessions: sessions})
	}
}

func abortHandler(store *Store, notifier *Notifier, onAbort func(sessionIDs []string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AbortRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		aborted := store.Abort(req.SessionIDs)
		for _, id := range aborted {
			notifier.Publish(Notification{SessionID: id, Kind: NotificationCancellation})
		}
		if onAbort != nil {
			onAbort(aborted)
		}
		writeJSON(w, AbortResponse{SessionIDs: aborted})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode session-service response")
	}
}
