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
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
)

// Stub is the client-side Session Stub (Component C, spec.md §2): submits
// sessions, polls outputs, aborts by id. Grounded the same way as
// pkg/controlplane.Client on pkg/worker/request.go's pester retry idiom.
type Stub struct {
	BaseURL string
	HTTP    *pester.Client
}

// NewStub builds a Stub pointed at baseURL.
func NewStub(baseURL string, maxRetries int) *Stub {
	c := pester.New()
	c.MaxRetries = maxRetries
	c.Backoff = pester.ExponentialBackoff
	c.KeepLog = false
	return &Stub{BaseURL: baseURL, HTTP: c}
}

// SubmitSession submits cfg under clientID and returns the new session id.
func (s *Stub) SubmitSession(clientID string, cfg Config) (string, error) {
	var resp SubmitResponse
	err := s.post(PathSubmitSession, SubmitRequest{ClientID: clientID, Config: cfg}, &resp)
	return resp.SessionID, err
}

// GetAllSessions lists sessions whose name and status match the given
// regexes (empty matches everything).
func (s *Stub) GetAllSessions(nameRegex, statusRegex string) ([]*Session, error) {
	var resp GetAllResponse
	err := s.post(PathGetAllSessions, GetAllRequest{NameRegex: nameRegex, StatusRegex: statusRegex}, &resp)
	return resp.Sessions, err
}

// AbortSessions aborts the named sessions, returning the subset actually
// aborted.
func (s *Stub) AbortSessions(sessionIDs []string) ([]string, error) {
	var resp AbortResponse
	err := s.post(PathAbortSessions, AbortRequest{SessionIDs: sessionIDs}, &resp)
	return resp.SessionIDs, err
}

// Notifications opens the notification stream and delivers decoded
// Notifications to the returned channel until stop is closed or the
// connection drops.
func (s *Stub) Notifications(stop <-chan struct{}) (<-chan Notification, error) {
	resp, err := s.HTTP.Get(s.BaseURL + PathNotifications)
	if err != nil {
		return nil, errors.Wrap(err, "unavailable")
	}

	out := make(chan Notification, 16)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var note Notification
			if err := json.Unmarshal(scanner.Bytes(), &note); err != nil {
				continue
			}
			select {
			case out <- note:
			case <-stop:
				return
			}
		}
	}()
	return out, nil
}

func (s *Stub) post(path string, body interface{}, out interface{}) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return errors.Wrap(err, "encoding request body")
	}
	resp, err := s.HTTP.Post(s.BaseURL+path, "application/json", buf)
	if err != nil {
		return errors.Wrap(err, "unavailable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response")
}
