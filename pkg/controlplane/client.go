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
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
)

// Client is a blocking unary client for the control-service RPCs, grounded
// on pkg/worker/request.go's use of pester.Do for bounded-retry HTTP calls
// against a peer that may not be up yet.
type Client struct {
	BaseURL string
	HTTP    *pester.Client
}

// NewClient builds a Client pointed at baseURL (e.g. "http://localhost:7470").
// maxRetries bounds the pester retry budget used for transient connection
// failures only; RPC-level retry policy (§4.1) is the caller's
// responsibility.
func NewClient(baseURL string, maxRetries int) *Client {
	c := pester.New()
	c.MaxRetries = maxRetries
	c.Backoff = pester.ExponentialBackoff
	c.KeepLog = false
	return &Client{BaseURL: baseURL, HTTP: c}
}

// GetVersion calls getVersion. A connection error (as opposed to a non-2xx
// HTTP status) is returned wrapped so callers can distinguish "unavailable"
// from other failures, per spec.md §4.1 step 3.
func (c *Client) GetVersion() (GetVersionResponse, error) {
	var resp GetVersionResponse
	httpResp, err := c.HTTP.Get(c.BaseURL + PathVersion)
	if err != nil {
		return resp, errors.Wrap(err, "unavailable")
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return resp, errors.Errorf("getVersion: unexpected status %d", httpResp.StatusCode)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resp, errors.Wrap(err, "decoding getVersion response")
	}
	return resp, nil
}

// Heartbeat calls heartbeat for clientID.
func (c *Client) Heartbeat(clientID string) error {
	return c.post(PathHeartbeat, HeartbeatRequest{ClientID: clientID}, nil)
}

// KillServer calls killServer for clientID.
func (c *Client) KillServer(clientID string) (KillServerResponse, error) {
	var resp KillServerResponse
	err := c.post(PathKillServer, KillServerRequest{ClientID: clientID}, &resp)
	return resp, err
}

// AbortSessions calls abortSessions.
func (c *Client) AbortSessions(sessionIDs []string) (AbortSessionsResponse, error) {
	var resp AbortSessionsResponse
	err := c.post(PathAbortSessions, AbortSessionsRequest{SessionIDs: sessionIDs}, &resp)
	return resp, err
}

func (c *Client) post(path string, body interface{}, out interface{}) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return errors.Wrap(err, "encoding request body")
	}
	resp, err := c.HTTP.Post(c.BaseURL+path, "application/json", buf)
	if err != nil {
		return errors.Wrap(err, "unavailable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response")
}
