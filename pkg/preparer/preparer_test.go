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

package preparer

import (
	"net/http/httptest"
	"testing"

	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/controlplane"
)

type fakeBackend struct {
	version      controlplane.VersionInfo
	killResponse controlplane.KillServerResponse
	heartbeats   []string
	abortedIDs   []string
	onKill       func()
}

func (f *fakeBackend) Version() controlplane.VersionInfo { return f.version }
func (f *fakeBackend) Heartbeat(clientID string)          { f.heartbeats = append(f.heartbeats, clientID) }
func (f *fakeBackend) KillServer(clientID string) controlplane.KillServerResponse {
	if f.onKill != nil {
		f.onKill()
	}
	return f.killResponse
}
func (f *fakeBackend) AbortSessions(ids []string) []string {
	f.abortedIDs = append(f.abortedIDs, ids...)
	return ids
}

func TestPrepareReusesRunningServer(t *testing.T) {
	backend := &fakeBackend{version: controlplane.VersionInfo{Version: "1.2.3"}}
	srv := httptest.NewServer(controlplane.NewHandler(backend))
	defer srv.Close()

	cfg := config.Default()
	cfg.ClientID = "client-a"
	client := controlplane.NewClient(srv.URL, 0)

	p := New(cfg, client, controlplane.VersionInfo{Version: "1.2.3"})
	resp, err := p.Prepare()
	if err != nil {
		t.Fatalf("Prepare() returned error: %v", err)
	}
	if resp.VersionInfo.Version != "1.2.3" {
		t.Fatalf("got version %q, want 1.2.3", resp.VersionInfo.Version)
	}
}

func TestPrepareWarnsOnVersionMismatchButReturnsRunningServer(t *testing.T) {
	backend := &fakeBackend{version: controlplane.VersionInfo{Version: "0.9.0"}}
	srv := httptest.NewServer(controlplane.NewHandler(backend))
	defer srv.Close()

	cfg := config.Default()
	cfg.ClientID = "client-b"
	client := controlplane.NewClient(srv.URL, 0)

	p := New(cfg, client, controlplane.VersionInfo{Version: "1.2.3"})
	resp, err := p.Prepare()
	if err != nil {
		t.Fatalf("Prepare() returned error: %v", err)
	}
	if resp.VersionInfo.Version != "0.9.0" {
		t.Fatalf("got version %q, want the running server's 0.9.0", resp.VersionInfo.Version)
	}
}

func TestKillSuccessPollsUntilUnavailable(t *testing.T) {
	backend := &fakeBackend{
		killResponse: controlplane.KillServerResponse{Success: true, ServerPID: 4242},
	}
	// Keep-alives are off, so every request dials a new connection. Closing
	// the listener once the kill RPC has been answered makes every post-kill
	// GetVersion poll fail with "unavailable", which should terminate the
	// poll loop successfully rather than exhausting killPollAttempts.
	srv := httptest.NewUnstartedServer(controlplane.NewHandler(backend))
	srv.Config.SetKeepAlivesEnabled(false)
	srv.Start()
	defer srv.Close()
	backend.onKill = func() { srv.Listener.Close() }
	cfg := config.Default()
	cfg.ClientID = "client-c"
	client := controlplane.NewClient(srv.URL, 0)
	p := New(cfg, client, controlplane.VersionInfo{Version: "1.2.3"})

	resp, err := p.Kill(false)
	if err != nil {
		t.Fatalf("Kill() returned error: %v", err)
	}
	if resp.ServerPID != 4242 {
		t.Fatalf("got server pid %d, want 4242", resp.ServerPID)
	}
}

func TestKillFailureWithoutForceReturnsCannotKillExisting(t *testing.T) {
	backend := &fakeBackend{
		killResponse: controlplane.KillServerResponse{
			Success: false,
			Failure: &controlplane.KillServerFailure{
				AliveClients: []string{"other-client"},
			},
		},
	}
	srv := httptest.NewServer(controlplane.NewHandler(backend))
	defer srv.Close()
	cfg := config.Default()
	cfg.ClientID = "client-d"
	client := controlplane.NewClient(srv.URL, 0)
	p := New(cfg, client, controlplane.VersionInfo{Version: "1.2.3"})

	_, err := p.Kill(false)
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	perr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if perr.Kind != KindCannotKillExisting {
		t.Fatalf("got kind %v, want %v", perr.Kind, KindCannotKillExisting)
	}
}
