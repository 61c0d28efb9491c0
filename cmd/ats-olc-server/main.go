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

// Command ats-olc-server is the OLC server binary: it answers the control
// and session RPCs named in spec.md §6, wiring together the Scheduler &
// Device Allocator, Test Manager, Job Runner, and ATS Session Plugin for
// every submitted session. Grounded on cmd/sonobuoy/app/master.go's
// flag-parse-then-serve shape.
package main

import (
	"flag"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/buildinfo"
	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/controlplane"
	"github.com/google/ats/pkg/diagnostics"
	"github.com/google/ats/pkg/errlog"
	"github.com/google/ats/pkg/events"
	"github.com/google/ats/pkg/runcommand"
	"github.com/google/ats/pkg/scheduler"
	"github.com/google/ats/pkg/session"
	"github.com/google/ats/pkg/sessionplugin"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		errlog.LogError(err)
		os.Exit(1)
	}

	backend := newBackend(cfg)

	r := mux.NewRouter()
	mountRoutes(r, controlplane.NewHandler(backend), session.NewHandler(backend.store, backend.notifier, backend.onAbort))

	addr := fmt.Sprintf(":%d", cfg.OLCServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		errlog.LogError(err)
		os.Exit(1)
	}

	logrus.WithField("addr", addr).Info("starting OLC server")
	fmt.Println("OLC server started")

	srv := &http.Server{Handler: r}
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		errlog.LogError(err)
		os.Exit(1)
	}
}

func mountRoutes(r *mux.Router, control, sess http.Handler) {
	r.PathPrefix("/api/v1/control/").Handler(control)
	r.PathPrefix("/api/v1/session/").Handler(sess)
}

// backend implements controlplane.Backend and owns the session-service
// collaborators the session plugin needs to drive a RunCommand end to end.
type backend struct {
	cfg      *config.Config
	bus      *events.Bus
	store    *session.Store
	notifier *session.Notifier
	plugin   *sessionplugin.Plugin

	mu         sync.Mutex
	heartbeats map[string]time.Time
}

func newBackend(cfg *config.Config) *backend {
	bus := events.NewBus()
	store := session.NewStore()
	notifier := session.NewNotifier()
	plugin := sessionplugin.New(store, notifier, nil, nil)
	bus.Subscribe(events.APIPlugin, plugin.OnJobEnd)

	querier := newStaticQuerier(cfg)
	verifier := scheduler.Verifier(func(scheduler.DeviceInfo) bool { return true })

	var criteria []diagnostics.Criterion
	handler := runcommand.New(cfg, bus, querier, verifier, newSubprocessInvoker(cfg), plugin, store, criteria, cfg.LowerLimitOfJVMMaxMemoryAllowForAllocationDiagnosticMB, currentHeapLimitMB)
	plugin.SetRunCommandHandler(handler)
	plugin.SetResultProcessor(handler)

	return &backend{
		cfg:        cfg,
		bus:        bus,
		store:      store,
		notifier:   notifier,
		plugin:     plugin,
		heartbeats: make(map[string]time.Time),
	}
}

func (b *backend) Version() controlplane.VersionInfo {
	return controlplane.VersionInfo{Version: buildinfo.Version, BuildUser: buildinfo.BuildUser, BuildTime: buildinfo.BuildTime}
}

func (b *backend) Heartbeat(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.heartbeats[clientID] = time.Now()
}

func (b *backend) KillServer(clientID string) controlplane.KillServerResponse {
	sessions, _ := b.store.All("", "")
	var unfinished []controlplane.UnfinishedSession
	for _, s := range sessions {
		if s.Status != session.StatusFinished {
			unfinished = append(unfinished, controlplane.UnfinishedSession{ID: s.ID, Name: s.Name, Status: string(s.Status), Submitted: s.Submitted})
		}
	}
	if len(unfinished) > 0 {
		return controlplane.KillServerResponse{Success: false, Failure: &controlplane.KillServerFailure{UnfinishedSessions: unfinished}, ServerPID: os.Getpid()}
	}

	resp := controlplane.KillServerResponse{Success: true, ServerPID: os.Getpid()}
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.Exit(0)
	}()
	return resp
}

func (b *backend) AbortSessions(sessionIDs []string) []string {
	aborted := b.store.Abort(sessionIDs)
	b.onAbort(aborted)
	return aborted
}

func (b *backend) onAbort(sessionIDs []string) {
	for _, id := range sessionIDs {
		b.plugin.Cancel(id, "aborted by client request")
	}
}

// currentHeapLimitMB reports the Go runtime's configured soft memory
// limit in MB, the equivalent of the JVM's -Xmx for the diagnostician's
// "configured max heap below threshold" guard (spec.md §4.3.2). Falls
// back to memory obtained from the OS so far if no limit is configured
// (the default, debug.SetMemoryLimit's sentinel maxInt64 value).
func currentHeapLimitMB() int {
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		return int(limit / (1 << 20))
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int(m.Sys / (1 << 20))
}
