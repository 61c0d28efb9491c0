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

// Package runtimeinfo implements the Tradefed Runtime-Info Snapshot
// (Component I, spec.md §3/§4.4): a file-backed record worker subprocesses
// write and the session plugin polls on a fixed cadence, grounded on
// pkg/worker/worker.go's GatherResults (a ticker that polls for a file and
// reads it once it appears).
package runtimeinfo

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/session"
)

// Snapshot is the on-disk shape written by a worker subprocess.
type Snapshot struct {
	DeviceIDs     []string  `json:"device_ids"`
	StatusSummary string    `json:"status_summary"`
	Timestamp     time.Time `json:"timestamp"`
}

// WriteSnapshot is called by worker subprocesses (outside this process) to
// publish their current status; kept here so tests can produce fixtures
// without a real Tradefed subprocess.
func WriteSnapshot(path string, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshalling runtime-info snapshot")
	}
	return errors.Wrap(os.WriteFile(path, b, 0644), "writing runtime-info snapshot")
}

// Reader tracks one test's runtime-info file and the last-modified-time it
// has already consumed, so repeated polls are cheap no-ops until the file
// actually changes, per spec.md §4.4's runtime-info updater.
type Reader struct {
	Path         string
	lastModified time.Time
}

// NewReader constructs a Reader for the file at path.
func NewReader(path string) *Reader {
	return &Reader{Path: path}
}

// Poll reads the file if its modification time has advanced since the last
// successful read, returning (snapshot, true, nil) on a fresh read,
// (zero, false, nil) if unchanged or absent, or (zero, false, err) on a
// read/parse failure.
func (r *Reader) Poll() (Snapshot, bool, error) {
	info, err := os.Stat(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, errors.Wrapf(err, "stat %s", r.Path)
	}
	if !info.ModTime().After(r.lastModified) {
		return Snapshot{}, false, nil
	}

	b, err := os.ReadFile(r.Path)
	if err != nil {
		return Snapshot{}, false, errors.Wrapf(err, "reading %s", r.Path)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, false, errors.Wrapf(err, "parsing %s", r.Path)
	}
	r.lastModified = info.ModTime()
	return snap, true, nil
}

// Updater polls a set of Readers every interval and merges fresh snapshots
// into a session's RunCommandState, per spec.md §4.4. It only writes a
// test's entry if the test_id is still present under the lock, per
// spec.md §5's race-avoidance rule (scenario 5 of §8).
type Updater struct {
	store     *session.Store
	sessionID string
	interval  time.Duration

	mu      sync.Mutex
	readers map[string]*Reader
}

// NewUpdater constructs an Updater for one session's running Tradefed
// tests, reading from store and merging into sessionID's RunCommandState.
func NewUpdater(store *session.Store, sessionID string, interval time.Duration) *Updater {
	return &Updater{store: store, sessionID: sessionID, interval: interval, readers: make(map[string]*Reader)}
}

// Track registers testID's runtime-info file path for future polls.
func (u *Updater) Track(testID, path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.readers[testID] = NewReader(path)
}

// Untrack stops polling testID, called on TestEnded (spec.md §4.4).
func (u *Updater) Untrack(testID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.readers, testID)
}

// Run polls every u.interval until stop is closed.
func (u *Updater) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			u.tick()
		}
	}
}

func (u *Updater) tick() {
	u.mu.Lock()
	readers := make(map[string]*Reader, len(u.readers))
	for testID, reader := range u.readers {
		readers[testID] = reader
	}
	u.mu.Unlock()

	for testID, reader := range readers {
		snap, fresh, err := reader.Poll()
		if err != nil {
			logrus.WithField("test_id", testID).WithError(err).Warn("runtime-info read failed")
			continue
		}
		if !fresh {
			continue
		}
		u.store.MutateOutput(u.sessionID, func(out *session.Output) {
			if out.RunCommandState == nil {
				return
			}
			if _, stillRunning := out.RunCommandState.RunningInvocation[testID]; !stillRunning {
				// Discarded: the test ended between the stat and this merge
				// (spec.md §8 scenario 5).
				return
			}
			out.RunCommandState.RunningInvocation[testID] = session.Invocations{
				StartTime: snap.Timestamp,
				Items: []session.Invocation{{
					StartTime:    snap.Timestamp,
					DeviceIDs:    snap.DeviceIDs,
					StateSummary: snap.StatusSummary,
				}},
			}
		})
	}
}
