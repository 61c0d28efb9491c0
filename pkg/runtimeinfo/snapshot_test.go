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

package runtimeinfo

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/ats/pkg/session"
)

func TestReaderSkipsUnchangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime-info.json")
	if err := WriteSnapshot(path, Snapshot{DeviceIDs: []string{"dev1"}, StatusSummary: "running", Timestamp: time.Unix(1000, 0)}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	r := NewReader(path)
	snap, fresh, err := r.Poll()
	if err != nil {
		t.Fatalf("first Poll: %v", err)
	}
	if !fresh {
		t.Fatal("expected first Poll to report fresh=true")
	}
	if len(snap.DeviceIDs) != 1 || snap.DeviceIDs[0] != "dev1" {
		t.Fatalf("got DeviceIDs %v", snap.DeviceIDs)
	}

	_, fresh, err = r.Poll()
	if err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if fresh {
		t.Fatal("expected second Poll of an unchanged file to report fresh=false")
	}
}

func TestReaderMissingFileIsNotAnError(t *testing.T) {
	r := NewReader(filepath.Join(t.TempDir(), "absent.json"))
	_, fresh, err := r.Poll()
	if err != nil {
		t.Fatalf("expected no error for a missing file, got %v", err)
	}
	if fresh {
		t.Fatal("expected fresh=false for a missing file")
	}
}

func TestUpdaterDiscardsUpdateForEndedTest(t *testing.T) {
	store := session.NewStore()
	id := store.Submit("client-1", session.Config{RunCommand: &session.RunCommand{}})
	store.MutateOutput(id, func(out *session.Output) {
		out.RunCommandState = &session.RunCommandState{
			RunningInvocation: map[string]session.Invocations{},
		}
	})

	path := filepath.Join(t.TempDir(), "runtime-info.json")
	if err := WriteSnapshot(path, Snapshot{DeviceIDs: []string{"dev1"}, StatusSummary: "running"}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	u := NewUpdater(store, id, time.Second)
	u.Track("test-1", path)
	u.tick()

	sess := store.Get(id)
	if _, ok := sess.Output.RunCommandState.RunningInvocation["test-1"]; ok {
		t.Fatal("expected update for a test_id absent from RunningInvocation to be discarded")
	}
}
