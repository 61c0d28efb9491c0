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

import "testing"

func TestSubmitAndGet(t *testing.T) {
	s := NewStore()
	id := s.Submit("client-a", Config{RunCommand: &RunCommand{TestPlan: "cts"}})
	got := s.Get(id)
	if got == nil {
		t.Fatal("Get returned nil for just-submitted session")
	}
	if got.Status != StatusSubmitted {
		t.Fatalf("got status %v, want SUBMITTED", got.Status)
	}
}

func TestAllFiltersByNameAndStatus(t *testing.T) {
	s := NewStore()
	id1 := s.Submit("client-a", Config{})
	s.Get(id1).Name = "nightly-cts"
	id2 := s.Submit("client-a", Config{})
	s.Get(id2).Name = "smoke-gts"

	matches, err := s.All("nightly.*", "")
	if err != nil {
		t.Fatalf("All returned error: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != id1 {
		t.Fatalf("got %d matches, want exactly id1", len(matches))
	}
}

func TestAbortOnlyAffectsUnfinishedSessions(t *testing.T) {
	s := NewStore()
	id := s.Submit("client-a", Config{})

	aborted := s.Abort([]string{id, "unknown-id"})
	if len(aborted) != 1 || aborted[0] != id {
		t.Fatalf("got aborted %v, want [%s]", aborted, id)
	}
	if s.Get(id).Status != StatusFinished {
		t.Fatalf("got status %v, want FINISHED", s.Get(id).Status)
	}

	// A second abort of the same id is a no-op (already finished).
	aborted = s.Abort([]string{id})
	if len(aborted) != 0 {
		t.Fatalf("expected no-op abort on an already-finished session, got %v", aborted)
	}
}
