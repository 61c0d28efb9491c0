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

package xtsfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiscoverLayoutRequiresExactlyOneMatch(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "android-cts"), 0755); err != nil {
		t.Fatal(err)
	}

	l, err := DiscoverLayout(root)
	if err != nil {
		t.Fatalf("DiscoverLayout returned error: %v", err)
	}
	if l.XtsType != "cts" {
		t.Fatalf("got xts type %q, want cts", l.XtsType)
	}

	if err := os.Mkdir(filepath.Join(root, "android-gts"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := DiscoverLayout(root); err == nil {
		t.Fatal("expected an error with two android-<xts_type> directories present")
	}
}

func TestDiscoverLayoutZeroMatches(t *testing.T) {
	root := t.TempDir()
	if _, err := DiscoverLayout(root); err == nil {
		t.Fatal("expected an error with no android-<xts_type> directory present")
	}
}

func TestUpdateLatestPointsAtTimestampDir(t *testing.T) {
	root := t.TempDir()
	l := &Layout{RootDir: root, XtsType: "cts"}
	ts := NewTimestampDir(time.Date(2026, 7, 30, 1, 2, 3, 0, time.Local))

	if _, err := l.ResultsDir(ts); err != nil {
		t.Fatalf("ResultsDir returned error: %v", err)
	}
	if err := l.UpdateLatest(resultsDirName, ts); err != nil {
		t.Fatalf("UpdateLatest returned error: %v", err)
	}

	target, err := os.Readlink(filepath.Join(root, resultsDirName, latestName))
	if err != nil {
		t.Fatalf("Readlink returned error: %v", err)
	}
	if target != ts {
		t.Fatalf("latest points at %q, want %q", target, ts)
	}
}

func TestWriteInvocationSummaryPrefix(t *testing.T) {
	dir := t.TempDir()
	if err := WriteInvocationSummary(dir, "3 modules passed"); err != nil {
		t.Fatalf("WriteInvocationSummary returned error: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, summaryFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "TEXT:3 modules passed" {
		t.Fatalf("got %q", string(b))
	}
}
