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

// Package xtsfs implements the xts_root_dir filesystem layout contract of
// spec.md §4.5/§6: discovering xts_type, and writing results/logs under
// per-timestamp directories with a "latest" pointer, grounded on the
// teacher's tarball/result-directory conventions in pkg/tarball and
// pkg/plugin/aggregation (OutputDir, per-plugin result subdirectories).
package xtsfs

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	resultsDirName  = "results"
	logsDirName     = "logs"
	latestName      = "latest"
	summaryFileName = "invocation_summary.txt"
	summaryPrefix   = "TEXT:"
	xtsTypePrefix   = "android-"
)

// Layout resolves the canonical directory structure rooted at an
// xts_root_dir.
type Layout struct {
	RootDir string
	XtsType string
}

// DiscoverLayout finds the single android-<xts_type> subdirectory of
// rootDir and returns a Layout naming it. Zero or multiple matches are a
// user-facing error, per spec.md §6.
func DiscoverLayout(rootDir string) (*Layout, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading xts_root_dir %s", rootDir)
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), xtsTypePrefix) {
			matches = append(matches, e.Name())
		}
	}

	switch len(matches) {
	case 0:
		return nil, errors.Errorf("no android-<xts_type> directory found under %s", rootDir)
	case 1:
		return &Layout{
			RootDir: rootDir,
			XtsType: strings.TrimPrefix(matches[0], xtsTypePrefix),
		}, nil
	default:
		return nil, errors.Errorf("multiple android-<xts_type> directories found under %s: %v", rootDir, matches)
	}
}

// NewTimestampDir formats a fresh per-run directory name:
// uuuu.MM.dd_HH.mm.ss.SSS_<4-digit random>, in the system local zone.
func NewTimestampDir(now time.Time) string {
	return fmt.Sprintf("%s_%04d", now.Format("2006.01.02_15.04.05.000"), rand.Intn(10000))
}

// ResultsDir returns <root>/results/<timestamp>, creating it.
func (l *Layout) ResultsDir(timestamp string) (string, error) {
	return l.timestampedDir(resultsDirName, timestamp)
}

// LogsDir returns <root>/logs/<timestamp>, creating it.
func (l *Layout) LogsDir(timestamp string) (string, error) {
	return l.timestampedDir(logsDirName, timestamp)
}

func (l *Layout) timestampedDir(tree, timestamp string) (string, error) {
	dir := filepath.Join(l.RootDir, tree, timestamp)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating %s", dir)
	}
	return dir, nil
}

// UpdateLatest repoints <root>/<tree>/latest at timestamp, replacing any
// existing symlink or directory copy.
func (l *Layout) UpdateLatest(tree, timestamp string) error {
	latest := filepath.Join(l.RootDir, tree, latestName)
	target := timestamp

	if _, err := os.Lstat(latest); err == nil {
		if err := os.RemoveAll(latest); err != nil {
			return errors.Wrapf(err, "removing stale %s", latest)
		}
	}
	if err := os.Symlink(target, latest); err != nil {
		return errors.Wrapf(err, "symlinking %s -> %s", latest, target)
	}
	return nil
}

// WriteInvocationSummary writes invocation_summary.txt under resultsDir,
// prefixed with the literal "TEXT:" per spec.md §6.
func WriteInvocationSummary(resultsDir, body string) error {
	path := filepath.Join(resultsDir, summaryFileName)
	content := summaryPrefix + body
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
