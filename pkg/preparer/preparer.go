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
	"bufio"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/sirupsen/logrus"

	"github.com/google/ats/pkg/config"
	"github.com/google/ats/pkg/controlplane"
	atstime "github.com/google/ats/pkg/time"
)

const (
	readinessMarker    = "OLC server started"
	initializeTimeout  = 40 * time.Second
	connectRetryDelay  = 1 * time.Second
	retriesInProcess   = 15
	retriesDetached    = 25
	spinnerType        = 14
	spinnerDuration    = 200 * time.Millisecond
)

// Preparer guarantees exactly one live OLC server is reachable before the
// caller proceeds, grounded on cmd/sonobuoy/app/run.go's "get a client,
// maybe start something, then submit" shape and pkg/client/run.go's spinner
// feedback during a long wait.
//
// Preparation runs under an exclusive monitor per spec.md §4.1: only one
// goroutine may attempt it at a time for a given Preparer.
type Preparer struct {
	cfg    *config.Config
	client *controlplane.Client
	mu     sync.Mutex

	version controlplane.VersionInfo

	firstAttempt bool
}

// New builds a Preparer for cfg, talking to the OLC server over client.
func New(cfg *config.Config, client *controlplane.Client, version controlplane.VersionInfo) *Preparer {
	return &Preparer{cfg: cfg, client: client, version: version, firstAttempt: true}
}

// Prepare implements the full preparation algorithm of spec.md §4.1: try to
// reuse a running server, otherwise start and connect to a new one.
func (p *Preparer) Prepare() (controlplane.GetVersionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	isFirst := p.firstAttempt
	p.firstAttempt = false

	resp, err := p.client.GetVersion()
	switch {
	case err == nil:
		// Step 2: a server answered. Unless this is the first preparation and
		// policy demands a restart, accept whatever version is running.
		if isFirst && p.cfg.AtsConsoleAlwaysRestartOLCServer {
			logrus.Info("restarting OLC server on first preparation per configuration")
			if _, killErr := p.Kill(false); killErr != nil {
				return controlplane.GetVersionResponse{}, newErr(KindCannotKillExisting, killErr)
			}
			break
		}
		if resp.VersionInfo.Version != p.version.Version {
			logrus.WithFields(logrus.Fields{
				"running": resp.VersionInfo.Version,
				"client":  p.version.Version,
			}).Warn("OLC server version mismatch, continuing with the running server")
		}
		return resp, nil
	case isUnavailable(err):
		// Step 3: no server reachable, fall through to start one.
	default:
		return controlplane.GetVersionResponse{}, newErr(KindConnectExisting, err)
	}

	return p.startAndConnect()
}

func isUnavailable(err error) bool {
	return err != nil && containsUnavailable(err.Error())
}

func containsUnavailable(s string) bool {
	const needle = "unavailable"
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func (p *Preparer) startAndConnect() (controlplane.GetVersionResponse, error) {
	outputPath := p.cfg.AtsConsoleOLCServerOutputPath
	if outputPath == "" {
		f, err := ioutil.TempFile("", "ats-olc-server-output-")
		if err != nil {
			return controlplane.GetVersionResponse{}, newErr(KindStartServer, err)
		}
		outputPath = f.Name()
		f.Close()
	}

	cmd, stdout, err := p.spawn(outputPath)
	if err != nil {
		return controlplane.GetVersionResponse{}, newErr(KindStartServer, err)
	}

	retries := retriesInProcess
	if p.cfg.LaunchStrategy == config.LaunchDetached {
		retries = retriesDetached
		// The detached child has already daemonized and the parent exec.Cmd
		// exited; readiness is determined purely by connect-retry below.
	} else {
		if err := p.awaitReadinessMarker(stdout, cmd); err != nil {
			p.killChild(cmd)
			diag := p.collectDiagnostics(outputPath)
			kind := KindInitializeServer
			if err == errAbnormalExit {
				kind = KindOlcServerAbnormalExit
			}
			return controlplane.GetVersionResponse{}, newErr(kind, fmt.Errorf("%v: %s", err, diag))
		}
	}

	resp, err := p.connectWithRetry(retries)
	if err != nil {
		p.killChild(cmd)
		diag := p.collectDiagnostics(outputPath)
		return controlplane.GetVersionResponse{}, newErr(KindConnectNew, fmt.Errorf("%v: %s", err, diag))
	}
	return resp, nil
}

// spawn composes the configured runtime invocation over the server binary
// and launches it per the selected LaunchStrategy (spec.md §4.1 step 4).
func (p *Preparer) spawn(outputPath string) (*exec.Cmd, io.ReadCloser, error) {
	args := p.serverArgs()

	if p.cfg.LaunchStrategy == config.LaunchDetached {
		shellCmd := fmt.Sprintf("nohup %s > %s 2>&1 &", shellJoin(args), outputPath)
		cmd := exec.Command("sh", "-c", shellCmd)
		if err := cmd.Run(); err != nil {
			return nil, nil, err
		}
		return cmd, nil, nil
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, nil, err
	}
	cmd := exec.Command(args[0], args[1:]...)
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		out.Close()
		return nil, nil, err
	}
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, nil, err
	}
	return cmd, stdoutPipe, nil
}

// serverArgs builds the runtime invocation: built-in server flags, the
// heap-max / heap-dump-on-OOM native arguments, spec.md §4.1 step 4(a)-(c).
func (p *Preparer) serverArgs() []string {
	args := []string{
		"java",
		fmt.Sprintf("-Xmx%s", p.cfg.AtsConsoleOLCServerXmx),
		"-XX:+HeapDumpOnOutOfMemoryError",
		"-jar", "ats-olc-server.jar",
		"--port", fmt.Sprintf("%d", p.cfg.OLCServerPort),
	}
	if p.cfg.XtsDisableTfResultLog {
		args = append(args, "--xts_disable_tf_result_log")
	}
	if p.cfg.EnableProxyMode {
		args = append(args, "--enable_proxy_mode")
	}
	return args
}

func shellJoin(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

// awaitReadinessMarker watches stdout for the literal readiness substring,
// bounded to initializeTimeout (spec.md §4.1 step 4, in-process-supervised
// strategy).
var errAbnormalExit = fmt.Errorf("OLC server exited before signalling readiness")

func (p *Preparer) awaitReadinessMarker(stdout io.ReadCloser, cmd *exec.Cmd) error {
	if stdout == nil {
		return fmt.Errorf("no stdout pipe for in-process-supervised launch")
	}
	found := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			logrus.Trace(line)
			if containsMarker(line) {
				found <- nil
				return
			}
		}
		found <- errAbnormalExit
	}()

	select {
	case err := <-found:
		return err
	case <-atstime.After(initializeTimeout):
		return fmt.Errorf("timed out waiting %s for readiness marker", initializeTimeout)
	}
}

func containsMarker(line string) bool {
	for i := 0; i+len(readinessMarker) <= len(line); i++ {
		if line[i:i+len(readinessMarker)] == readinessMarker {
			return true
		}
	}
	return false
}

// connectWithRetry reconnects up to attempts times at connectRetryDelay
// intervals, rendering a spinner while it waits, grounded on
// pkg/client/run.go's getSpinnerInstance.
func (p *Preparer) connectWithRetry(attempts int) (controlplane.GetVersionResponse, error) {
	s := spinner.New(spinner.CharSets[spinnerType], spinnerDuration)
	s.Suffix = " waiting for OLC server to accept connections"
	s.Start()
	defer s.Stop()

	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := p.client.GetVersion()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		<-atstime.After(connectRetryDelay)
	}
	return controlplane.GetVersionResponse{}, lastErr
}

func (p *Preparer) killChild(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil {
		logrus.WithError(err).Debug("failed to kill child OLC server process")
	}
}

// collectDiagnostics implements spec.md §4.1 step 6's fallback chain. The
// child's stderr is written into the output file, so it reads that file
// first, then the most recent server log file modified within the retry
// window.
func (p *Preparer) collectDiagnostics(outputPath string) string {
	if b, err := ioutil.ReadFile(outputPath); err == nil && len(b) > 0 {
		return string(b)
	}
	logPath := p.mostRecentServerLog()
	if logPath == "" {
		return "(no diagnostic output captured)"
	}
	info, err := os.Stat(logPath)
	if err != nil || time.Since(info.ModTime()) > initializeTimeout+time.Duration(retriesDetached)*connectRetryDelay {
		return "(no diagnostic output captured)"
	}
	b, err := ioutil.ReadFile(logPath)
	if err != nil {
		return "(no diagnostic output captured)"
	}
	return string(b)
}

func (p *Preparer) mostRecentServerLog() string {
	dir := filepath.Dir(p.cfg.AtsConsoleOLCServerOutputPath)
	if dir == "" {
		dir = "."
	}
	matches, err := filepath.Glob(filepath.Join(dir, "olc_server_log_*.txt"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	latest := matches[0]
	latestMod := time.Time{}
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.ModTime().After(latestMod) {
			latest, latestMod = m, info.ModTime()
		}
	}
	return latest
}
