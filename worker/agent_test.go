// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/briansteffens/cold/protocol"
	"github.com/stretchr/testify/require"
)

// fakeScript replaces bin/cold for these tests with a tiny shell script, so
// tests never depend on the real solver binary.
func fakeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake solve script is a POSIX shell script")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "cold")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

// fakeSolveScript prints one progress line and exits immediately.
func fakeSolveScript(t *testing.T) string {
	return fakeScript(t, "#!/bin/sh\necho 'total: 3, ok'\nexit 0\n")
}

func chdirToScriptParent(t *testing.T, scriptPath string) {
	t.Helper()
	// launchProcess always execs "bin/cold" relative to the current working
	// directory, so point cwd at a directory containing a bin/cold symlink.
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "bin"), 0o755))
	data, err := os.ReadFile(scriptPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "cold"), data, 0o755))

	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func newTestAgent(t *testing.T, serverURL string) *Agent {
	t.Helper()
	prevWD, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prevWD) })

	a, err := New(Config{ServerURL: serverURL, Token: "tok", WorkerID: "w1", Cores: 2})
	require.NoError(t, err)
	return a
}

func TestTransportFailureLeavesStateUnmutated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestAgent(t, srv.URL)
	a.queue = []int64{1, 2, 3}
	a.firstStatus = true

	status := a.tick(context.Background())
	require.Equal(t, protocol.RunMode(""), status)
	require.True(t, a.firstStatus, "firstStatus must not clear on a failed round-trip")
	require.Equal(t, []int64{1, 2, 3}, a.queue, "queue must not mutate on a failed round-trip")
}

func TestNonRunningStatusKillsAllProcesses(t *testing.T) {
	// A child that would run for a minute on its own: only the kill that a
	// non-running status triggers can explain it being gone afterwards.
	scriptPath := fakeScript(t, "#!/bin/sh\nsleep 60\n")

	var seenCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.WorkerReport
		_ = json.NewDecoder(r.Body).Decode(&req)
		seenCount = len(req.CombinationsRunning)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.WorkerResponse{Status: protocol.RunModeStopped})
	}))
	defer srv.Close()

	a := newTestAgent(t, srv.URL)
	chdirToScriptParent(t, scriptPath)

	a.queue = []int64{0}
	a.launchFromQueue()
	require.Len(t, a.processes, 1)

	_ = a.tick(context.Background())

	require.Equal(t, 1, seenCount, "report sent before the kill reflects the still-running child")
	require.Empty(t, a.processes, "a non-running status must kill all live processes")
}

func TestCompletionsSurviveFailedReport(t *testing.T) {
	scriptPath := fakeSolveScript(t)

	var fail bool
	var lastCompleted []protocol.CompletedCombination
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.WorkerReport
		_ = json.NewDecoder(r.Body).Decode(&req)
		lastCompleted = req.CombinationsCompleted
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.WorkerResponse{Status: protocol.RunModeRunning})
	}))
	defer srv.Close()

	a := newTestAgent(t, srv.URL)
	chdirToScriptParent(t, scriptPath)

	a.queue = []int64{5}
	a.launchFromQueue()
	require.Len(t, a.processes, 1)

	// Wait for the child to finish so the next tick reaps it.
	require.Eventually(t, a.processes[0].pollExit, 5*time.Second, 10*time.Millisecond)

	fail = true
	_ = a.tick(context.Background())
	require.Len(t, lastCompleted, 1, "reaped completion must be in the failed report")
	require.Len(t, a.completed, 1, "completion must stay buffered after a failed round-trip")

	fail = false
	_ = a.tick(context.Background())
	require.Len(t, lastCompleted, 1, "buffered completion must be re-sent on the next tick")
	require.Equal(t, int64(5), lastCompleted[0].Combination)
	require.Empty(t, a.completed, "buffer clears once a report round-trip succeeds")
}

func TestSolverChangeWipesWorkingDirAndRewritesSolverFile(t *testing.T) {
	newSolver := "pattern a\ndepth 1"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.WorkerResponse{
			Status:           protocol.RunModeRunning,
			Solver:           &newSolver,
			NextCombinations: []int64{0},
		})
	}))
	defer srv.Close()

	a := newTestAgent(t, srv.URL)

	stale := filepath.Join(a.workingDir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	_ = a.tick(context.Background())

	require.NoFileExists(t, stale)
	data, err := os.ReadFile(a.solverFile)
	require.NoError(t, err)
	require.Equal(t, newSolver, string(data))
}

func TestQueueExtendedFromNextCombinationsAndLaunchedUpToCores(t *testing.T) {
	scriptPath := fakeSolveScript(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.WorkerResponse{
			Status:           protocol.RunModeRunning,
			NextCombinations: []int64{10, 11, 12},
		})
	}))
	defer srv.Close()

	a := newTestAgent(t, srv.URL)
	chdirToScriptParent(t, scriptPath)

	_ = a.tick(context.Background())

	require.Len(t, a.processes, 2, "cores=2 caps live processes even with 3 queued")
	require.Equal(t, []int64{12}, a.queue)
}
