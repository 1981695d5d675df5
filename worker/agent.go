// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package worker implements the worker agent half of the cluster: a
// single-threaded control loop that launches solver subprocesses, scrapes
// their progress, and reports to the coordinator every tick.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/briansteffens/cold/clog"
	"github.com/briansteffens/cold/protocol"
	"golang.org/x/sync/errgroup"
)

// Config holds an Agent's static configuration, one field per positional
// CLI argument: `worker <server_url> <token> <worker_id> <cores>`.
type Config struct {
	ServerURL string
	Token     string
	WorkerID  string
	Cores     int
}

// Agent is a single worker node's control loop.
type Agent struct {
	*clog.CLogger

	cfg        Config
	workingDir string
	solverFile string

	client *http.Client

	queue     []int64
	processes []*process

	// completed accumulates reaped completion records until a report
	// round-trip succeeds, so a coordinator outage never loses them.
	completed   []protocol.CompletedCombination
	firstStatus bool
}

// New constructs an Agent rooted at workers/<id>/ and resets that working
// directory.
func New(cfg Config) (*Agent, error) {
	workingDir := filepath.Join("workers", cfg.WorkerID)

	a := &Agent{
		CLogger:     clog.New("%s ", cfg.WorkerID),
		cfg:         cfg,
		workingDir:  workingDir,
		solverFile:  filepath.Join(workingDir, "solver.solve"),
		client:      &http.Client{Timeout: 10 * time.Second},
		firstStatus: true,
	}

	if err := a.resetWorkingDir(); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Agent) resetWorkingDir() error {
	if err := os.RemoveAll(a.workingDir); err != nil {
		return fmt.Errorf("worker: clearing working dir: %w", err)
	}
	if err := os.MkdirAll(a.workingDir, 0o755); err != nil {
		return fmt.Errorf("worker: creating working dir: %w", err)
	}
	return nil
}

// Run is the agent's forever loop. It returns only when ctx is canceled,
// after killing all live children.
func (a *Agent) Run(ctx context.Context) {
	defer a.killAll()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		status := a.tick(ctx)

		sleep := 1 * time.Second
		if status == protocol.RunModeDisarmed {
			sleep = 30 * time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// tick runs one iteration of the control loop and returns the run mode the
// coordinator replied with (or "" if the report round-trip failed, in which
// case the caller should use the default 1s retry sleep).
func (a *Agent) tick(ctx context.Context) protocol.RunMode {
	a.drainAll()
	a.completed = append(a.completed, a.reapAll()...)

	report := protocol.WorkerReport{
		Token:                 a.cfg.Token,
		WorkerID:              a.cfg.WorkerID,
		Cores:                 a.cfg.Cores,
		CombinationsQueued:    append([]int64(nil), a.queue...),
		CombinationsRunning:   a.runningSnapshot(),
		CombinationsCompleted: a.completed,
		FirstStatus:           a.firstStatus,
	}

	resp, err := a.postReport(ctx, report)
	if err != nil {
		// Retry next tick with everything intact: completions stay buffered,
		// first_status stays set, children keep running.
		a.Errorf("error connecting to cluster server: %v", err)
		return ""
	}

	a.completed = nil
	a.firstStatus = false

	a.Printf("status %s: queued=%d running=%d completed=%d solver=%t assigned=%d",
		resp.Status, len(report.CombinationsQueued), len(report.CombinationsRunning),
		len(report.CombinationsCompleted), resp.Solver != nil, len(resp.NextCombinations))

	if resp.Status != protocol.RunModeRunning {
		a.killAll()
	}

	if resp.Solver != nil {
		a.killAll()
		if err := a.resetWorkingDir(); err != nil {
			a.Errorf("failed resetting working dir for new solver: %v", err)
		} else if err := os.WriteFile(a.solverFile, []byte(*resp.Solver), 0o644); err != nil {
			a.Errorf("failed writing new solver file: %v", err)
		}
	}

	a.queue = append(a.queue, resp.NextCombinations...)

	a.launchFromQueue()

	return resp.Status
}

// drainAll non-blockingly drains every live process's stdout. Fan-out across
// an errgroup since each process's drain is independent of the others.
func (a *Agent) drainAll() {
	var g errgroup.Group
	for _, p := range a.processes {
		p := p
		g.Go(func() error {
			p.drain()
			return nil
		})
	}
	_ = g.Wait()
}

// reapAll removes exited processes from the live set and returns their
// completion records.
func (a *Agent) reapAll() []protocol.CompletedCombination {
	var completed []protocol.CompletedCombination
	live := a.processes[:0]

	for _, p := range a.processes {
		if p.pollExit() {
			completed = append(completed, p.completion(a.workingDir))
			continue
		}
		live = append(live, p)
	}

	a.processes = live
	return completed
}

func (a *Agent) runningSnapshot() []protocol.RunningCombination {
	running := make([]protocol.RunningCombination, 0, len(a.processes))
	for _, p := range a.processes {
		running = append(running, protocol.RunningCombination{
			Combination:       p.combination,
			ProgramsCompleted: p.programsCompleted,
		})
	}
	return running
}

func (a *Agent) postReport(ctx context.Context, report protocol.WorkerReport) (*protocol.WorkerResponse, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ServerURL+"/worker/status", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cluster server returned status %d", res.StatusCode)
	}

	var resp protocol.WorkerResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

// launchFromQueue starts subprocesses off the head of the queue until cores
// live children are reached.
func (a *Agent) launchFromQueue() {
	for len(a.queue) > 0 && len(a.processes) < a.cfg.Cores {
		combination := a.queue[0]
		a.queue = a.queue[1:]

		p, err := launchProcess(combination, a.solverFile, a.workingDir)
		if err != nil {
			a.Errorf("failed launching combination %d: %v", combination, err)
			continue
		}
		a.processes = append(a.processes, p)
	}
}

func (a *Agent) killAll() {
	for _, p := range a.processes {
		p.kill()
	}
	a.processes = nil
}
