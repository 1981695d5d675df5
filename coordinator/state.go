// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package coordinator implements the coordinator half of the cluster: the
// single-owner state machine described by the worker-report and console
// handlers, and the HTTP surface that exposes them.
package coordinator

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/briansteffens/cold/clog"
	"github.com/briansteffens/cold/protocol"
	"github.com/briansteffens/cold/solver"
)

// runSample is one (programs_run, timestamp) observation in a worker's
// sliding throughput window.
type runSample struct {
	sample int
	at     time.Time
}

// workerRecord is the coordinator-side bookkeeping for one worker.
type workerRecord struct {
	workerID string
	cores    int

	lastCheckin    time.Time
	lastStatusSent protocol.RunMode
	hasSolverSent  bool
	lastSolverSent string

	running []protocol.RunningCombination
	queued  []int64

	completedSet map[int64]struct{}
	completed    []protocol.CompletedCombination // ordered, for console snapshot
	runSamples   []runSample
	programsRun  int
	runRate      *int
}

func newWorkerRecord(id string, cores int) *workerRecord {
	return &workerRecord{
		workerID:     id,
		cores:        cores,
		completedSet: make(map[int64]struct{}),
	}
}

// clearDynamic wipes a worker's per-generation bookkeeping on a solver reset,
// retaining its registration (worker_id, cores).
func (w *workerRecord) clearDynamic() {
	w.running = nil
	w.queued = nil
	w.completedSet = make(map[int64]struct{})
	w.completed = nil
	w.runSamples = nil
	w.programsRun = 0
	w.runRate = nil
}

// State is the coordinator's single logical owner of cluster state. All
// mutation and read access goes through its mutex-guarded methods; no field
// is exported so handlers cannot bypass the lock.
type State struct {
	*clog.CLogger

	mu sync.Mutex

	runMode protocol.RunMode

	hasSolver  bool
	solverText string
	patterns   []string
	depth      int
	total      int64

	unsolved []int64
	cursor   int

	totalProgramsRun int
	solutions        []string

	workers map[string]*workerRecord
}

// NewState returns a State with run_mode stopped and no solver armed.
func NewState() *State {
	return &State{
		CLogger: clog.New("coordinator "),
		runMode: protocol.RunModeStopped,
		workers: make(map[string]*workerRecord),
	}
}

// Bootstrap pre-populates the derived solver fields from a catalog entry
// without arming run_mode: total_combinations is meaningful on the very
// first console snapshot, but nothing is dispatched until an operator
// issues run/reset.
func (s *State) Bootstrap(solverText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked(solverText)
}

// resetLocked installs solverText as the active solver, recomputes derived
// fields, reinitializes unsolved to [0, total), and clears every worker's
// per-generation bookkeeping. Caller must hold s.mu.
func (s *State) resetLocked(solverText string) error {
	sv, err := solver.Parse(solverText)
	if err != nil {
		return fmt.Errorf("coordinator: reset: %w", err)
	}

	s.hasSolver = true
	s.solverText = solverText
	s.patterns = sv.Patterns
	s.depth = sv.Depth
	s.total = sv.TotalCombinations()

	s.unsolved = make([]int64, s.total)
	for i := range s.unsolved {
		s.unsolved[i] = int64(i)
	}
	s.cursor = 0
	s.totalProgramsRun = 0
	s.solutions = nil

	for _, w := range s.workers {
		w.clearDynamic()
	}

	s.Printf("solver armed: %d patterns, depth %d, %d combinations", len(s.patterns), s.depth, s.total)

	return nil
}

// Command applies an operator console command. solverText is only consulted
// by run/reset; when empty, both fall back to the solver already armed, and
// run refuses to start a cluster that has no solver at all.
func (s *State) Command(cmd protocol.Command, solverText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if solverText == "" && s.hasSolver {
		solverText = s.solverText
	}

	switch cmd {
	case protocol.CommandRun:
		if !s.hasSolver && solverText == "" {
			return fmt.Errorf("coordinator: no solver to run")
		}
		if !s.hasSolver || solverText != s.solverText {
			if err := s.resetLocked(solverText); err != nil {
				return err
			}
		}
		s.runMode = protocol.RunModeRunning

	case protocol.CommandStop:
		s.runMode = protocol.RunModeStopped

	case protocol.CommandArm:
		// Arming while running is not a valid transition; leave run_mode
		// untouched in that case.
		if s.runMode != protocol.RunModeRunning {
			s.runMode = protocol.RunModeStopped
		}

	case protocol.CommandDisarm:
		s.runMode = protocol.RunModeDisarmed

	case protocol.CommandReset:
		if !s.hasSolver && solverText == "" {
			return fmt.Errorf("coordinator: no solver to reset to")
		}
		wasRunning := s.runMode == protocol.RunModeRunning
		if err := s.resetLocked(solverText); err != nil {
			return err
		}
		if wasRunning {
			s.runMode = protocol.RunModeStopped
		}
		// stopped and disarmed both retain their prior run_mode across reset.

	default:
		return fmt.Errorf("coordinator: unknown command %q", cmd)
	}

	s.Printf("run_mode -> %s (command %s)", s.runMode, cmd)

	return nil
}

// ProcessReport applies one worker status report and returns the directives
// to send back: the current run mode, the solver if this worker hasn't seen
// the current one, and fresh assignments while running.
func (s *State) ProcessReport(req protocol.WorkerReport) protocol.WorkerResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[req.WorkerID]
	if !ok {
		w = newWorkerRecord(req.WorkerID, req.Cores)
		s.workers[req.WorkerID] = w
	}

	now := time.Now()
	w.lastCheckin = now
	w.running = req.CombinationsRunning
	w.queued = req.CombinationsQueued

	if s.runMode == protocol.RunModeRunning {
		for _, ac := range req.CombinationsCompleted {
			if _, seen := w.completedSet[ac.Combination]; seen {
				continue
			}
			w.completedSet[ac.Combination] = struct{}{}
			w.completed = append(w.completed, ac)
			s.totalProgramsRun += ac.ProgramsCompleted
			s.solutions = append(s.solutions, ac.Solutions...)
			s.removeUnsolvedLocked(ac.Combination)
		}
	}

	// Auto-stop on exhaustion. Runs on every report, not only while
	// accepting completions; disarmed suppresses it.
	if s.runMode != protocol.RunModeDisarmed && len(s.unsolved) == 0 {
		s.runMode = protocol.RunModeStopped
	}

	s.sampleThroughput(w, now)

	resp := protocol.WorkerResponse{Status: s.runMode}
	w.lastStatusSent = s.runMode

	if s.hasSolver && (req.FirstStatus || !w.hasSolverSent || w.lastSolverSent != s.solverText) {
		solverCopy := s.solverText
		resp.Solver = &solverCopy
		w.hasSolverSent = true
		w.lastSolverSent = s.solverText
	}

	if resp.Status == protocol.RunModeRunning {
		current := len(w.running) + len(w.queued)
		ideal := w.cores * 2
		needed := ideal - current
		if left := len(s.unsolved); needed > left {
			needed = left
		}
		if needed > 0 {
			resp.NextCombinations = s.assignLocked(needed)
		}
	}

	return resp
}

// removeUnsolvedLocked deletes combination from unsolved if present. A
// combination already absent (e.g. removed by another worker's completion,
// or a redelivered report) is a no-op, which is what makes reports
// idempotent. Caller must hold s.mu.
func (s *State) removeUnsolvedLocked(combination int64) {
	for i, u := range s.unsolved {
		if u == combination {
			s.unsolved = append(s.unsolved[:i], s.unsolved[i+1:]...)
			return
		}
	}
}

// assignLocked advances the round-robin cursor over the (possibly shrunken)
// unsolved list, wrapping modulo its current size on every read rather than
// clamping once, and returns up to n assigned combinations. Caller must hold
// s.mu.
func (s *State) assignLocked(n int) []int64 {
	assigned := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		if len(s.unsolved) == 0 {
			break
		}
		s.cursor %= len(s.unsolved)
		assigned = append(assigned, s.unsolved[s.cursor])
		s.cursor++
	}
	return assigned
}

// sampleThroughput updates w's sliding run-rate window: the ceiling of the
// mean of pairwise (delta sample)/(delta t) rates across the last three
// observations. Caller must hold s.mu. See DESIGN.md for the rate formula
// decision.
func (s *State) sampleThroughput(w *workerRecord, now time.Time) {
	w.programsRun = 0
	for _, c := range w.completed {
		w.programsRun += c.ProgramsCompleted
	}
	for _, r := range w.running {
		w.programsRun += r.ProgramsCompleted
	}

	w.runSamples = append(w.runSamples, runSample{sample: w.programsRun, at: now})
	if len(w.runSamples) > 3 {
		w.runSamples = w.runSamples[len(w.runSamples)-3:]
	}

	if len(w.runSamples) < 2 || s.runMode != protocol.RunModeRunning {
		w.runRate = nil
		return
	}

	var rates []float64
	for i := 0; i < len(w.runSamples)-1; i++ {
		earlier, later := w.runSamples[i], w.runSamples[i+1]
		dt := later.at.Sub(earlier.at).Seconds()
		if dt <= 0 {
			continue
		}
		rates = append(rates, float64(later.sample-earlier.sample)/dt)
	}
	if len(rates) == 0 {
		w.runRate = nil
		return
	}

	sum := 0.0
	for _, r := range rates {
		sum += r
	}
	mean := sum / float64(len(rates))
	rate := int(math.Ceil(mean))
	w.runRate = &rate
}

// Snapshot returns a console-facing view of current state. Worker rows are
// ordered by worker_id for deterministic output.
func (s *State) Snapshot() protocol.ConsoleSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snap := protocol.ConsoleSnapshot{
		Status:      s.runMode,
		ProgramsRun: s.totalProgramsRun,
		Solutions:   s.solutions,
		Unsolved:    s.unsolved,
	}

	now := time.Now()
	for _, id := range ids {
		w := s.workers[id]

		status := "inactive"
		switch {
		case w.lastStatusSent == protocol.RunModeDisarmed:
			status = "disarmed"
		case now.Sub(w.lastCheckin) < 5*time.Second:
			status = "active"
		}

		snap.Workers = append(snap.Workers, protocol.WorkerSnapshot{
			WorkerID:            w.workerID,
			Cores:               w.cores,
			RunRate:             w.runRate,
			ProgramsRun:         w.programsRun,
			AssembliesCompleted: len(w.completed),
			Status:              status,
		})

		for _, c := range w.completed {
			snap.Solved = append(snap.Solved, protocol.SolvedEntry{
				Combination:       c.Combination,
				ProgramsCompleted: c.ProgramsCompleted,
			})
		}
	}

	return snap
}
