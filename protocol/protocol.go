// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package protocol defines the JSON wire shapes exchanged between worker and
// coordinator, and between operator console and coordinator. Optional fields
// are represented with omitempty/pointer semantics: at the boundary, an
// absent field always means empty.
package protocol

// RunMode is the cluster-wide directive the coordinator hands to workers.
type RunMode string

const (
	RunModeStopped  RunMode = "stopped"
	RunModeRunning  RunMode = "running"
	RunModeDisarmed RunMode = "disarmed"
)

// Command is an operator console directive.
type Command string

const (
	CommandRun    Command = "run"
	CommandStop   Command = "stop"
	CommandArm    Command = "arm"
	CommandDisarm Command = "disarm"
	CommandReset  Command = "reset"
)

// CompletedCombination reports one finished combination with its throughput
// and any solutions discovered while solving it.
type CompletedCombination struct {
	Combination       int64    `json:"combination"`
	ProgramsCompleted int      `json:"programs_completed"`
	Solutions         []string `json:"solutions"`
}

// RunningCombination reports one in-flight combination's current progress.
type RunningCombination struct {
	Combination       int64 `json:"combination"`
	ProgramsCompleted int   `json:"programs_completed"`
}

// WorkerReport is the body of POST /worker/status. Solutions is carried at
// the top level for wire compatibility but is unused by the coordinator;
// solutions ride inside CombinationsCompleted records.
type WorkerReport struct {
	Token                 string                 `json:"token"`
	WorkerID              string                 `json:"worker_id"`
	Cores                 int                    `json:"cores"`
	CombinationsQueued    []int64                `json:"combinations_queued"`
	CombinationsRunning   []RunningCombination   `json:"combinations_running"`
	CombinationsCompleted []CompletedCombination `json:"combinations_completed,omitempty"`
	Solutions             []string               `json:"solutions,omitempty"`
	FirstStatus           bool                   `json:"first_status,omitempty"`
}

// WorkerResponse is the body returned from POST /worker/status.
type WorkerResponse struct {
	Status           RunMode `json:"status"`
	Solver           *string `json:"solver,omitempty"`
	NextCombinations []int64 `json:"next_combinations,omitempty"`
}

// ConsoleRequest is the body of POST /console_update.
type ConsoleRequest struct {
	Command Command `json:"command,omitempty"`
	Solver  string  `json:"solver,omitempty"`
}

// WorkerSnapshot is one worker's row in a console snapshot.
type WorkerSnapshot struct {
	WorkerID            string `json:"worker_id"`
	Cores               int    `json:"cores"`
	RunRate             *int   `json:"run_rate"`
	ProgramsRun         int    `json:"programs_run"`
	AssembliesCompleted int    `json:"assemblies_completed"`
	Status              string `json:"status"`
}

// SolvedEntry is one (worker, combination) completion pair. Two workers that
// both completed the same combination each contribute an entry.
type SolvedEntry struct {
	Combination       int64 `json:"assembly"`
	ProgramsCompleted int   `json:"programs_completed"`
}

// ConsoleSnapshot is the body returned from POST /console_update.
type ConsoleSnapshot struct {
	Status      RunMode          `json:"status"`
	ProgramsRun int              `json:"programs_run"`
	Workers     []WorkerSnapshot `json:"workers"`
	Solutions   []string         `json:"solutions"`
	Unsolved    []int64          `json:"unsolved"`
	Solved      []SolvedEntry    `json:"solved"`
}
