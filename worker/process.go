// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package worker

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/briansteffens/cold/protocol"
)

// process tracks one solver subprocess handling a single combination index.
//
// Its stdout is drained through a buffered channel fed by a scanning
// goroutine: draining never blocks the control loop, and EOF on the pipe is
// not treated as termination. Only cmd.Wait returning signals that.
type process struct {
	combination int64
	cmd         *exec.Cmd

	lines chan string
	waitC chan error

	programsCompleted int
	exited            bool
}

// cmdPath is the solver binary invoked for each combination.
const cmdPath = "bin/cold"

func launchProcess(combination int64, solverFile, workingDir string) (*process, error) {
	cmd := exec.Command(cmdPath, "solve", solverFile,
		fmt.Sprintf("--combination=%d", combination),
		"--combination-count=1",
		"--non-interactive",
		"--all",
		fmt.Sprintf("--output-dir=%s", workingDir),
		"--hide-solutions",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdout pipe for combination %d: %w", combination, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker: starting solver for combination %d: %w", combination, err)
	}

	p := &process{
		combination: combination,
		cmd:         cmd,
		lines:       make(chan string, 256),
		waitC:       make(chan error, 1),
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
		close(p.lines)
	}()

	go func() {
		p.waitC <- cmd.Wait()
	}()

	return p, nil
}

// drain consumes every line currently buffered without blocking, updating
// programsCompleted from any "total: <n>, ..." progress line.
func (p *process) drain() {
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return
			}
			if n, ok := parseTotal(line); ok {
				p.programsCompleted = n
			}
		default:
			return
		}
	}
}

// parseTotal extracts <n> from a "total: <n>, ..." progress line.
func parseTotal(line string) (int, bool) {
	const prefix = "total: "
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}
	rest := strings.TrimPrefix(line, prefix)
	if i := strings.Index(rest, ","); i != -1 {
		rest = rest[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return n, true
}

// pollExit checks, without blocking, whether the subprocess has exited.
func (p *process) pollExit() bool {
	if p.exited {
		return true
	}
	select {
	case <-p.waitC:
		p.exited = true
		return true
	default:
		return false
	}
}

// kill terminates the subprocess and waits for it to exit. Safe to call on
// an already-exited process.
func (p *process) kill() {
	if !p.exited {
		_ = p.cmd.Process.Kill()
		<-p.waitC
		p.exited = true
	}
}

// readSolutions reads workers/<id>/<combination>/solution.cold, if present,
// splitting on lines containing only "---" and dropping empty records.
func readSolutions(workingDir string, combination int64) []string {
	path := filepath.Join(workingDir, strconv.FormatInt(combination, 10), "solution.cold")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var solutions []string
	var rec []string
	flush := func() {
		if s := strings.TrimSpace(strings.Join(rec, "\n")); s != "" {
			solutions = append(solutions, s)
		}
		rec = nil
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		rec = append(rec, line)
	}
	flush()
	return solutions
}

// completion builds the CompletedCombination record for a process that has
// exited, reading any solutions it left behind.
func (p *process) completion(workingDir string) protocol.CompletedCombination {
	return protocol.CompletedCombination{
		Combination:       p.combination,
		ProgramsCompleted: p.programsCompleted,
		Solutions:         readSolutions(workingDir, p.combination),
	}
}
