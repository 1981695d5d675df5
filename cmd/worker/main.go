// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Starts a worker agent: it forks bin/cold solve subprocesses to cover its
share of the combination space and reports progress to a coordinator over
HTTP, initiating every exchange itself.

For usage details, run worker with -h/--help.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/briansteffens/cold/clog"
	"github.com/briansteffens/cold/worker"
	"github.com/spf13/cobra"
)

func main() {
	var debug bool

	root := &cobra.Command{
		Use:   "worker <server_url> <token> <worker_id> <cores>",
		Short: "Run a single worker agent",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				clog.Enable()
			}

			cores, err := strconv.Atoi(args[3])
			if err != nil || cores < 1 {
				return fmt.Errorf("cores must be a positive integer, got %q", args[3])
			}

			a, err := worker.New(worker.Config{
				ServerURL: args[0],
				Token:     args[1],
				WorkerID:  args[2],
				Cores:     cores,
			})
			if err != nil {
				return fmt.Errorf("starting worker: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				fmt.Printf("terminating worker %s on signal %v...\n", args[2], sig)
				cancel()
			}()

			fmt.Printf("starting worker %s against %s with %d cores...\n", args[2], args[0], cores)
			a.Run(ctx)
			return nil
		},
	}

	root.Flags().BoolVarP(&debug, "debug", "l", false, "show logging output (for debugging)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
