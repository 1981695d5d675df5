// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Starts the coordinator, which tracks cluster state and serves it to workers
and the operator console over HTTP. Workers initiate every exchange; the
coordinator never dials out.

For usage details, run coordinator with -h/--help.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briansteffens/cold/clog"
	"github.com/briansteffens/cold/coordinator"
	"github.com/spf13/cobra"
)

func main() {
	var (
		listen        string
		solversDir    string
		consoleAssets string
		consoleUser   string
		consolePass   string
		defaultSolver string
		debug         bool
	)

	root := &cobra.Command{
		Use:   "coordinator <worker_token>",
		Short: "Run the cluster coordinator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				clog.Enable()
			}

			if consoleUser == "" {
				consoleUser = os.Getenv("COLD_CONSOLE_USER")
			}
			if consolePass == "" {
				consolePass = os.Getenv("COLD_CONSOLE_PASS")
			}
			if consoleUser == "" || consolePass == "" {
				return errors.New("console credentials required: set --console-user/--console-pass or COLD_CONSOLE_USER/COLD_CONSOLE_PASS")
			}

			c, err := coordinator.New(coordinator.Config{
				WorkerToken:   args[0],
				ConsoleUser:   consoleUser,
				ConsolePass:   consolePass,
				SolversDir:    solversDir,
				ConsoleAssets: consoleAssets,
				DefaultSolver: defaultSolver,
			})
			if err != nil {
				return fmt.Errorf("starting coordinator: %w", err)
			}

			return runHTTPWithGracefulShutdown(listen, c.Router())
		},
	}

	root.Flags().StringVar(&listen, "listen", ":5000", "address (host:port) to serve the coordinator's HTTP API on")
	root.Flags().StringVar(&solversDir, "solvers-dir", "solvers", "directory of .solve files making up the solver catalog")
	root.Flags().StringVar(&consoleAssets, "console-assets", "console", "directory containing the operator console's static assets")
	root.Flags().StringVar(&defaultSolver, "default-solver", "", "catalog solver name to preload at startup (default: first catalog entry)")
	root.Flags().StringVar(&consoleUser, "console-user", "", "operator console basic-auth username (or COLD_CONSOLE_USER)")
	root.Flags().StringVar(&consolePass, "console-pass", "", "operator console basic-auth password (or COLD_CONSOLE_PASS)")
	root.Flags().BoolVarP(&debug, "debug", "l", false, "show logging output (for debugging)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runHTTPWithGracefulShutdown serves handler on listen until a termination
// signal arrives, then drains in-flight requests for up to 10s.
func runHTTPWithGracefulShutdown(listen string, handler http.Handler) error {
	srv := &http.Server{Addr: listen, Handler: handler}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		fmt.Printf("coordinator listening on %s\n", listen)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		fmt.Printf("terminating coordinator on signal %v...\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
