// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package coordinator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/briansteffens/cold/catalog"
	"github.com/briansteffens/cold/clog"
	"github.com/briansteffens/cold/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the coordinator's static configuration: credentials and the
// filesystem locations of the solver catalog and console assets.
type Config struct {
	WorkerToken   string
	ConsoleUser   string
	ConsolePass   string
	SolversDir    string
	ConsoleAssets string

	// DefaultSolver names the catalog entry to preload at startup. Empty
	// means the first entry in catalog order.
	DefaultSolver string
}

// Coordinator is the application component that owns State and serves it
// over HTTP. Every exchange is initiated by a worker or by the console; the
// coordinator never pushes.
type Coordinator struct {
	*clog.CLogger

	cfg     Config
	state   *State
	catalog *catalog.Catalog
	reg     *prometheus.Registry
}

// New constructs a Coordinator and bootstraps derived state from the named
// default solver (or, absent one, the catalog's first entry) so the console
// has a meaningful combination count before any command has been issued.
func New(cfg Config) (*Coordinator, error) {
	c := &Coordinator{
		CLogger: clog.New("coordinator "),
		cfg:     cfg,
		state:   NewState(),
		catalog: catalog.New(cfg.SolversDir),
		reg:     prometheus.NewRegistry(),
	}
	c.reg.MustRegister(newMetricsCollector(c.state))

	if cfg.DefaultSolver != "" {
		e, ok, err := c.catalog.ByName(cfg.DefaultSolver)
		if err != nil {
			return nil, fmt.Errorf("coordinator: loading solver catalog: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("coordinator: solver %q not in catalog", cfg.DefaultSolver)
		}
		if err := c.state.Bootstrap(e.Text); err != nil {
			return nil, fmt.Errorf("coordinator: bootstrapping default solver: %w", err)
		}
		return c, nil
	}

	entries, err := c.catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("coordinator: loading solver catalog: %w", err)
	}
	if len(entries) > 0 {
		if err := c.state.Bootstrap(entries[0].Text); err != nil {
			return nil, fmt.Errorf("coordinator: bootstrapping default solver: %w", err)
		}
	}

	return c, nil
}

// Router builds the coordinator's full HTTP route table.
func (c *Coordinator) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/worker/status", c.handleWorkerStatus).Methods(http.MethodPost)
	r.HandleFunc("/console_update", c.requireConsoleAuth(c.handleConsoleUpdate)).Methods(http.MethodPost)
	r.HandleFunc("/", c.requireConsoleAuth(c.handleIndex)).Methods(http.MethodGet)
	r.HandleFunc("/view.js", c.requireConsoleAuth(c.handleStaticAsset("view.js", "application/javascript"))).Methods(http.MethodGet)
	r.HandleFunc("/style.css", c.requireConsoleAuth(c.handleStaticAsset("style.css", "text/css"))).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// requireConsoleAuth wraps h with HTTP basic auth against the configured
// operator credentials, compared in constant time.
func (c *Coordinator) requireConsoleAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !constantTimeEqual(user, c.cfg.ConsoleUser) || !constantTimeEqual(pass, c.cfg.ConsolePass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Login Required"`)
			http.Error(w, "Could not verify your access level for that URL.\nYou have to login with proper credentials", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

// handleWorkerStatus implements POST /worker/status.
func (c *Coordinator) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()[:8]

	var req protocol.WorkerReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.Errorf("[%s] malformed worker report: %v", reqID, err)
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	if !constantTimeEqual(req.Token, c.cfg.WorkerToken) {
		c.Errorf("[%s] rejected worker report from %s: bad token", reqID, req.WorkerID)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	c.Printf("[%s] worker %s: queued=%d running=%d completed=%d", reqID, truncateGraphemes(req.WorkerID, 32),
		len(req.CombinationsQueued), len(req.CombinationsRunning), len(req.CombinationsCompleted))

	resp := c.state.ProcessReport(req)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		c.Errorf("[%s] failed encoding response: %v", reqID, err)
	}
}

// handleConsoleUpdate implements POST /console_update.
func (c *Coordinator) handleConsoleUpdate(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()[:8]

	var req protocol.ConsoleRequest
	if r.Body != nil {
		// Permissive: an empty or absent body is a snapshot-only request.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.Command != "" {
		c.Printf("[%s] console command %s", reqID, req.Command)
		if err := c.state.Command(req.Command, req.Solver); err != nil {
			c.Errorf("[%s] console command failed: %v", reqID, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	snap := c.state.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		c.Errorf("[%s] failed encoding snapshot: %v", reqID, err)
	}
}

// handleIndex serves the console's entry page with its {solvers} placeholder
// substituted by the current on-disk catalog, re-read on every request so
// newly dropped-in solver files appear without a restart.
func (c *Coordinator) handleIndex(w http.ResponseWriter, r *http.Request) {
	tmpl, err := os.ReadFile(filepath.Join(c.cfg.ConsoleAssets, "index.html"))
	if err != nil {
		http.Error(w, "console assets not found", http.StatusInternalServerError)
		return
	}

	entries, err := c.catalog.Load()
	if err != nil {
		c.Errorf("failed loading solver catalog for console: %v", err)
		entries = nil
	}

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		text := strings.ReplaceAll(e.Text, "\n", "\\n")
		parts = append(parts, fmt.Sprintf("{name: '%s', text: '%s'}", e.Name, text))
	}
	solverJSON := strings.Join(parts, ",")

	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(strings.ReplaceAll(string(tmpl), "{solvers}", solverJSON)))
}

// handleStaticAsset serves a single file from the console asset directory
// with a fixed content type.
func (c *Coordinator) handleStaticAsset(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(filepath.Join(c.cfg.ConsoleAssets, name))
		if err != nil {
			http.Error(w, name+" not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}
