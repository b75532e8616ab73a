// Package api exposes the auditor over HTTP: audit submission and polling,
// per-agent history, and operational endpoints. Audits run asynchronously;
// POST /audit returns a job id immediately and the caller polls for the
// report.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/watchy-xyz/watchy/pkg/chains"
	"github.com/watchy-xyz/watchy/pkg/config"
	"github.com/watchy-xyz/watchy/pkg/report"
	"github.com/watchy-xyz/watchy/pkg/store"
)

// jobTimeout bounds a single background audit run.
const jobTimeout = 2 * time.Minute

// Runner executes one audit. Satisfied by *audit.Engine.
type Runner interface {
	Run(ctx context.Context, recordID, chainID uint64) (*report.Report, error)
}

// Server routes audit requests to the engine and stores.
type Server struct {
	cfg     config.Config
	table   chains.Table
	jobs    store.JobStore
	archive store.Archive // nil disables history endpoints
	runner  Runner
	log     *slog.Logger
	version string

	// wg tracks in-flight background audits so shutdown can drain them.
	wg sync.WaitGroup
}

// NewServer wires the HTTP layer. archive may be nil.
func NewServer(cfg config.Config, table chains.Table, jobs store.JobStore, archive store.Archive, runner Runner, log *slog.Logger, version string) *Server {
	if log == nil {
		log = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Server{
		cfg:     cfg,
		table:   table,
		jobs:    jobs,
		archive: archive,
		runner:  runner,
		log:     log,
		version: version,
	}
}

// Handler builds the route table. Everything except /health sits behind the
// API key check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /chains", s.requireAPIKey(s.handleChains))
	mux.HandleFunc("POST /audit", s.requireAPIKey(s.handleRequestAudit))
	mux.HandleFunc("GET /audit/{id}", s.requireAPIKey(s.handleGetAudit))
	mux.HandleFunc("GET /audit/{id}/report", s.requireAPIKey(s.handleGetReport))
	mux.HandleFunc("GET /agents/{chainID}/{agentID}/audits", s.requireAPIKey(s.handleAgentAudits))
	mux.HandleFunc("GET /agents/{chainID}/{agentID}/report", s.requireAPIKey(s.handleAgentLatestReport))
	return mux
}

// Wait blocks until all background audit jobs have finished.
func (s *Server) Wait() { s.wg.Wait() }

// requireAPIKey gates a handler on the X-API-Key header. When no key is
// configured the service runs open.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-API-Key") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
