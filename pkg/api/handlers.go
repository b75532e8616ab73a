package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/watchy-xyz/watchy/pkg/chains"
	"github.com/watchy-xyz/watchy/pkg/report"
	"github.com/watchy-xyz/watchy/pkg/store"
)

type auditRequest struct {
	AgentID uint64  `json:"agentId"`
	ChainID *uint64 `json:"chainId,omitempty"`
}

type auditCreatedResponse struct {
	AuditID             string       `json:"auditId"`
	AgentID             uint64       `json:"agentId"`
	ChainID             uint64       `json:"chainId"`
	ChainName           string       `json:"chainName"`
	Status              store.Status `json:"status"`
	CreatedAt           int64        `json:"createdAt"`
	EstimatedCompletion int64        `json:"estimatedCompletion"`
}

// handleRequestAudit validates the target chain, creates a pending job, and
// kicks off the audit in the background.
func (s *Server) handleRequestAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.AgentID == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "agentId must be greater than 0")
		return
	}

	chainID := s.cfg.DefaultChainID
	if req.ChainID != nil {
		chainID = *req.ChainID
	}
	chain, ok := s.table.Get(chainID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("unsupported chainId %d, supported: %v", chainID, s.table.IDs()))
		return
	}
	if chain.Kind != chains.KindEVM {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("chain %s (%d) is not an EVM chain; only EVM chains can be audited", chain.Name, chainID))
		return
	}
	if !chain.HasRegistry() {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("identity registry not deployed on %s (chain %d)", chain.Name, chainID))
		return
	}

	job, err := s.jobs.CreateJob(r.Context(), req.AgentID, chainID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to create audit job")
		return
	}
	s.log.Info("audit requested",
		"audit_id", job.ID, "agent_id", req.AgentID,
		"chain", chain.Name, "chain_id", chainID)

	s.wg.Add(1)
	go s.runJob(job.ID, req.AgentID, chainID)

	writeJSON(w, http.StatusAccepted, auditCreatedResponse{
		AuditID:             job.ID,
		AgentID:             req.AgentID,
		ChainID:             chainID,
		ChainName:           chain.Name,
		Status:              job.Status,
		CreatedAt:           job.CreatedAt,
		EstimatedCompletion: job.CreatedAt + 30,
	})
}

// runJob drives one audit to completion and records the outcome. It runs on
// its own context: the requesting HTTP connection is long gone by the time
// the audit finishes.
func (s *Server) runJob(jobID string, agentID, chainID uint64) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.jobs.UpdateStatus(ctx, jobID, store.StatusInProgress); err != nil {
		s.log.Error("mark job in progress", "audit_id", jobID, "error", err)
	}

	rep, err := s.runner.Run(ctx, agentID, chainID)
	if err != nil {
		s.log.Error("audit failed", "audit_id", jobID, "agent_id", agentID, "error", err)
		if serr := s.jobs.SetError(ctx, jobID, err.Error()); serr != nil {
			s.log.Error("record job failure", "audit_id", jobID, "error", serr)
		}
		return
	}

	if err := s.jobs.SetResult(ctx, jobID, rep); err != nil {
		s.log.Error("store audit result", "audit_id", jobID, "error", err)
	}
	if s.archive != nil {
		if err := s.archive.SaveReport(ctx, jobID, rep); err != nil {
			s.log.Error("archive report", "audit_id", jobID, "error", err)
		}
	}
	s.log.Info("audit completed",
		"audit_id", jobID, "agent_id", agentID,
		"overall", rep.Scores.Overall)
}

type auditResultSummary struct {
	Scores      report.Scores     `json:"scores"`
	IssuesCount report.IssueCount `json:"issuesCount"`
}

type auditStatusResponse struct {
	AuditID     string              `json:"auditId"`
	AgentID     uint64              `json:"agentId"`
	ChainID     uint64              `json:"chainId"`
	Status      store.Status        `json:"status"`
	CreatedAt   int64               `json:"createdAt"`
	CompletedAt *int64              `json:"completedAt,omitempty"`
	Result      *auditResultSummary `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
}

func statusResponse(job store.AuditJob) auditStatusResponse {
	resp := auditStatusResponse{
		AuditID:     job.ID,
		AgentID:     job.AgentID,
		ChainID:     job.ChainID,
		Status:      job.Status,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
	}
	if job.Result != nil {
		resp.Result = &auditResultSummary{
			Scores:      job.Result.Scores,
			IssuesCount: job.Result.CountIssues(),
		}
	}
	return resp
}

// handleGetAudit returns the job status with a score summary once complete.
func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "audit not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to load audit")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(job))
}

// handleGetReport returns the full report of a completed audit.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "audit not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to load audit")
		return
	}

	switch {
	case job.Result != nil:
		writeJSON(w, http.StatusOK, job.Result)
	case job.Status == store.StatusFailed:
		writeError(w, http.StatusInternalServerError, "audit_failed", job.Error)
	default:
		writeError(w, http.StatusConflict, "not_ready", "audit not yet completed")
	}
}

type agentAuditsResponse struct {
	AgentID uint64                `json:"agentId"`
	ChainID uint64                `json:"chainId"`
	Audits  []store.ReportSummary `json:"audits"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
}

// handleAgentAudits lists an agent's archived audit history, newest first.
func (s *Server) handleAgentAudits(w http.ResponseWriter, r *http.Request) {
	chainID, agentID, ok := agentPath(w, r)
	if !ok {
		return
	}
	if s.archive == nil {
		writeError(w, http.StatusNotImplemented, "archive_disabled", "report archive is not configured")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	audits, err := s.archive.History(r.Context(), agentID, chainID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to load audit history")
		return
	}
	if audits == nil {
		audits = []store.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, agentAuditsResponse{
		AgentID: agentID,
		ChainID: chainID,
		Audits:  audits,
		Total:   len(audits),
		Limit:   limit,
	})
}

// handleAgentLatestReport returns the newest archived report for an agent.
func (s *Server) handleAgentLatestReport(w http.ResponseWriter, r *http.Request) {
	chainID, agentID, ok := agentPath(w, r)
	if !ok {
		return
	}
	if s.archive == nil {
		writeError(w, http.StatusNotImplemented, "archive_disabled", "report archive is not configured")
		return
	}

	rep, err := s.archive.LatestReport(r.Context(), agentID, chainID)
	if errors.Is(err, store.ErrReportNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no archived report for this agent")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// agentPath parses the {chainID}/{agentID} path segments, writing the error
// response itself on failure.
func agentPath(w http.ResponseWriter, r *http.Request) (chainID, agentID uint64, ok bool) {
	chainID, err := strconv.ParseUint(r.PathValue("chainID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "chainID must be numeric")
		return 0, 0, false
	}
	agentID, err = strconv.ParseUint(r.PathValue("agentID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "agentID must be numeric")
		return 0, 0, false
	}
	return chainID, agentID, true
}

type healthResponse struct {
	Status          string   `json:"status"`
	Version         string   `json:"version"`
	SupportedChains []uint64 `json:"supportedChains"`
	DefaultChain    uint64   `json:"defaultChain"`
	Storage         string   `json:"storage"`
	Archive         bool     `json:"archive"`
	SignerAddress   string   `json:"signerAddress,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storage := "memory"
	if rs, ok := s.jobs.(*store.RedisStore); ok && rs.HasRedis() {
		storage = "redis"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "healthy",
		Version:         s.version,
		SupportedChains: s.table.IDs(),
		DefaultChain:    s.cfg.DefaultChainID,
		Storage:         storage,
		Archive:         s.archive != nil,
		SignerAddress:   s.cfg.SignerAddress,
	})
}

type chainInfo struct {
	ChainID         uint64 `json:"chainId"`
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	RegistryAddress string `json:"registryAddress,omitempty"`
	BlockExplorer   string `json:"blockExplorer,omitempty"`
}

// handleChains lists every configured chain; only entries with a registry
// address can be audited.
func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	ids := s.table.IDs()
	out := make([]chainInfo, 0, len(ids))
	for _, id := range ids {
		c, _ := s.table.Get(id)
		out = append(out, chainInfo{
			ChainID:         c.ID,
			Name:            c.Name,
			Kind:            string(c.Kind),
			RegistryAddress: c.RegistryAddress,
			BlockExplorer:   c.BlockExplorer,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
