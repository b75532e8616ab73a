// Package store persists audit jobs and their reports. Jobs are short-lived
// operational state (Redis with an in-memory fallback, 7-day TTL); completed
// reports can additionally be archived durably in SQL.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watchy-xyz/watchy/pkg/report"
)

// ErrJobNotFound is returned when a job id is unknown or has expired.
var ErrJobNotFound = errors.New("store: audit job not found")

const (
	// auditKeyPrefix namespaces job keys in Redis.
	auditKeyPrefix = "watchy:audit:"

	// JobTTL is how long a job is retrievable after creation.
	JobTTL = 7 * 24 * time.Hour
)

// Status is the lifecycle state of an audit job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AuditJob tracks one requested audit from submission to completion.
type AuditJob struct {
	ID          string         `json:"id"`
	AgentID     uint64         `json:"agentId"`
	ChainID     uint64         `json:"chainId"`
	Status      Status         `json:"status"`
	CreatedAt   int64          `json:"createdAt"`
	CompletedAt *int64         `json:"completedAt,omitempty"`
	Result      *report.Report `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// JobStore is the operational job storage port.
type JobStore interface {
	// CreateJob registers a pending job and returns it.
	CreateJob(ctx context.Context, agentID, chainID uint64) (AuditJob, error)
	// GetJob returns a job by id; ErrJobNotFound when absent or expired.
	GetJob(ctx context.Context, id string) (AuditJob, error)
	// UpdateStatus transitions a job's lifecycle state.
	UpdateStatus(ctx context.Context, id string, status Status) error
	// SetResult attaches the finished report and marks the job completed.
	SetResult(ctx context.Context, id string, result *report.Report) error
	// SetError records a failure message and marks the job failed.
	SetError(ctx context.Context, id string, message string) error
}

// newJobID mints an audit job identifier.
func newJobID() string {
	return "aud_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func jobKey(id string) string {
	return auditKeyPrefix + id
}
