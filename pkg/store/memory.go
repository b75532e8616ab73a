package store

import (
	"context"
	"sync"
	"time"

	"github.com/watchy-xyz/watchy/pkg/report"
)

// MemoryStore is the in-process JobStore. It backs tests, single-node
// deployments without Redis, and the fallback path of the Redis store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]AuditJob
	now  func() time.Time
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]AuditJob), now: time.Now}
}

func (s *MemoryStore) CreateJob(_ context.Context, agentID, chainID uint64) (AuditJob, error) {
	job := AuditJob{
		ID:        newJobID(),
		AgentID:   agentID,
		ChainID:   chainID,
		Status:    StatusPending,
		CreatedAt: s.now().Unix(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job, nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (AuditJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return AuditJob{}, ErrJobNotFound
	}
	return job, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status) error {
	return s.mutate(id, func(job *AuditJob) {
		job.Status = status
	})
}

func (s *MemoryStore) SetResult(_ context.Context, id string, result *report.Report) error {
	return s.mutate(id, func(job *AuditJob) {
		now := s.now().Unix()
		job.Status = StatusCompleted
		job.CompletedAt = &now
		job.Result = result
	})
}

func (s *MemoryStore) SetError(_ context.Context, id string, message string) error {
	return s.mutate(id, func(job *AuditJob) {
		now := s.now().Unix()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = message
	})
}

func (s *MemoryStore) mutate(id string, apply func(*AuditJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	apply(&job)
	s.jobs[id] = job
	return nil
}
