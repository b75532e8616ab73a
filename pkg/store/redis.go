package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watchy-xyz/watchy/pkg/report"
)

// RedisStore persists jobs in Redis with a TTL, falling back to an embedded
// in-memory store whenever Redis is unavailable. Job operations never fail
// because of Redis: the fallback absorbs every error path, at the cost of
// durability.
type RedisStore struct {
	rdb      redis.Cmdable
	fallback *MemoryStore
	now      func() time.Time
	log      *slog.Logger
}

// NewRedisStore connects to the given Redis URL. A bad URL or unreachable
// server degrades to memory-only operation rather than failing startup.
func NewRedisStore(ctx context.Context, redisURL string, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	s := &RedisStore{fallback: NewMemoryStore(), now: time.Now, log: log}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("invalid redis url, using in-memory job store", "error", err)
		return s
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, using in-memory job store", "error", err)
		return s
	}
	s.rdb = rdb
	return s
}

// HasRedis reports whether a live Redis connection backs this store.
func (s *RedisStore) HasRedis() bool { return s.rdb != nil }

func (s *RedisStore) CreateJob(ctx context.Context, agentID, chainID uint64) (AuditJob, error) {
	job := AuditJob{
		ID:        newJobID(),
		AgentID:   agentID,
		ChainID:   chainID,
		Status:    StatusPending,
		CreatedAt: s.now().Unix(),
	}
	s.put(ctx, job)
	return job, nil
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (AuditJob, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, jobKey(id)).Result()
		switch {
		case err == nil:
			var job AuditJob
			if uerr := json.Unmarshal([]byte(raw), &job); uerr == nil {
				return job, nil
			}
			s.log.Error("corrupt job record in redis", "job_id", id)
		case !errors.Is(err, redis.Nil):
			s.log.Warn("redis get failed, trying fallback", "job_id", id, "error", err)
		}
	}
	return s.fallback.GetJob(ctx, id)
}

func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return s.update(ctx, id, func(job *AuditJob) {
		job.Status = status
	})
}

func (s *RedisStore) SetResult(ctx context.Context, id string, result *report.Report) error {
	return s.update(ctx, id, func(job *AuditJob) {
		now := s.now().Unix()
		job.Status = StatusCompleted
		job.CompletedAt = &now
		job.Result = result
	})
}

func (s *RedisStore) SetError(ctx context.Context, id string, message string) error {
	return s.update(ctx, id, func(job *AuditJob) {
		now := s.now().Unix()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = message
	})
}

func (s *RedisStore) update(ctx context.Context, id string, apply func(*AuditJob)) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	apply(&job)
	s.put(ctx, job)
	return nil
}

// put writes the job to Redis and mirrors it to the fallback on any failure.
// The fallback copy keeps the job reachable for the rest of the process
// lifetime even when Redis drops mid-audit.
func (s *RedisStore) put(ctx context.Context, job AuditJob) {
	if s.rdb == nil {
		s.storeFallback(job)
		return
	}
	raw, err := json.Marshal(job)
	if err != nil {
		s.log.Error("serialize job", "job_id", job.ID, "error", err)
		s.storeFallback(job)
		return
	}
	if err := s.rdb.Set(ctx, jobKey(job.ID), raw, JobTTL).Err(); err != nil {
		s.log.Warn("redis set failed, keeping job in memory", "job_id", job.ID, "error", err)
		s.storeFallback(job)
	}
}

func (s *RedisStore) storeFallback(job AuditJob) {
	s.fallback.mu.Lock()
	s.fallback.jobs[job.ID] = job
	s.fallback.mu.Unlock()
}
