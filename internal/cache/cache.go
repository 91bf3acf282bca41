// Package cache keeps persisted job results in Redis in front of PostgreSQL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/research-crew/internal/config"
	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/cuongbtq/research-crew/internal/storage"
)

// Backend is the durable store the cache sits in front of.
type Backend interface {
	jobs.DurableStore
	GetResult(ctx context.Context, jobID string) (*storage.ResultRow, error)
}

// ResultStore reads results through Redis and invalidates them on write.
// Job status writes pass straight through to the backend. With a nil client
// every call goes to the backend.
type ResultStore struct {
	Backend

	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewClient connects to Redis, or returns nil when no address is configured.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func NewResultStore(backend Backend, client *redis.Client, cfg config.RedisConfig, logger *slog.Logger) *ResultStore {
	ttl := cfg.ResultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "job-result:"
	}
	return &ResultStore{
		Backend: backend,
		client:  client,
		ttl:     ttl,
		prefix:  prefix,
		logger:  logger,
	}
}

func (s *ResultStore) key(jobID string) string {
	return s.prefix + jobID
}

// GetResult serves a cached row when present, otherwise loads it from the
// backend and caches it. Redis failures fall back to the backend.
func (s *ResultStore) GetResult(ctx context.Context, jobID string) (*storage.ResultRow, error) {
	if s.client == nil {
		return s.Backend.GetResult(ctx, jobID)
	}

	key := s.key(jobID)
	cached, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var row storage.ResultRow
		jsonErr := json.Unmarshal(cached, &row)
		if jsonErr == nil {
			return &row, nil
		}
		s.logger.Warn("Discarding undecodable cached result",
			slog.String("job_id", jobID),
			slog.String("error", jsonErr.Error()),
		)
	case errors.Is(err, redis.Nil):
	default:
		s.logger.Warn("Result cache read failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	row, err := s.Backend.GetResult(ctx, jobID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(row)
	if err != nil {
		return row, nil
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.logger.Warn("Result cache write failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
	return row, nil
}

// StoreResult writes the backend first, then drops any cached copy.
func (s *ResultStore) StoreResult(ctx context.Context, jobID string, result jobs.Result) error {
	if err := s.Backend.StoreResult(ctx, jobID, result); err != nil {
		return err
	}

	if s.client != nil {
		if err := s.client.Del(ctx, s.key(jobID)).Err(); err != nil {
			s.logger.Warn("Result cache invalidation failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
