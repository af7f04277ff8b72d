package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/winescan-backend/internal/domain/scan"
	"github.com/yungbote/winescan-backend/internal/pkg/logger"
	"github.com/yungbote/winescan-backend/internal/platform/envutil"
)

// StorageError wraps every store failure so callers can log and discard it
// explicitly. Store writes are best-effort by contract: they degrade the
// pipeline, never abort it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("job store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// JobStore is the durable key-value document record of a job's status and
// result, addressable by job id. Writes are idempotent upserts.
type JobStore interface {
	// Put upserts the whole document. A nil return means the write landed.
	Put(ctx context.Context, job *scan.Job) *StorageError
	// Get returns (nil, nil) when the key is absent or expired.
	Get(ctx context.Context, id string) (*scan.Job, *StorageError)
	Close() error
}

type jobStore struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func New(log *logger.Logger) (JobStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &jobStore{
		log:    log.With("service", "JobStore"),
		rdb:    rdb,
		prefix: envutil.String("JOB_KEY_PREFIX", "scanjob:"),
		// Expiry is a retention concern, not a pipeline one; the pipeline
		// itself never deletes a job.
		ttl: envutil.Duration("JOB_TTL", 24*time.Hour),
	}, nil
}

// Degraded returns a store whose every operation fails with a StorageError.
// Used when redis is unreachable at boot: jobs still run, writes are logged
// and discarded, and pollers read not_found until redis comes back and the
// process restarts.
func Degraded(log *logger.Logger) JobStore {
	return &jobStore{log: log.With("service", "JobStore")}
}

func (s *jobStore) key(id string) string {
	return s.prefix + id
}

func (s *jobStore) Put(ctx context.Context, job *scan.Job) *StorageError {
	if s == nil || s.rdb == nil {
		return &StorageError{Op: "put", Err: fmt.Errorf("store not initialized")}
	}
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return &StorageError{Op: "put", Err: fmt.Errorf("job id required")}
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.rdb.Set(ctx, s.key(job.ID), raw, s.ttl).Err(); err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	return nil
}

func (s *jobStore) Get(ctx context.Context, id string) (*scan.Job, *StorageError) {
	if s == nil || s.rdb == nil {
		return nil, &StorageError{Op: "get", Err: fmt.Errorf("store not initialized")}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, &StorageError{Op: "get", Err: err}
	}
	var job scan.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	return &job, nil
}

func (s *jobStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
