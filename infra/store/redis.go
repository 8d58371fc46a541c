// Package store provides the redis-backed request store used when the
// engine must survive process restarts. All mutations go through optimistic
// transactions so the version CAS semantics match the in-memory store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldserv/matchd/core/model"
	corestore "github.com/fieldserv/matchd/core/store"
)

const (
	requestKeyPrefix = "matchd:request:"
	attemptKeyPrefix = "matchd:attempts:"
)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisStore implements store.RequestStore on top of redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Create(ctx context.Context, req model.Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, requestKeyPrefix+req.ID, b, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.Request, error) {
	b, err := s.rdb.Get(ctx, requestKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Request{}, corestore.ErrNotFound
	}
	if err != nil {
		return model.Request{}, err
	}
	var req model.Request
	if err := json.Unmarshal(b, &req); err != nil {
		return model.Request{}, err
	}
	return req, nil
}

func (s *RedisStore) List(ctx context.Context, f corestore.Filter) ([]model.Request, error) {
	var out []model.Request
	iter := s.rdb.Scan(ctx, 0, requestKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		b, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var req model.Request
		if err := json.Unmarshal(b, &req); err != nil {
			return nil, err
		}
		if f.Status != nil && req.Status != *f.Status {
			continue
		}
		if f.Open && req.Status.Terminal() {
			continue
		}
		out = append(out, req)
	}
	return out, iter.Err()
}

func (s *RedisStore) Update(ctx context.Context, id string, expectVersion int64, mutate func(*model.Request)) (model.Request, error) {
	key := requestKeyPrefix + id
	var updated model.Request
	txn := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return corestore.ErrNotFound
		}
		if err != nil {
			return err
		}
		var req model.Request
		if err := json.Unmarshal(b, &req); err != nil {
			return err
		}
		if req.Version != expectVersion {
			return corestore.ErrVersionMismatch
		}
		mutate(&req)
		req.Version = expectVersion + 1
		nb, err := json.Marshal(req)
		if err != nil {
			return err
		}
		updated = req
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, 0)
			return nil
		})
		return err
	}
	err := s.rdb.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Lost the optimistic lock; the caller re-reads and retries.
		return model.Request{}, corestore.ErrVersionMismatch
	}
	if err != nil {
		return model.Request{}, err
	}
	return updated, nil
}

func (s *RedisStore) AppendAttempt(ctx context.Context, att model.AssignmentAttempt) error {
	b, err := json.Marshal(att)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, attemptKeyPrefix+att.RequestID, b).Err()
}

func (s *RedisStore) Attempts(ctx context.Context, requestID string) ([]model.AssignmentAttempt, error) {
	vals, err := s.rdb.LRange(ctx, attemptKeyPrefix+requestID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.AssignmentAttempt, 0, len(vals))
	for _, v := range vals {
		var att model.AssignmentAttempt
		if err := json.Unmarshal([]byte(v), &att); err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, nil
}

func (s *RedisStore) SetAttemptOutcome(ctx context.Context, requestID, providerID string, outcome model.AttemptOutcome, respondedAt time.Time) error {
	key := attemptKeyPrefix + requestID
	txn := func(tx *redis.Tx) error {
		vals, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		for i := len(vals) - 1; i >= 0; i-- {
			var att model.AssignmentAttempt
			if err := json.Unmarshal([]byte(vals[i]), &att); err != nil {
				return err
			}
			if att.ProviderID != providerID || att.Outcome != model.AttemptPending {
				continue
			}
			att.Outcome = outcome
			at := respondedAt
			att.RespondedAt = &at
			b, err := json.Marshal(att)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LSet(ctx, key, int64(i), b)
				return nil
			})
			return err
		}
		return fmt.Errorf("no pending attempt for request %s provider %s", requestID, providerID)
	}
	return s.rdb.Watch(ctx, txn, key)
}
