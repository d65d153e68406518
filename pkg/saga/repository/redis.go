// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/innovationmech/sagakit/pkg/saga"
)

// Redis key naming conventions
const (
	// sagaKeyPattern is the pattern for execution context keys: {prefix}saga:{sagaID}
	sagaKeyPattern = "%ssaga:%s"

	// stateIndexKeyPattern is the pattern for indexing sagas by state: {prefix}index:state:{state}
	stateIndexKeyPattern = "%sindex:state:%s"

	// correlationIndexKeyPattern is the pattern for indexing sagas by correlation ID: {prefix}index:correlation:{id}
	correlationIndexKeyPattern = "%sindex:correlation:%s"

	// timeoutKeyPattern is the pattern for the timeout sorted set: {prefix}timeout
	timeoutKeyPattern = "%stimeout"
)

// RedisConfig configures the Redis-backed repository.
type RedisConfig struct {
	// Addrs lists the Redis endpoints. A single address selects standalone
	// mode; multiple addresses select cluster mode.
	Addrs []string

	// Password authenticates the connection. Optional.
	Password string

	// DB selects the logical database in standalone mode.
	DB int

	// KeyPrefix namespaces every key written by this repository.
	KeyPrefix string

	// DialTimeout bounds connection establishment. Defaults to 5s.
	DialTimeout time.Duration
}

// Validate checks the configuration and applies defaults.
func (c *RedisConfig) Validate() error {
	if len(c.Addrs) == 0 {
		return saga.NewValidationError("redis config requires at least one address")
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return nil
}

// RedisRepository is a Redis-backed SagaRepository suitable for deployments
// where several orchestrator instances share the saga store.
//
// Key design:
//   - Execution contexts: {prefix}saga:{sagaID} (JSON)
//   - State index: {prefix}index:state:{state} (set of saga IDs)
//   - Correlation index: {prefix}index:correlation:{id} (set of saga IDs)
//   - Timeout index: {prefix}timeout (sorted set scored by deadline)
//
// Save runs under WATCH on the saga key, so the optimistic version check and
// the write are atomic even across processes.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRepository connects to Redis and verifies connectivity with a ping.
func NewRedisRepository(config *RedisConfig) (*RedisRepository, error) {
	if config == nil {
		return nil, saga.NewValidationError("redis config must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       config.Addrs,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisRepository{client: client, prefix: config.KeyPrefix}, nil
}

// NewRedisRepositoryWithClient wraps an existing client. The caller keeps
// ownership of the client's lifecycle. Intended for tests and callers that
// manage pooling themselves.
func NewRedisRepositoryWithClient(client redis.UniversalClient, keyPrefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: keyPrefix}
}

// Save upserts the context under WATCH so that the version comparison and the
// write form one atomic step. A concurrent writer that commits first causes
// either ErrStaleContext (version already ahead) or a transaction retry.
func (r *RedisRepository) Save(ctx context.Context, ec *saga.ExecutionContext) error {
	if ec == nil {
		return saga.NewValidationError("execution context must not be nil")
	}
	if ec.SagaID == "" {
		return saga.NewValidationError("execution context has no saga ID")
	}

	sagaKey := r.sagaKey(ec.SagaID)

	const maxTxRetries = 5
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, sagaKey).Result()
			var previous *saga.ExecutionContext
			switch {
			case err == redis.Nil:
				// First write for this saga.
			case err != nil:
				return err
			default:
				previous = &saga.ExecutionContext{}
				if err := json.Unmarshal([]byte(stored), previous); err != nil {
					return fmt.Errorf("failed to decode stored context: %w", err)
				}
				if ec.Version <= previous.Version {
					return saga.ErrStaleContext
				}
			}

			payload, err := json.Marshal(ec)
			if err != nil {
				return fmt.Errorf("failed to encode context: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, sagaKey, payload, 0)
				if previous != nil && previous.State != ec.State {
					pipe.SRem(ctx, r.stateIndexKey(previous.State), ec.SagaID)
				}
				pipe.SAdd(ctx, r.stateIndexKey(ec.State), ec.SagaID)
				if ec.CorrelationID != "" {
					pipe.SAdd(ctx, r.correlationIndexKey(ec.CorrelationID), ec.SagaID)
				}
				if ec.TimeoutAt != nil && ec.State.IsActive() {
					pipe.ZAdd(ctx, r.timeoutKey(), redis.Z{
						Score:  float64(ec.TimeoutAt.UnixMilli()),
						Member: ec.SagaID,
					})
				} else {
					pipe.ZRem(ctx, r.timeoutKey(), ec.SagaID)
				}
				return nil
			})
			return err
		}, sagaKey)

		if err == nil {
			return nil
		}
		if errors.Is(err, saga.ErrStaleContext) {
			return saga.ErrStaleContext
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return saga.NewStorageError("Save", err)
	}
	return saga.NewStorageError("Save", fmt.Errorf("transaction contention on saga %s", ec.SagaID))
}

// Load returns the context for the saga ID, or (nil, nil) when absent.
func (r *RedisRepository) Load(ctx context.Context, sagaID string) (*saga.ExecutionContext, error) {
	payload, err := r.client.Get(ctx, r.sagaKey(sagaID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, saga.NewStorageError("Load", err)
	}
	ec := &saga.ExecutionContext{}
	if err := json.Unmarshal([]byte(payload), ec); err != nil {
		return nil, saga.NewStorageError("Load", fmt.Errorf("failed to decode stored context: %w", err))
	}
	return ec, nil
}

// FindByCorrelationID resolves the correlation index set and loads each
// member. Index entries whose context is gone are skipped.
func (r *RedisRepository) FindByCorrelationID(ctx context.Context, correlationID string) ([]*saga.ExecutionContext, error) {
	ids, err := r.client.SMembers(ctx, r.correlationIndexKey(correlationID)).Result()
	if err != nil {
		return nil, saga.NewStorageError("FindByCorrelationID", err)
	}
	return r.loadAll(ctx, ids, nil)
}

// FindByState resolves the state index set and loads each member. The state
// is re-checked on load because index membership can lag a concurrent write.
func (r *RedisRepository) FindByState(ctx context.Context, state saga.SagaState) ([]*saga.ExecutionContext, error) {
	ids, err := r.client.SMembers(ctx, r.stateIndexKey(state)).Result()
	if err != nil {
		return nil, saga.NewStorageError("FindByState", err)
	}
	return r.loadAll(ctx, ids, func(ec *saga.ExecutionContext) bool {
		return ec.State == state
	})
}

// FindTimedOut queries the timeout sorted set for deadlines at or before now.
func (r *RedisRepository) FindTimedOut(ctx context.Context, now time.Time) ([]*saga.ExecutionContext, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.timeoutKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, saga.NewStorageError("FindTimedOut", err)
	}
	return r.loadAll(ctx, ids, func(ec *saga.ExecutionContext) bool {
		return ec.IsTimedOut(now)
	})
}

// Delete removes the context and all of its index entries. Deleting a missing
// context is not an error.
func (r *RedisRepository) Delete(ctx context.Context, sagaID string) error {
	ec, err := r.Load(ctx, sagaID)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.sagaKey(sagaID))
		pipe.ZRem(ctx, r.timeoutKey(), sagaID)
		if ec != nil {
			pipe.SRem(ctx, r.stateIndexKey(ec.State), sagaID)
			if ec.CorrelationID != "" {
				pipe.SRem(ctx, r.correlationIndexKey(ec.CorrelationID), sagaID)
			}
		}
		return nil
	})
	if err != nil {
		return saga.NewStorageError("Delete", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) loadAll(ctx context.Context, ids []string, keep func(*saga.ExecutionContext) bool) ([]*saga.ExecutionContext, error) {
	var out []*saga.ExecutionContext
	for _, id := range ids {
		ec, err := r.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if ec == nil {
			continue
		}
		if keep != nil && !keep(ec) {
			continue
		}
		out = append(out, ec)
	}
	return out, nil
}

func (r *RedisRepository) sagaKey(sagaID string) string {
	return fmt.Sprintf(sagaKeyPattern, r.prefix, sagaID)
}

func (r *RedisRepository) stateIndexKey(state saga.SagaState) string {
	return fmt.Sprintf(stateIndexKeyPattern, r.prefix, state.String())
}

func (r *RedisRepository) correlationIndexKey(correlationID string) string {
	return fmt.Sprintf(correlationIndexKeyPattern, r.prefix, correlationID)
}

func (r *RedisRepository) timeoutKey() string {
	return fmt.Sprintf(timeoutKeyPattern, r.prefix)
}
