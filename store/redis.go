package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisEditRetries = 4

// RedisStore keeps the state as a single JSON value in Redis. Edits use an
// optimistic WATCH transaction retried on contention, so concurrent
// processes sharing one store see read-modify-write atomicity per edit.
type RedisStore struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisStore creates a store under the given key prefix
// ("vapor" when empty).
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "vapor"
	}
	return &RedisStore{
		redis: client,
		key:   prefix + ":accounts",
	}
}

// GetAccount returns a copy of the named account record.
func (r *RedisStore) GetAccount(ctx context.Context, name string) (*Record, error) {
	st, err := r.loadState(ctx, r.redis)
	if err != nil {
		return nil, err
	}
	return getAccount(st, name)
}

// AddAccount creates a record for a never-seen account name.
func (r *RedisStore) AddAccount(ctx context.Context, name string, rec Record) error {
	return r.Edit(ctx, func(st *State) error {
		if _, ok := st.Accounts[name]; ok {
			return ErrAccountExists
		}
		rec.Name = ""
		st.Accounts[name] = rec
		return nil
	})
}

// MainAccount returns the currently active account.
func (r *RedisStore) MainAccount(ctx context.Context) (*Record, error) {
	st, err := r.loadState(ctx, r.redis)
	if err != nil {
		return nil, err
	}
	return mainAccount(st)
}

// SetMainAccount marks an existing account as active.
func (r *RedisStore) SetMainAccount(ctx context.Context, name string) error {
	return r.Edit(ctx, func(st *State) error {
		if _, ok := st.Accounts[name]; !ok {
			return ErrAccountNotFound
		}
		st.Main = name
		return nil
	})
}

// Edit applies fn under WATCH and writes the result back in a transaction.
// Contended edits retry; a transform error aborts without writing.
func (r *RedisStore) Edit(ctx context.Context, fn func(*State) error) error {
	for i := 0; i < redisEditRetries; i++ {
		err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
			st, err := r.loadState(ctx, tx)
			if err != nil {
				return err
			}
			if err := fn(st); err != nil {
				return err
			}
			encoded, err := json.Marshal(st)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, r.key, encoded, 0)
				return nil
			})
			return err
		}, r.key)

		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: edit contention", ErrUnavailable)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) loadState(ctx context.Context, c redisGetter) (*State, error) {
	st := &State{}
	data, err := c.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			st.init()
			return st, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("%w: corrupt store: %v", ErrUnavailable, err)
	}
	st.init()
	return st, nil
}
