package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisKV keeps the local profile in Redis strings under a key prefix.
// Every write is published on <prefix>changes for other handles.
type RedisKV struct {
	client *RedisClient
	prefix string
	origin uuid.UUID
	logger *log.Logger
	owner  bool
}

// NewRedisKV creates a KV on client; Close closes the client
func NewRedisKV(client *RedisClient, prefix string, logger *log.Logger) *RedisKV {
	return &RedisKV{
		client: client,
		prefix: prefix,
		origin: uuid.New(),
		logger: logger.WithPrefix("rediskv"),
		owner:  true,
	}
}

// Attach returns another handle on the same client with its own origin
func (r *RedisKV) Attach() *RedisKV {
	return &RedisKV{client: r.client, prefix: r.prefix, origin: uuid.New(), logger: r.logger}
}

// Origin identifies writes made through this handle
func (r *RedisKV) Origin() uuid.UUID {
	return r.origin
}

func (r *RedisKV) key(key string) string {
	return r.prefix + key
}

func (r *RedisKV) channel() string {
	return r.prefix + "changes"
}

// Get returns the stored value for key
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value and publishes the change in one transaction
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	payload, err := json.Marshal(changeNotice{Key: key, Origin: r.origin})
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(key), value, 0)
	pipe.Publish(ctx, r.channel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key and publishes the removal
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if n == 0 {
		return nil
	}

	payload, err := json.Marshal(changeNotice{Key: key, Origin: r.origin, Deleted: true})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel(), payload).Err(); err != nil {
		return fmt.Errorf("publish delete %s: %w", key, err)
	}
	return nil
}

// Watch subscribes to the change channel until ctx is done
func (r *RedisKV) Watch(ctx context.Context) (<-chan Change, error) {
	sub := r.client.Subscribe(ctx, r.channel())
	// Wait for the subscription to be confirmed so no write after Watch is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			var msg *redis.Message
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				msg = m
			}

			var notice changeNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				r.logger.Warn("ignoring malformed change message", "payload", msg.Payload, "err", err)
				continue
			}
			if notice.Origin == r.origin {
				continue
			}

			change := Change{Key: notice.Key, Deleted: notice.Deleted, Origin: notice.Origin}
			if !notice.Deleted {
				value, err := r.Get(ctx, notice.Key)
				if errors.Is(err, ErrKeyNotFound) {
					change.Deleted = true
				} else if err != nil {
					r.logger.Warn("failed to load changed key", "key", notice.Key, "err", err)
					continue
				}
				change.Value = value
			}

			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Health pings redis
func (r *RedisKV) Health(ctx context.Context) error {
	return r.client.Health(ctx)
}

// Close closes the client when called on the handle that created it
func (r *RedisKV) Close() error {
	if !r.owner {
		return nil
	}
	return r.client.Close()
}
