// Package redis stores notification details in Redis, one JSON value per user.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/store"
)

// DefaultPrefix namespaces the keys written by the store.
const DefaultPrefix = "frame:notifications:"

// Store is a Redis-backed notification store.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

var _ store.NotificationStore = (*Store)(nil)

// New creates a store using client.
func New(client goredis.UniversalClient) *Store {
	return &Store{client: client, prefix: DefaultPrefix}
}

// Open parses a redis:// URL, connects and pings the server.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(fid int64) string {
	return s.prefix + strconv.FormatInt(fid, 10)
}

func (s *Store) Save(ctx context.Context, fid int64, details frame.NotificationDetails) error {
	rec := store.Record{
		FID:       fid,
		URL:       details.URL,
		Token:     details.Token,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(fid), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, fid int64) (store.Record, error) {
	data, err := s.client.Get(ctx, s.key(fid)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("redis get: %w", err)
	}
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return store.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, fid int64) error {
	if err := s.client.Del(ctx, s.key(fid)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}
