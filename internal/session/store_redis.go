package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-relay-bot/internal/domain"
	"github.com/park285/chess-relay-bot/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultSessionTTL = time.Hour

// RedisStore keeps entries in Redis under a namespace unique to this process,
// so a restarted bot starts with an empty session map like the in-memory store.
// Keys carry a TTL that a keep-alive loop refreshes every ttl/3 while the store
// is open; after a crash the namespace expires on its own.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration

	stop      chan struct{}
	stopOnce  sync.Once
	keepAlive sync.WaitGroup
}

type RedisOption func(*RedisStore)

func WithSessionTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// NewRedisStore starts the keep-alive loop; Close stops it.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:       rdb,
		namespace: "relay:" + uuid.NewString(),
		ttl:       DefaultSessionTTL,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.keepAlive.Add(1)
	go s.keepAliveLoop()
	return s
}

// OpenRedisStore parses a redis:// URL and pings the server.
func OpenRedisStore(ctx context.Context, redisURL string, opts ...RedisOption) (*RedisStore, error) {
	ropts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, opts...), nil
}

func (s *RedisStore) Namespace() string { return s.namespace }

func (s *RedisStore) TTL() time.Duration { return s.ttl }

func (s *RedisStore) keyEntry(chatUserID string) string {
	return s.namespace + ":session:" + strings.TrimSpace(chatUserID)
}

func (s *RedisStore) Put(ctx context.Context, entry domain.SessionEntry) error {
	key := strings.TrimSpace(entry.ChatUserID)
	if key == "" {
		return ErrInvalidEntry
	}
	entry.ChatUserID = key
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyEntry(key), raw, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, chatUserID string) (*domain.SessionEntry, error) {
	raw, err := s.rdb.Get(ctx, s.keyEntry(chatUserID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry domain.SessionEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", chatUserID, err)
	}
	return &entry, nil
}

func (s *RedisStore) namespaceKeys(ctx context.Context) ([]string, error) {
	iter := s.rdb.Scan(ctx, 0, s.namespace+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// refresh pushes the expiry of every key in the namespace back to ttl.
func (s *RedisStore) refresh(ctx context.Context) error {
	keys, err := s.namespaceKeys(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	pipe := s.rdb.Pipeline()
	for _, k := range keys {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) keepAliveLoop() {
	defer s.keepAlive.Done()
	t := time.NewTicker(s.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.refresh(ctx); err != nil {
				obslog.L().Warn("session_ttl_refresh_failed", zap.String("namespace", s.namespace), zap.Error(err))
			}
			cancel()
		}
	}
}

// Close stops the keep-alive loop, drops this process' namespace and closes the client.
func (s *RedisStore) Close(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stop) })
	s.keepAlive.Wait()
	if keys, err := s.namespaceKeys(ctx); err == nil && len(keys) > 0 {
		_ = s.rdb.Del(ctx, keys...).Err()
	}
	return s.rdb.Close()
}
