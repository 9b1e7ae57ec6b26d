package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/technosurge/leadflow/config"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 会话存储
// =============================================================================

// RedisStore 以 JSON 保存会话，key 为前缀加会话 ID，每次保存刷新 TTL。
// 多实例部署时使用。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	owns   bool

	mu     sync.RWMutex
	closed bool
}

// NewRedisStore 连接 Redis 并验证可用
func NewRedisStore(rc config.RedisConfig, sc config.SessionConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewRedisStoreWithClient(client, sc, logger)
	s.owns = true
	s.logger.Info("redis session store ready", zap.String("addr", rc.Addr))
	return s, nil
}

// NewRedisStoreWithClient 使用已有客户端，Close 不会关闭它
func NewRedisStoreWithClient(client redis.UniversalClient, sc config.SessionConfig, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := sc.KeyPrefix
	if prefix == "" {
		prefix = config.DefaultSessionConfig().KeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    sc.TTL,
		logger: logger.With(zap.String("component", "session_store"), zap.String("backend", "redis")),
	}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

// Get 读取并解码会话
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	if err := r.checkOpen(); err != nil {
		return nil, false, err
	}
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error("session get failed", zap.String("session_id", id), zap.Error(err))
		return nil, false, fmt.Errorf("session get failed: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, true, nil
}

// Save 编码并写入，ttl 为 0 时不过期
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
		r.logger.Error("session save failed", zap.String("session_id", s.ID), zap.Error(err))
		return fmt.Errorf("session save failed: %w", err)
	}
	return nil
}

// Delete 删除会话
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("session delete failed: %w", err)
	}
	return nil
}

// Count 通过 SCAN 统计前缀下的 key 数量
func (r *RedisStore) Count(ctx context.Context) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("session count failed: %w", err)
	}
	return n, nil
}

// Ping 检查 Redis 连接
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}

// Close 标记关闭；客户端由本存储创建时一并关闭
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.owns {
		return r.client.Close()
	}
	return nil
}

func (r *RedisStore) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}
