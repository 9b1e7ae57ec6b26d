// Package session stores per-visitor chat state between requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

// ErrClosed 存储已关闭
var ErrClosed = errors.New("session store is closed")

// Session 一个访客会话的对话与线索状态
type Session struct {
	ID        string          `json:"id"`
	Messages  []types.Message `json:"messages"`
	Lead      types.Lead      `json:"lead"`
	Ended     bool            `json:"ended"`
	EmailSent bool            `json:"email_sent,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New 创建一个带占位线索的新会话
func New(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Lead:      types.NewUnknownLead(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append 追加消息并刷新更新时间
func (s *Session) Append(msgs ...types.Message) {
	s.Messages = append(s.Messages, msgs...)
	s.UpdatedAt = time.Now().UTC()
}

// Clone 深拷贝消息切片，避免调用方修改存储内的状态
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = append([]types.Message(nil), s.Messages...)
	return &c
}

// Store 会话存储
type Store interface {
	// Get 返回会话副本；不存在时 ok 为 false
	Get(ctx context.Context, id string) (*Session, bool, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Count 当前保存的会话数，用于指标
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open 按配置选择后端
func Open(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Session.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.Session.TTL, logger), nil
	case "redis":
		return NewRedisStore(cfg.Redis, cfg.Session, logger)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// =============================================================================
// 🔒 会话级互斥
// =============================================================================

// Locker 按会话 ID 串行化请求，同一会话的并发消息按到达顺序处理
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocker 创建 Locker
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*lockEntry)}
}

// Lock 获取会话锁，返回的函数用于释放。无人持有的锁会被回收。
func (l *Locker) Lock(id string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// size 仅测试使用
func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
