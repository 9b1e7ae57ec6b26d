package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore 进程内会话存储，默认后端。进程重启后会话丢失。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger

	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewMemoryStore ttl > 0 时启动后台清理，过期判断基于 UpdatedAt
func NewMemoryStore(ttl time.Duration, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "session_store"), zap.String("backend", "memory")),
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		m.wg.Add(1)
		go m.sweepLoop(sweepInterval(ttl))
	}
	return m
}

func sweepInterval(ttl time.Duration) time.Duration {
	iv := ttl / 2
	if iv < time.Minute {
		iv = time.Minute
	}
	if iv > 30*time.Minute {
		iv = 30 * time.Minute
	}
	return iv
}

// Get 返回副本，过期会话视为不存在
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	s, ok := m.sessions[id]
	if !ok || m.expired(s) {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

// Save 保存副本
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	c := s.Clone()
	c.UpdatedAt = m.now().UTC()
	m.sessions[s.ID] = c
	return nil
}

// Delete 删除会话，不存在时无操作
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.sessions, id)
	return nil
}

// Count 返回当前会话数（包含尚未清理的过期会话）
func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// Close 停止清理协程
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *MemoryStore) expired(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl
}

// sweep 删除过期会话，返回删除数量
func (m *MemoryStore) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *MemoryStore) sweepLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Debug("expired sessions removed", zap.Int("count", n))
			}
		}
	}
}
