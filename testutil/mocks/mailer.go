// =============================================================================
// 📧 MockMailer - 发信模拟实现
// =============================================================================
package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/technosurge/leadflow/internal/mailer"
)

// MockMailer 记录发出的邮件，可按收件人注入失败
type MockMailer struct {
	mu sync.Mutex

	sent   []mailer.Message
	err    error
	failTo map[string]error
}

// NewMockMailer 创建新的 MockMailer
func NewMockMailer() *MockMailer {
	return &MockMailer{failTo: make(map[string]error)}
}

// WithError 所有发送都返回错误
func (m *MockMailer) WithError(err error) *MockMailer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFailureFor 指定收件人发送失败
func (m *MockMailer) WithFailureFor(to string, err error) *MockMailer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTo[strings.ToLower(to)] = err
	return m
}

// Send 实现 mailer.Mailer
func (m *MockMailer) Send(ctx context.Context, msg mailer.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failTo[strings.ToLower(msg.To)]; ok {
		return err
	}
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent 返回已发送邮件副本
func (m *MockMailer) Sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}
