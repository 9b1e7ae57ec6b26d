// =============================================================================
// 📇 MockLeadStore - 线索存储模拟实现
// =============================================================================
// 内存中的线索表，按写入顺序保存，邮箱匹配忽略大小写并取第一条
//
// 使用方法:
//
//	store := mocks.NewMockLeadStore().WithLeads(types.Lead{Name: "Ana", Email: "ana@x.io"})
//	lead, err := store.FindByEmail(ctx, "ana@x.io")
// =============================================================================
package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/technosurge/leadflow/internal/leadstore"
	"github.com/technosurge/leadflow/types"
)

// MockLeadStore 是 leadstore.Store 的模拟实现
type MockLeadStore struct {
	mu sync.RWMutex

	leads []types.Lead

	// 错误注入
	appendErr error
	updateErr error
	listErr   error

	// 调用记录
	appendCalls int
	updates     []StatusUpdate
}

// StatusUpdate 记录一次状态更新
type StatusUpdate struct {
	Email  string
	Status types.LeadStatus
}

// NewMockLeadStore 创建新的 MockLeadStore
func NewMockLeadStore() *MockLeadStore {
	return &MockLeadStore{}
}

// WithLeads 预置线索
func (m *MockLeadStore) WithLeads(leads ...types.Lead) *MockLeadStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads = append(m.leads, leads...)
	return m
}

// WithAppendError 设置 Append 错误
func (m *MockLeadStore) WithAppendError(err error) *MockLeadStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
	return m
}

// WithUpdateError 设置 UpdateStatus 错误
func (m *MockLeadStore) WithUpdateError(err error) *MockLeadStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
	return m
}

// WithListError 设置 List 错误
func (m *MockLeadStore) WithListError(err error) *MockLeadStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	return m
}

// Append 实现 leadstore.Store
func (m *MockLeadStore) Append(_ context.Context, lead types.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	m.leads = append(m.leads, lead.Normalize())
	return nil
}

func (m *MockLeadStore) indexOf(email string) int {
	want := strings.ToLower(strings.TrimSpace(email))
	for i, l := range m.leads {
		if strings.ToLower(l.Email) == want {
			return i
		}
	}
	return -1
}

// FindByEmail 实现 leadstore.Store
func (m *MockLeadStore) FindByEmail(_ context.Context, email string) (*types.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexOf(email)
	if i < 0 {
		return nil, leadstore.ErrNotFound
	}
	l := m.leads[i]
	return &l, nil
}

// UpdateStatus 实现 leadstore.Store
func (m *MockLeadStore) UpdateStatus(_ context.Context, email string, status types.LeadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, StatusUpdate{Email: email, Status: status})
	if m.updateErr != nil {
		return m.updateErr
	}
	i := m.indexOf(email)
	if i < 0 {
		return leadstore.ErrNotFound
	}
	m.leads[i].Status = status
	return nil
}

// List 实现 leadstore.Store
func (m *MockLeadStore) List(context.Context) ([]types.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]types.Lead(nil), m.leads...), nil
}

// Backend 实现 leadstore.Store
func (m *MockLeadStore) Backend() string { return "mock" }

// Leads 返回当前线索副本
func (m *MockLeadStore) Leads() []types.Lead {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Lead(nil), m.leads...)
}

// AppendCalls 返回 Append 调用次数
func (m *MockLeadStore) AppendCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appendCalls
}

// Updates 返回状态更新记录
func (m *MockLeadStore) Updates() []StatusUpdate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StatusUpdate(nil), m.updates...)
}
