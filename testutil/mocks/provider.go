// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按调用用途（Purpose）路由响应与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/technosurge/leadflow/llm"
	"github.com/technosurge/leadflow/types"
)

// --- MockProvider 结构 ---

// MockProvider 是 LLM Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	response  string
	byPurpose map[string][]string
	err       error
	errByPurp map[string]error

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "Mock response",
		byPurpose:        make(map[string][]string),
		errByPurp:        make(map[string]error),
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse 设置默认响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithPurposeResponse 为指定用途排队响应；队列只剩一个时重复使用
func (m *MockProvider) WithPurposeResponse(purpose string, responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPurpose[purpose] = append(m.byPurpose[purpose], responses...)
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithPurposeError 指定用途的调用返回错误
func (m *MockProvider) WithPurposeError(purpose string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errByPurp[purpose] = err
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- llm.Provider 接口实现 ---

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	delay := m.delay
	fn := m.completionFunc
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		}
	}

	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	content, err := m.next(req.Purpose, count)
	if err != nil {
		m.record(req, nil, err)
		return nil, err
	}

	m.mu.RLock()
	resp := &llm.ChatResponse{
		ID:       "mock-response",
		Provider: "mock",
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      types.NewAssistantMessage(content),
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}
	m.mu.RUnlock()

	m.record(req, resp, nil)
	return resp, nil
}

func (m *MockProvider) next(purpose string, count int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAfter > 0 && count > m.failAfter {
		return "", errors.New("mock provider: fail after limit reached")
	}
	if err, ok := m.errByPurp[purpose]; ok {
		return "", err
	}
	if m.err != nil {
		return "", m.err
	}
	if queue := m.byPurpose[purpose]; len(queue) > 0 {
		content := queue[0]
		if len(queue) > 1 {
			m.byPurpose[purpose] = queue[1:]
		}
		return content, nil
	}
	return m.response, nil
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
}

// HealthCheck 实现 llm.Provider
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return &llm.HealthStatus{Healthy: false}, m.err
	}
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

// Name 实现 llm.Provider
func (m *MockProvider) Name() string { return "mock" }

// --- 调用检查 ---

// Calls 返回调用记录副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall(nil), m.calls...)
}

// CallsFor 返回指定用途的调用记录
func (m *MockProvider) CallsFor(purpose string) []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MockProviderCall
	for _, c := range m.calls {
		if c.Request.Purpose == purpose {
			out = append(out, c)
		}
	}
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// Reset 清空调用记录与计数
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}
