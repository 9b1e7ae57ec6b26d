// =============================================================================
// LeadFlow OpenAI-Compatible Provider
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/technosurge/leadflow/internal/tlsutil"
	"github.com/technosurge/leadflow/llm"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider.
	ProviderName string

	// APIKey is sent as a Bearer token.
	APIKey string

	// BaseURL is the base URL for the API (e.g., "https://api.openai.com").
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// Timeout is the HTTP client timeout. Defaults to 30s if zero.
	Timeout time.Duration

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string

	// ModelsEndpoint defaults to "/v1/models".
	ModelsEndpoint string
}

// Provider talks to an OpenAI-compatible chat completions API.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(timeout),
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + path
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d msg=%s", p.Name(), resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: "messages must not be empty",
			HTTPStatus: http.StatusBadRequest, Provider: p.Name(),
		}
	}

	model := req.Model
	if model == "" {
		model = p.Cfg.DefaultModel
	}

	body := wireRequest{
		Model:     model,
		Messages:  make([]wireMessage, 0, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	if req.ResponseFormat != llm.FormatText {
		body.ResponseFormat = &wireResponseFormat{Type: string(req.ResponseFormat)}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &llm.Error{
				Code: llm.ErrUpstreamTimeout, Message: err.Error(),
				HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: p.Name(),
			}
		}
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), p.Name())
	}

	var oaResp wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	result := &llm.ChatResponse{
		ID:       oaResp.ID,
		Provider: p.Name(),
		Model:    oaResp.Model,
		Choices:  make([]llm.ChatChoice, 0, len(oaResp.Choices)),
	}
	for _, c := range oaResp.Choices {
		result.Choices = append(result.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      types.Message{Role: types.Role(c.Message.Role), Content: c.Message.Content},
		})
	}
	if oaResp.Usage != nil {
		result.Usage = llm.ChatUsage{
			PromptTokens:     oaResp.Usage.PromptTokens,
			CompletionTokens: oaResp.Usage.CompletionTokens,
			TotalTokens:      oaResp.Usage.TotalTokens,
		}
	}
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}

	p.Logger.Debug("completion finished",
		zap.String("model", result.Model),
		zap.String("purpose", req.Purpose),
		zap.Int("total_tokens", result.Usage.TotalTokens),
	)
	return result, nil
}

// mapHTTPError 将上游 HTTP 状态映射为 llm.Error
func mapHTTPError(status int, msg string, provider string) *llm.Error {
	e := &llm.Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch {
	case status == http.StatusUnauthorized:
		e.Code = llm.ErrUnauthorized
	case status == http.StatusForbidden:
		e.Code = llm.ErrForbidden
	case status == http.StatusTooManyRequests:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			e.Code = llm.ErrQuotaExceeded
		} else {
			e.Code = llm.ErrRateLimited
			e.Retryable = true
		}
	case status == http.StatusBadRequest:
		e.Code = llm.ErrInvalidRequest
	case status == 529 || status == http.StatusServiceUnavailable:
		e.Code = llm.ErrModelOverloaded
		e.Retryable = true
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		e.Code = llm.ErrUpstreamTimeout
		e.Retryable = true
	case status >= 500:
		e.Code = llm.ErrUpstreamError
		e.Retryable = true
	default:
		e.Code = llm.ErrUpstreamError
	}
	return e
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var errResp wireError
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}
