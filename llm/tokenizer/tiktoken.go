package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tiktoken OpenAI 系模型的精确计数器。
// 编码表在首次使用时加载（可能需要下载），失败时退回 Estimator。
type Tiktoken struct {
	encoding string
	logger   *zap.Logger

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback Counter
}

// EncodingForModel 返回模型对应的 tiktoken 编码
func EncodingForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

// NewTiktoken 为指定模型创建计数器
func NewTiktoken(model string, logger *zap.Logger) *Tiktoken {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiktoken{
		encoding: EncodingForModel(model),
		logger:   logger.With(zap.String("component", "tokenizer")),
		fallback: NewEstimator(),
	}
}

func (t *Tiktoken) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.logger.Warn("tiktoken unavailable, falling back to estimator",
				zap.String("encoding", t.encoding),
				zap.Error(err),
			)
			return
		}
		t.enc = enc
	})
}

// CountTokens 实现 Counter
func (t *Tiktoken) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	t.init()
	if t.enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Name 实现 Counter
func (t *Tiktoken) Name() string { return "tiktoken:" + t.encoding }
