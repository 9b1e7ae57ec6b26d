package tokenizer

import (
	"unicode"
	"unicode/utf8"
)

// Estimator 基于字符数的 token 估算器，区分 CJK 与 ASCII 字符
type Estimator struct{}

// NewEstimator 创建估算器
func NewEstimator() *Estimator { return &Estimator{} }

// CountTokens CJK 约 1.5 字符/token，其余约 4 字符/token
func (Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if n == 0 {
		n = 1
	}
	return n
}

// Name 实现 Counter
func (Estimator) Name() string { return "estimator" }
