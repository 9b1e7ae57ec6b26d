package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON 从模型输出中解析 JSON 对象。
// 模型经常把 JSON 包在 ``` 代码块里，或在前后附带说明文字。
func DecodeJSON(content string, v any) error {
	raw := ExtractJSON(content)
	if raw == "" {
		return fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}

// ExtractJSON 返回文本中第一个 '{' 到最后一个 '}' 之间的内容
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
