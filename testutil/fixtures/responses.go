// =============================================================================
// 📦 测试数据工厂 - LLM 响应与线索
// =============================================================================
// 提供 LeadBot / EmailAgent 各调用用途的预置模型输出
// =============================================================================
package fixtures

import (
	"fmt"

	"github.com/technosurge/leadflow/types"
)

// =============================================================================
// 🎯 模型 JSON 输出
// =============================================================================

// ExtractionJSON 线索抽取输出，空字符串写成 null
func ExtractionJSON(name, email string, refused bool) string {
	return fmt.Sprintf(`{"name": %s, "email": %s, "refused": %t}`, jsonOrNull(name), jsonOrNull(email), refused)
}

// GoalJSON 目标检测输出
func GoalJSON(ended bool, reason string) string {
	return fmt.Sprintf(`{"ended": %t, "reason": %q}`, ended, reason)
}

// EmailJSON 邮件生成输出
func EmailJSON(subject, body string) string {
	return fmt.Sprintf(`{"subject": %q, "body": %q}`, subject, body)
}

// FencedJSON 包在 markdown 代码块里的 JSON，模拟模型常见输出
func FencedJSON(raw string) string {
	return "```json\n" + raw + "\n```"
}

func jsonOrNull(s string) string {
	if s == "" {
		return "null"
	}
	return fmt.Sprintf("%q", s)
}

// =============================================================================
// 👤 线索
// =============================================================================

// Lead 返回一条带邮箱的线索
func Lead(name, email string) types.Lead {
	return types.Lead{Name: name, Email: email, Summary: "Interested in AI voice agents for customer support."}
}

// Leads 批量营销用的线索，包含一条无邮箱记录
func Leads() []types.Lead {
	return []types.Lead{
		Lead("Ana", "ana@example.com"),
		Lead("Bo", "bo@example.com"),
		{Name: "Unknown", Email: types.NullEmail, Summary: "No input yet"},
		Lead("Cy", "cy@example.com"),
	}
}
