/*
Package testutil 提供 LeadFlow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 对话构造: Conversation 按 user / assistant 交替生成消息

# 子包

  - testutil/mocks: MockProvider（LLM Provider，按调用用途路由响应）、
    MockLeadStore（线索存储）、MockMailer（发信），均支持 Builder 模式与错误注入
  - testutil/fixtures: 模型 JSON 输出与线索样例

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().
	    WithPurposeResponse("extract", fixtures.ExtractionJSON("Ana", "ana@example.com", false))
*/
package testutil
