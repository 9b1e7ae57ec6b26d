package emailagent

import "fmt"

// FallbackSubject 模型不可用时使用的主题
const FallbackSubject = "Let’s Talk About AI Automation"

const fallbackBodyFormat = "Hi %s,\n\nI’d love to show you how Technosurge can help with automation and AI solutions. " +
	"Would you like to schedule a free demo?\n\nBest regards,\nTechnosurge Team"

const emailPromptFormat = `Write a professional marketing email for Technosurge, an AI agency that offers automation and voice AI services.
The lead's name is %s.
Their interest summary is: "%s".

Guidelines:
- Friendly and professional tone
- Mention their specific interest from the summary
- Suggest booking a free demo or consultation
- Keep email under 200 words
- Return only subject and body in JSON format:
  {"subject": "subject line", "body": "email body"}`

func emailPrompt(name, summary string) string {
	return fmt.Sprintf(emailPromptFormat, name, summary)
}

// FallbackDraft 返回固定的兜底邮件
func FallbackDraft(name string) Draft {
	return Draft{Subject: FallbackSubject, Body: fmt.Sprintf(fallbackBodyFormat, name)}
}
