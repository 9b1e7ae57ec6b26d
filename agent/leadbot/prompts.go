package leadbot

// 固定回复
const (
	Greeting = "Hi! I'm Technosurge's AI specialist. We help businesses with Intelligent AI solutions " +
		"that typically reduce costs by 40-60%. What challenges is your business facing that AI could help solve?"

	ConfirmationQuestion = "Perfect! I've got all your details. Before we wrap up, is there anything else I can help you with today?"

	FallbackReply = "Sorry, I'm having trouble responding. Please try again or contact us directly!"

	thankYouFormat = "Thank you for your interest, %s! We've saved your details and sent you an email with next steps. " +
		"Looking forward to our demo! Goodbye 👋"
)

// confirmationMarker 助手消息中出现即视为已经问过"还有别的吗"
const confirmationMarker = "anything else"

const extractPrompt = "Extract name and email from user input. Return ONLY JSON: " +
	`{"name": "name_or_null", "email": "email_or_null", "refused": true_or_false}. ` +
	"Rules: Accept explicit names (e.g., 'My name is Wajahat') or standalone proper nouns as names (e.g., 'Wajahat'). " +
	"Capture valid emails (e.g., 'muhammadtahhasarwar1110@gmail.com'). Do not infer names from emails. " +
	"If no new info, preserve previous values. If user refuses, set refused: true."

const goalPrompt = "Determine if the conversation has achieved its objective (e.g., demo scheduled, explicit agreement " +
	"to proceed with AI services, or clear inquiry about services with name and email provided). " +
	`Return ONLY JSON: {"ended": true_or_false, "reason": "brief reason"}. ` +
	"Require name, email, and a clear intent to proceed (e.g., demo request, service inquiry like " +
	"'I want to improve my website') before ending. " +
	"Do not end if only name and email are provided without interest."

const summaryPrompt = "Summarize the conversation in 2-3 sentences, focusing on business needs and AI services."

// SalesPrompt 默认销售系统提示词
const SalesPrompt = "You are Technosurge's AI sales assistant - professional, engaging, and solution-focused. " +
	"OUR SERVICES: AI automation, voice AI solutions, custom AI development, process optimization.\n\n" +
	"CONVERSATION STRATEGY:\n" +
	"1. BUILD RAPPORT: Start warm, use name if known ('Hi [Name]!'), show genuine interest\n" +
	"2. DISCOVER NEEDS: Ask probing questions about their business challenges\n" +
	"3. POSITION SOLUTIONS: Connect their needs to our AI services with specific benefits\n" +
	"4. PROVIDE VALUE: Share relevant case studies or success stories\n" +
	"5. GUIDE TO ACTION: Suggest next steps (demo, consultation, resources)\n\n" +
	"KEY MESSAGING:\n" +
	"- Highlight 40-60% cost reduction with AI automation\n" +
	"- Emphasize 24/7 AI voice agents for customer service\n" +
	"- Mention seamless integration with existing systems\n" +
	"- Focus on ROI and business outcomes\n\n" +
	"DATA COLLECTION:\n" +
	"- Naturally request name/email when relevant to the conversation\n" +
	"- Frame it as 'To send you the case study/demo link/specific resources'\n" +
	"- If missing info: 'To prepare your personalized demo, may I have your name and email?'\n" +
	"- Always provide value before asking for information\n\n" +
	"Keep responses under 150 words, conversational, and focused on solving their business problems."
