package leadbot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/llm/tokenizer"
	"github.com/technosurge/leadflow/testutil"
	"github.com/technosurge/leadflow/testutil/fixtures"
	"github.com/technosurge/leadflow/testutil/mocks"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

func newTestBot(p *mocks.MockProvider, store *mocks.MockLeadStore) *Bot {
	cfg := config.DefaultAgentConfig()
	if store == nil {
		// 避免把 nil 指针装进接口
		return New(p, nil, cfg, zap.NewNop(), WithCounter(tokenizer.NewEstimator()))
	}
	return New(p, store, cfg, zap.NewNop(), WithCounter(tokenizer.NewEstimator()))
}

func TestDetectIntent(t *testing.T) {
	bot := newTestBot(mocks.NewMockProvider(), nil)

	tests := []struct {
		input string
		want  Intent
	}{
		{"Thanks, bye!", IntentEnd},
		{"That's all for today", IntentEnd},
		{"GOODBYE", IntentEnd},
		{"I need a chatbot for my clinic", IntentGeneral},
		{"", IntentGeneral},
		// 子串匹配："recommend" 含 "end"
		{"what do you recommend?", IntentEnd},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, bot.DetectIntent(tt.input))
		})
	}
}

func TestDetectIntent_Threshold(t *testing.T) {
	cfg := config.DefaultAgentConfig()
	cfg.IntentThreshold = 2
	bot := New(mocks.NewMockProvider(), nil, cfg, zap.NewNop(), WithCounter(tokenizer.NewEstimator()))

	assert.Equal(t, IntentGeneral, bot.DetectIntent("thanks"))
	assert.Equal(t, IntentEnd, bot.DetectIntent("thanks, goodbye"))
}

func TestAnalyzeDetails(t *testing.T) {
	ctx := testutil.TestContext(t)

	t.Run("new details", func(t *testing.T) {
		p := mocks.NewMockProvider().
			WithPurposeResponse(PurposeExtract, fixtures.ExtractionJSON("Ana", "ana@example.com", false))
		lead := newTestBot(p, nil).AnalyzeDetails(ctx, "I'm Ana, ana@example.com", nil)
		assert.Equal(t, "Ana", lead.Name)
		assert.Equal(t, "ana@example.com", lead.Email)

		calls := p.CallsFor(PurposeExtract)
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].Request.Messages[1].Content, "Previous name: none, Previous email: none. User input: I'm Ana")
	})

	t.Run("null keeps previous", func(t *testing.T) {
		p := mocks.NewMockProvider().
			WithPurposeResponse(PurposeExtract, fixtures.FencedJSON(`{"name": "null", "email": null, "refused": false}`))
		prev := types.Lead{Name: "Ana", Email: "ana@example.com", Summary: "s", SessionID: "sess-1"}
		lead := newTestBot(p, nil).AnalyzeDetails(ctx, "tell me more", &prev)
		assert.Equal(t, prev, lead)

		calls := p.CallsFor(PurposeExtract)
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].Request.Messages[1].Content, "Previous name: Ana, Previous email: ana@example.com.")
	})

	t.Run("no info and no previous", func(t *testing.T) {
		p := mocks.NewMockProvider().
			WithPurposeResponse(PurposeExtract, fixtures.ExtractionJSON("", "", true))
		lead := newTestBot(p, nil).AnalyzeDetails(ctx, "no thanks", nil)
		assert.Equal(t, types.UnknownName, lead.Name)
		assert.Equal(t, types.NullEmail, lead.Email)
	})

	t.Run("provider failure returns previous", func(t *testing.T) {
		p := mocks.NewMockProvider().WithPurposeError(PurposeExtract, errors.New("upstream down"))
		prev := types.Lead{Name: "Bo", Email: "bo@example.com"}
		assert.Equal(t, prev, newTestBot(p, nil).AnalyzeDetails(ctx, "hi", &prev))

		lead := newTestBot(p, nil).AnalyzeDetails(ctx, "hi", nil)
		assert.Equal(t, types.Lead{Name: types.UnknownName, Email: types.NullEmail}, lead)
	})

	t.Run("unparseable output returns previous", func(t *testing.T) {
		p := mocks.NewMockProvider().WithPurposeResponse(PurposeExtract, "I could not find a name.")
		lead := newTestBot(p, nil).AnalyzeDetails(ctx, "hi", nil)
		assert.Equal(t, types.UnknownName, lead.Name)
	})
}

func TestDetectGoal(t *testing.T) {
	ctx := testutil.TestContext(t)
	memory := testutil.Conversation("I'm Ana, ana@example.com, I want a demo")

	p := mocks.NewMockProvider().WithPurposeResponse(PurposeGoal, fixtures.GoalJSON(true, "demo requested"))
	ended, reason := newTestBot(p, nil).DetectGoal(ctx, memory)
	assert.True(t, ended)
	assert.Equal(t, "demo requested", reason)

	p = mocks.NewMockProvider().WithPurposeResponse(PurposeGoal, "not json")
	ended, _ = newTestBot(p, nil).DetectGoal(ctx, memory)
	assert.False(t, ended)
}

func TestRespond_GeneralTurn(t *testing.T) {
	ctx := testutil.TestContext(t)
	p := mocks.NewMockProvider().
		WithPurposeResponse(PurposeGoal, fixtures.GoalJSON(false, "no contact details")).
		WithPurposeResponse(PurposeExtract, fixtures.ExtractionJSON("", "", false)).
		WithPurposeResponse(PurposeReply, "Great question! Our voice agents work 24/7.")
	bot := newTestBot(p, nil)

	history := testutil.Conversation("hello", Greeting)
	r := bot.Respond(ctx, "Tell me about voice agents", nil, history)

	assert.Equal(t, "Great question! Our voice agents work 24/7.", r.Text)
	assert.False(t, r.Ended)
	assert.False(t, r.Saved)
	require.Len(t, r.Messages, 4)
	assert.Equal(t, types.NewUserMessage("Tell me about voice agents"), r.Messages[2])
	assert.Equal(t, types.NewAssistantMessage(r.Text), r.Messages[3])

	calls := p.CallsFor(PurposeReply)
	require.Len(t, calls, 1)
	req := calls[0].Request
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, 200, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.Equal(t, types.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, SalesPrompt, req.Messages[0].Content)
	assert.Len(t, req.Messages, 4, "system + history + user")
}

func TestRespond_ConfirmationFlow(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := mocks.NewMockLeadStore()
	p := mocks.NewMockProvider().
		WithPurposeResponse(PurposeExtract, fixtures.ExtractionJSON("Ana", "ana@example.com", false)).
		WithPurposeResponse(PurposeGoal, fixtures.GoalJSON(true, "demo requested")).
		WithPurposeResponse(PurposeSummary, "Ana runs a clinic and wants an AI receptionist demo.")
	bot := newTestBot(p, store)

	// 第一次达到目标：先问"还有别的吗"
	first := bot.Respond(ctx, "I'm Ana, ana@example.com, book me a demo", nil, nil)
	assert.Equal(t, ConfirmationQuestion, first.Text)
	assert.False(t, first.Ended)
	assert.Equal(t, 0, store.AppendCalls())

	// 用户确认没有其他需求：摘要、保存、致谢
	lead := first.Lead
	second := bot.Respond(ctx, "No, that's all", &lead, first.Messages)
	assert.True(t, second.Ended)
	assert.True(t, second.Saved)
	assert.Equal(t, "Thank you for your interest, Ana! We've saved your details and sent you an email with next steps. "+
		"Looking forward to our demo! Goodbye 👋", second.Text)
	assert.Equal(t, "Ana runs a clinic and wants an AI receptionist demo.", second.Lead.Summary)

	saved := store.Leads()
	require.Len(t, saved, 1)
	assert.Equal(t, "ana@example.com", saved[0].Email)
	assert.Equal(t, "Ana runs a clinic and wants an AI receptionist demo.", saved[0].Summary)

	// "that's all" 命中结束关键词，不再调用目标检测
	assert.Len(t, p.CallsFor(PurposeGoal), 1)
	assert.Empty(t, p.CallsFor(PurposeReply))
}

func TestRespond_ShortDeclineAfterConfirmation(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := mocks.NewMockLeadStore()
	p := mocks.NewMockProvider().
		WithPurposeResponse(PurposeExtract, fixtures.ExtractionJSON("", "", false)).
		WithPurposeResponse(PurposeSummary, "summary")
	bot := newTestBot(p, store)

	prev := types.Lead{Name: "Bo", Email: "bo@example.com"}
	history := testutil.Conversation("I want a demo, bo@example.com", ConfirmationQuestion)
	r := bot.Respond(ctx, "nope", &prev, history)

	assert.True(t, r.Ended)
	assert.True(t, r.Saved)
	assert.Empty(t, p.CallsFor(PurposeGoal))
}

func TestRespond_SomethingElseContinues(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := mocks.NewMockLeadStore()
	p := mocks.NewMockProvider().
		WithPurposeResponse(PurposeExtract, fixtures.ExtractionJSON("", "", false)).
		WithPurposeResponse(PurposeGoal, fixtures.GoalJSON(true, "still interested")).
		WithPurposeResponse(PurposeReply, "Sure, we also build custom integrations.")
	bot := newTestBot(p, store)

	prev := types.Lead{Name: "Bo", Email: "bo@example.com"}
	history := testutil.Conversation("I want a demo", ConfirmationQuestion)
	r := bot.Respond(ctx, "Yes, can you also integrate with our CRM?", &prev, history)

	assert.False(t, r.Ended)
	assert.False(t, r.Saved)
	assert.Equal(t, "Sure, we also build custom integrations.", r.Text)
	assert.Equal(t, 0, store.AppendCalls())
}

func TestRespond_EndedWithoutEmail(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := mocks.NewMockLeadStore()
	p := mocks.NewMockProvider().
		WithPurposeResponse(PurposeExtract, fixtures.ExtractionJSON("", "", true)).
		WithPurposeResponse(PurposeReply, "No problem, have a great day!")
	bot := newTestBot(p, store)

	r := bot.Respond(ctx, "bye", nil, nil)
	assert.True(t, r.Ended)
	assert.False(t, r.Saved)
	assert.Equal(t, "No problem, have a great day!", r.Text)
	assert.Equal(t, types.NullEmail, r.Lead.Email)
	assert.Equal(t, 0, store.AppendCalls())
}

func TestRespond_ReplyFailureFallsBack(t *testing.T) {
	ctx := testutil.TestContext(t)
	p := mocks.NewMockProvider().WithError(errors.New("rate limited"))
	r := newTestBot(p, nil).Respond(ctx, "hello", nil, nil)

	assert.Equal(t, FallbackReply, r.Text)
	assert.False(t, r.Ended)
	assert.Equal(t, types.UnknownName, r.Lead.Name)
}

func TestSaveLead(t *testing.T) {
	ctx := testutil.TestContext(t)
	memory := testutil.Conversation("hi", "hello")
	lead := types.Lead{Name: "Ana", Email: "ana@example.com"}

	t.Run("summary failure still saves", func(t *testing.T) {
		store := mocks.NewMockLeadStore()
		p := mocks.NewMockProvider().WithPurposeError(PurposeSummary, errors.New("timeout"))
		got, ok := newTestBot(p, store).SaveLead(ctx, lead, memory)
		assert.True(t, ok)
		assert.Equal(t, types.NoSummaryProvided, got.Summary)
		assert.Len(t, store.Leads(), 1)
	})

	t.Run("store failure", func(t *testing.T) {
		store := mocks.NewMockLeadStore().WithAppendError(errors.New("quota exceeded"))
		p := mocks.NewMockProvider().WithPurposeResponse(PurposeSummary, "s")
		_, ok := newTestBot(p, store).SaveLead(ctx, lead, memory)
		assert.False(t, ok)
	})

	t.Run("no store", func(t *testing.T) {
		p := mocks.NewMockProvider()
		_, ok := newTestBot(p, nil).SaveLead(ctx, lead, memory)
		assert.False(t, ok)
		assert.Zero(t, p.CallCount())
	})

	t.Run("summary sees the conversation as JSON", func(t *testing.T) {
		store := mocks.NewMockLeadStore()
		p := mocks.NewMockProvider().WithPurposeResponse(PurposeSummary, "s")
		_, ok := newTestBot(p, store).SaveLead(ctx, lead, memory)
		require.True(t, ok)
		calls := p.CallsFor(PurposeSummary)
		require.Len(t, calls, 1)
		assert.Equal(t, `[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`, calls[0].Request.Messages[1].Content)
	})
}

func TestRunFromMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("no user message greets", func(t *testing.T) {
		p := mocks.NewMockProvider()
		r := newTestBot(p, nil).RunFromMessages(ctx, nil, nil)
		assert.Equal(t, Greeting, r.Text)
		assert.Equal(t, types.NewUnknownLead(), r.Lead)
		assert.Equal(t, "No input yet", r.Lead.Summary)
		assert.Zero(t, p.CallCount())

		prev := types.Lead{Name: "Ana", Email: "ana@example.com"}
		r = newTestBot(p, nil).RunFromMessages(ctx, []types.Message{types.NewSystemMessage("x")}, &prev)
		assert.Equal(t, prev, r.Lead)
	})

	t.Run("responds to the last user message", func(t *testing.T) {
		p := mocks.NewMockProvider().
			WithPurposeResponse(PurposeExtract, fixtures.ExtractionJSON("", "", false)).
			WithPurposeResponse(PurposeGoal, fixtures.GoalJSON(false, "")).
			WithPurposeResponse(PurposeReply, "ok")
		msgs := testutil.Conversation("first", "answer", "second")
		r := newTestBot(p, nil).RunFromMessages(ctx, msgs, nil)

		assert.Equal(t, "ok", r.Text)
		require.Len(t, r.Messages, 4)
		assert.Equal(t, "second", r.Messages[2].Content)

		extract := p.CallsFor(PurposeExtract)
		require.Len(t, extract, 1)
		assert.True(t, strings.HasSuffix(extract[0].Request.Messages[1].Content, "User input: second"))
	})
}

func TestGenerateReply_TrimsMemory(t *testing.T) {
	ctx := testutil.TestContext(t)
	cfg := config.DefaultAgentConfig()
	cfg.MemoryTokenLimit = 60
	p := mocks.NewMockProvider().WithPurposeResponse(PurposeReply, "ok")
	bot := New(p, nil, cfg, zap.NewNop(), WithCounter(tokenizer.NewEstimator()))

	var memory []types.Message
	for i := 0; i < 40; i++ {
		memory = append(memory, types.NewUserMessage(strings.Repeat("word ", 20)))
	}
	memory = append(memory, types.NewUserMessage("latest"))

	assert.Equal(t, "ok", bot.generateReply(ctx, memory))
	req := p.CallsFor(PurposeReply)[0].Request
	assert.Less(t, len(req.Messages), len(memory)+1)
	assert.Equal(t, "latest", req.Messages[len(req.Messages)-1].Content)
}

func TestDeclines(t *testing.T) {
	assert.True(t, declines("No"))
	assert.True(t, declines("no, thank you"))
	assert.True(t, declines("Nothing else!"))
	assert.True(t, declines("that's all"))
	assert.False(t, declines("I know what I need"))
	assert.False(t, declines("yes please"))
}
