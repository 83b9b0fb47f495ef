package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/ewanfisher/voxmail/backend/internal/config"
	"github.com/ewanfisher/voxmail/backend/internal/intent"
	mailModel "github.com/ewanfisher/voxmail/backend/internal/model/mail"
)

// Service hosts the two model-backed collaborators: the intent
// classifier for utterances the rule vocabulary cannot place, and the
// reply-body generator for the draft workflow.
type Service struct {
	chatModel     model.ChatModel
	cfg           config.AIConfig
	classifyChain compose.Runnable[map[string]any, *schema.Message]
	replyChain    compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the AI service and compiles both chains.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	classifyChain, err := compileChain(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to compile classify chain: %w", err)
	}

	replyChain, err := compileChain(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &Service{
		chatModel:     chatModel,
		cfg:           cfg,
		classifyChain: classifyChain,
		replyChain:    replyChain,
	}, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel) (compose.Runnable[map[string]any, *schema.Message], error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	return chain.Compile(ctx)
}

// Classify maps an utterance the rule matcher could not place onto the
// closed action set. Malformed model output degrades to off-topic; the
// classifier never drives the draft workflow (that vocabulary is
// matched deterministically upstream).
func (s *Service) Classify(ctx context.Context, utterance string, snap intent.Snapshot) (intent.Decision, error) {
	input := map[string]any{
		"system": buildClassifierPrompt(snap),
		"query":  utterance,
	}

	response, err := s.classifyChain.Invoke(ctx, input)
	if err != nil {
		return intent.Decision{}, fmt.Errorf("failed to run classifier chain: %w", err)
	}

	decision := parseDecision(response.Content)
	log.Printf("[ai] classified utterance as %s", decision.Action)
	return decision, nil
}

// GenerateReply produces a reply body for the draft workflow, seeded
// with the user's hint when one was dictated. Nothing is sent here.
func (s *Service) GenerateReply(ctx context.Context, original mailModel.Content, hint string) (string, error) {
	body := original.Body
	if len(body) > 500 {
		body = body[:500]
	}

	hintLine := ""
	if hint != "" {
		hintLine = fmt.Sprintf(" The user wants the reply to say: %s.", hint)
	}

	query := fmt.Sprintf(
		"Original email:\nFrom: %s\nSubject: %s\nBody: %s\n\nWrite the reply body.%s",
		original.From, original.Subject, body, hintLine,
	)

	input := map[string]any{
		"system": replySystemPrompt,
		"query":  query,
	}

	response, err := s.replyChain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}

	return strings.TrimSpace(response.Content), nil
}

const replySystemPrompt = `You write professional email replies.
Write ONLY the email body text. No subject line, no "To:" header, just the body.
Keep it professional, concise, and friendly.
Sign off with just "Best regards" on a new line.`

func buildClassifierPrompt(snap intent.Snapshot) string {
	var b strings.Builder
	b.WriteString("You are the intent classifier for a voice email assistant.\n")
	b.WriteString("Map the user's utterance to exactly one action:\n")
	b.WriteString("- list_emails: fetch recent emails for an account\n")
	b.WriteString("- search_emails: search emails (fill query, e.g. \"from:nike\" or \"unread\")\n")
	b.WriteString("- read_email: read a specific email (fill index when stated)\n")
	b.WriteString("- status: report session state\n")
	b.WriteString("- help: explain capabilities\n")
	b.WriteString("- off_topic: anything not about managing email\n")
	b.WriteString("\nNever emit draft_reply, send_reply, cancel_draft or clear; those are recognized elsewhere.\n")

	fmt.Fprintf(&b, "\nConfigured accounts: %s.\n", strings.Join(snap.Accounts, ", "))
	fmt.Fprintf(&b, "Currently loaded emails: %d.\n", snap.LoadedCount)
	if snap.LastReadSubject != "" {
		fmt.Fprintf(&b, "Last read email: from %s, subject %q, account %s.\n",
			snap.LastReadFrom, snap.LastReadSubject, snap.LastReadAccount)
	}
	if snap.HasPendingDraft {
		b.WriteString("A draft reply is pending approval.\n")
	}

	b.WriteString("\nRespond with JSON only, no prose:\n")
	b.WriteString(`{"action": "...", "index": 0, "account": "", "query": "", "message": ""}`)
	return b.String()
}

// parseDecision decodes the classifier's JSON. Any malformed output is
// treated as off-topic so a confused model can never trigger a tool.
func parseDecision(content string) intent.Decision {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var payload struct {
		Action  string `json:"action"`
		Index   int    `json:"index"`
		Account string `json:"account"`
		Query   string `json:"query"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return intent.Decision{Action: intent.ActionOffTopic}
	}

	action := intent.ParseAction(payload.Action)
	switch action {
	case intent.ActionDraftReply, intent.ActionSendReply, intent.ActionCancelDraft, intent.ActionClear:
		// Only the fixed vocabulary may drive the draft workflow.
		action = intent.ActionOffTopic
	}

	return intent.Decision{
		Action:  action,
		Index:   payload.Index,
		Account: payload.Account,
		Query:   payload.Query,
		Message: payload.Message,
	}
}
