// Package generator renders the narrative message for an applied delta.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/semitae/internal/adapter/llm"
	"github.com/xiaot623/semitae/internal/domain"
)

// Generator produces the message appended to an encounter's log.
// Generate must not mutate its inputs and must be safe to call again
// with the same arguments after a failure.
type Generator interface {
	Generate(ctx context.Context, encounter domain.Encounter, delta *domain.Delta) (string, error)
}

// TemplateGenerator renders a fixed sentence. It is pure.
type TemplateGenerator struct{}

var _ Generator = TemplateGenerator{}

// NewTemplate returns the default generator.
func NewTemplate() TemplateGenerator {
	return TemplateGenerator{}
}

func (TemplateGenerator) Generate(ctx context.Context, encounter domain.Encounter, delta *domain.Delta) (string, error) {
	if delta == nil {
		return "", domain.GenerationError("missing delta", nil)
	}
	return render(encounter, delta), nil
}

func render(encounter domain.Encounter, delta *domain.Delta) string {
	realm := encounter.Realm
	if realm == "" {
		realm = "the void"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d (%s): %s attempts %s: %q.", delta.Turn, realm, delta.ActingParticipant, delta.Classification, delta.Instruction)
	if delta.ExtraTurn {
		fmt.Fprintf(&b, " %s keeps the initiative.", delta.NextActiveParticipant)
	} else {
		fmt.Fprintf(&b, " %s acts next.", delta.NextActiveParticipant)
	}
	return b.String()
}

const systemPrompt = "You narrate a turn-based encounter in the realm of %s. " +
	"Describe the outcome of the acting participant's move in one or two sentences. " +
	"Do not decide whose turn is next and do not invent new participants."

// LLMGenerator asks an OpenAI-compatible model for the message.
type LLMGenerator struct {
	client llm.LLMClient
	model  string
}

var _ Generator = (*LLMGenerator)(nil)

// NewLLM creates a generator backed by client.
func NewLLM(client llm.LLMClient, model string) *LLMGenerator {
	return &LLMGenerator{client: client, model: model}
}

func (g *LLMGenerator) Generate(ctx context.Context, encounter domain.Encounter, delta *domain.Delta) (string, error) {
	if delta == nil {
		return "", domain.GenerationError("missing delta", nil)
	}
	temperature := 0.0
	req := &llm.ChatCompletionRequest{
		Model:       g.model,
		Temperature: &temperature,
		Messages:    buildMessages(encounter, delta),
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", domain.GenerationError("llm request failed", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", domain.GenerationError("llm returned no choices", nil)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", domain.GenerationError("llm returned empty content", nil)
	}
	return content, nil
}

func buildMessages(encounter domain.Encounter, delta *domain.Delta) []llm.ChatMessage {
	realm := encounter.Realm
	if realm == "" {
		realm = "the void"
	}
	messages := []llm.ChatMessage{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, realm)},
	}
	// Only the last ten messages are sent.
	history := encounter.MessageLog
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	for _, msg := range history {
		messages = append(messages, llm.ChatMessage{Role: "assistant", Content: msg})
	}
	messages = append(messages, llm.ChatMessage{
		Role: "user",
		Content: fmt.Sprintf("%s (%s) on turn %d: %s",
			delta.ActingParticipant, delta.Classification, delta.Turn, delta.Instruction),
	})
	return messages
}
