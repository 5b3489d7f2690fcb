package answer

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// DefaultModel is the chat model used for answer generation.
const DefaultModel = openai.ChatModelGPT4oMini

// Generator produces a completion for a prompt. The engine depends on
// this interface so tests can substitute a fake.
type Generator interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// OpenAIGenerator generates answers through the OpenAI chat API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(client *openai.Client, model string) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGenerator{client: client, model: model}
}

func (g *OpenAIGenerator) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:               g.model,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
