package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/model/conversation"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
)

var ErrNoChoices = errors.New("chat completion returned no choices")

// ChatClient is the subset of *openai.Client used by OpenAIGenerator.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ ChatClient = (*openai.Client)(nil)

// OpenAIConfig tunes chat completion requests.
type OpenAIConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAIGenerator produces replies through the chat completions API.
type OpenAIGenerator struct {
	client ChatClient
	cfg    OpenAIConfig
	log    *zap.Logger
}

var _ pipeline.Generator = (*OpenAIGenerator)(nil)

func NewOpenAIGenerator(client ChatClient, cfg OpenAIConfig, log *zap.Logger) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAIGenerator{client: client, cfg: cfg, log: log.Named("ai")}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, history []conversation.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	g.log.Debug("generated reply",
		zap.String("model", g.cfg.Model),
		zap.Int("turns", len(history)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
