package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/model/conversation"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
)

// ChainGenerator produces replies with an eino chain: a chat template that
// places the whole history, followed by the chat model.
type ChainGenerator struct {
	chain compose.Runnable[map[string]any, *schema.Message]
	log   *zap.Logger
}

var _ pipeline.Generator = (*ChainGenerator)(nil)

// NewChainGenerator compiles the chain around chatModel.
func NewChainGenerator(ctx context.Context, chatModel model.ChatModel, log *zap.Logger) (*ChainGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	// The history already starts with the system turn.
	template := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ChainGenerator{chain: runnable, log: log.Named("ai")}, nil
}

// Generate runs the chain over history.
func (g *ChainGenerator) Generate(ctx context.Context, history []conversation.Turn) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("empty history")
	}

	resp, err := g.chain.Invoke(ctx, map[string]any{
		"history": toSchemaMessages(history),
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("chat model returned no message")
	}

	g.log.Debug("generated reply", zap.Int("turns", len(history)), zap.Int("length", len(resp.Content)))
	return resp.Content, nil
}

func toSchemaMessages(history []conversation.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case conversation.RoleSystem:
			messages = append(messages, schema.SystemMessage(turn.Content))
		case conversation.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case conversation.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}
