package adapter

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
)

// ClaudeClient implements chat completion on the Anthropic API. It has no
// embedding endpoint, so it must be paired with another Embedder.
type ClaudeClient struct {
	client *anthropic.Client
	model  string
}

type ClaudeOption func(*ClaudeClient)

func WithClaudeModel(name string) ClaudeOption {
	return func(c *ClaudeClient) {
		c.model = name
	}
}

// NewClaude creates a new Claude API client
func NewClaude(apiKey string, opts ...ClaudeOption) (*ClaudeClient, error) {
	if apiKey == "" {
		return nil, goerr.New("anthropic api key is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	c := &ClaudeClient{
		client: &client,
		model:  "claude-sonnet-4-5",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *ClaudeClient) Complete(ctx context.Context, req *model.Completion) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			// Conversation must start with a user turn
			if len(messages) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(block))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(block))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create message",
			goerr.V("model", c.model),
			goerr.T(model.ErrTagUpstream))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return text.String(), nil
}
