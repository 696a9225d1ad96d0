package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements chat completion and embedding on the OpenAI API
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	dimension      int
}

type OpenAIOption func(*OpenAIClient, *openai.ClientConfig)

func WithOpenAIChatModel(name string) OpenAIOption {
	return func(c *OpenAIClient, _ *openai.ClientConfig) {
		c.chatModel = name
	}
}

func WithOpenAIEmbeddingModel(name string) OpenAIOption {
	return func(c *OpenAIClient, _ *openai.ClientConfig) {
		c.embeddingModel = openai.EmbeddingModel(name)
	}
}

func WithOpenAIEmbeddingDimension(dim int) OpenAIOption {
	return func(c *OpenAIClient, _ *openai.ClientConfig) {
		c.dimension = dim
	}
}

// WithOpenAIBaseURL points the client to an OpenAI compatible endpoint
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(_ *OpenAIClient, cfg *openai.ClientConfig) {
		cfg.BaseURL = url
	}
}

func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, goerr.New("openai api key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	c := &OpenAIClient{
		chatModel:      openai.GPT4oMini,
		embeddingModel: openai.SmallEmbedding3,
		dimension:      768,
	}
	for _, opt := range opts {
		opt(c, &cfg)
	}
	c.client = openai.NewClientWithConfig(cfg)

	return c, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req *model.Completion) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create chat completion",
			goerr.V("model", c.chatModel),
			goerr.T(model.ErrTagUpstream))
	}

	if len(resp.Choices) == 0 {
		return "", goerr.New("no choice returned from openai", goerr.T(model.ErrTagUpstream))
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      c.embeddingModel,
		Dimensions: c.dimension,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding",
			goerr.V("model", c.embeddingModel),
			goerr.T(model.ErrTagUpstream))
	}

	if len(resp.Data) == 0 {
		return nil, goerr.New("no embedding returned from openai", goerr.T(model.ErrTagUpstream))
	}

	return resp.Data[0].Embedding, nil
}
