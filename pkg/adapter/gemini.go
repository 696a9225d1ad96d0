package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"google.golang.org/genai"
)

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	dimension       int32
	apiKey          string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimension sets output dimensionality of embeddings. It must
// match the dimension of the vector index.
func WithEmbeddingDimension(dim int) GeminiOption {
	return func(g *GeminiClient) {
		g.dimension = int32(dim)
	}
}

// WithGeminiAPIKey switches the backend from Vertex AI to the Gemini API
func WithGeminiAPIKey(apiKey string) GeminiOption {
	return func(g *GeminiClient) {
		g.apiKey = apiKey
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	g := &GeminiClient{
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
		dimension:       768,
	}
	for _, opt := range opts {
		opt(g)
	}

	cfg := &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}
	if g.apiKey != "" {
		cfg = &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	g.client = client

	return g, nil
}

func (g *GeminiClient) Complete(ctx context.Context, req *model.Completion) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	thinkingBudget := int32(0)
	temperature := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, "")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content",
			goerr.V("model", g.generativeModel),
			goerr.T(model.ErrTagUpstream))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("empty response from gemini", goerr.T(model.ErrTagUpstream))
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}

	return text.String(), nil
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := g.dimension
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content",
			goerr.V("model", g.embeddingModel),
			goerr.T(model.ErrTagUpstream))
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("no embedding returned from gemini", goerr.T(model.ErrTagUpstream))
	}

	return resp.Embeddings[0].Values, nil
}
