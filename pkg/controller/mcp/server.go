package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// UseCase is the subset of the conversation use case exposed as tools
type UseCase interface {
	History(ctx context.Context, sessionID model.SessionID) ([]*model.Message, error)
	Memories(ctx context.Context, sessionID model.SessionID, query string) *model.MemoryReport
}

type recallParams struct {
	SessionID string `json:"session_id" jsonschema:"Session whose memories are ranked first"`
	Query     string `json:"query,omitempty" jsonschema:"Text to search memories for. A broad default is used when empty"`
}

type historyParams struct {
	SessionID string `json:"session_id" jsonschema:"Session to read"`
}

// NewServer builds an MCP server exposing memory recall and session history
func NewServer(uc UseCase, version string) (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "hearth",
		Version: version,
	}, nil)

	recallSchema, err := inputSchema[recallParams]("session_id")
	if err != nil {
		return nil, err
	}
	historySchema, err := inputSchema[historyParams]("session_id")
	if err != nil {
		return nil, err
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall_memories",
		Description: "Retrieve remembered exchanges relevant to a query, current session first",
		InputSchema: recallSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *recallParams) (*mcp.CallToolResult, any, error) {
		if params.SessionID == "" {
			return nil, nil, goerr.New("session_id is required", goerr.T(model.ErrTagValidation))
		}

		report := uc.Memories(ctx, model.SessionID(params.SessionID), params.Query)
		text := fmt.Sprintf("No memories found for query: %s", report.Query)
		if report.Count > 0 {
			text = fmt.Sprintf("Found %d memories for query: %s\n%s", report.Count, report.Query, strings.Join(report.Memories, "\n"))
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_history",
		Description: "Read the messages of a session in chronological order",
		InputSchema: historySchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *historyParams) (*mcp.CallToolResult, any, error) {
		if params.SessionID == "" {
			return nil, nil, goerr.New("session_id is required", goerr.T(model.ErrTagValidation))
		}

		msgs, err := uc.History(ctx, model.SessionID(params.SessionID))
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to read history", goerr.V("session_id", params.SessionID))
		}

		lines := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Format("2006-01-02 15:04:05"), msg.Role, msg.Content))
		}
		text := "No messages in session"
		if len(lines) > 0 {
			text = strings.Join(lines, "\n")
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil, nil
	})

	return server, nil
}

// Serve runs the server over stdin and stdout until ctx is done
func Serve(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

func inputSchema[T any](required ...string) (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to infer tool input schema")
	}
	schema.Required = required
	return schema, nil
}
