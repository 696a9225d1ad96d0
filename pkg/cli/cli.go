package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Version is reported by the MCP server
var Version = "dev"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "hearth",
		Usage: "Therapy companion chat backend with long-term memory",
		Commands: []*cli.Command{
			serveCommand(),
			sessionCommand(),
			chatCommand(),
			historyCommand(),
			memoriesCommand(),
			exportCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
