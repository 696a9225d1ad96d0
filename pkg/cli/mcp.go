package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/hearth/pkg/controller/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve memory recall and session history as MCP tools over stdio",
		Flags: allFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			// stdout carries the protocol
			ctx = cfg.setupLogger(ctx, os.Stderr)

			d, err := cfg.newDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			server, err := mcp.NewServer(d.uc, Version)
			if err != nil {
				return err
			}
			return mcp.Serve(ctx, server)
		},
	}
}
