package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func sessionCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "session",
		Usage: "Create a new chat session and print its ID",
		Flags: allFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, os.Stderr)

			d, err := cfg.newDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			session, err := d.uc.CreateSession(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, session.ID)
			return nil
		},
	}
}
