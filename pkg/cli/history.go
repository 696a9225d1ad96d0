package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session to show",
			Sources:     cli.EnvVars("HEARTH_SESSION_ID"),
			Destination: &sessionID,
			Required:    true,
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "Show the messages of a session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, os.Stderr)

			d, err := cfg.newDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			msgs, err := d.uc.History(ctx, model.SessionID(sessionID))
			if err != nil {
				return err
			}

			if len(msgs) == 0 {
				fmt.Fprintf(c.Root().Writer, "No messages found for session %s\n", sessionID)
				return nil
			}

			for _, m := range msgs {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\n",
					m.Timestamp.Format("2006-01-02 15:04:05"),
					m.Role,
					m.Content,
				)
			}
			return nil
		},
	}
}
