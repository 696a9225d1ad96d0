package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/urfave/cli/v3"
)

func memoriesCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		query     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session the recall runs for",
			Sources:     cli.EnvVars("HEARTH_SESSION_ID"),
			Destination: &sessionID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Probe text, a generic probe is used when empty",
			Destination: &query,
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:  "memories",
		Usage: "Show the memories a message would recall for a session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, os.Stderr)

			d, err := cfg.newDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			report := d.uc.Memories(ctx, model.SessionID(sessionID), query)

			w := c.Root().Writer
			fmt.Fprintf(w, "query: %s\n", report.Query)
			fmt.Fprintf(w, "found: %d\n", report.Count)
			for _, m := range report.Memories {
				fmt.Fprintf(w, "- %s\n", m)
			}
			return nil
		},
	}
}
