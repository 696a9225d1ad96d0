package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session to export",
			Sources:     cli.EnvVars("HEARTH_SESSION_ID"),
			Destination: &sessionID,
			Required:    true,
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Archive a session transcript to Cloud Storage",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, os.Stderr)

			if cfg.exportBucket == "" {
				return goerr.New("export-bucket is required")
			}

			d, err := cfg.newDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			key, err := d.uc.Export(ctx, model.SessionID(sessionID))
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "gs://%s/%s\n", cfg.exportBucket, key)
			return nil
		},
	}
}
