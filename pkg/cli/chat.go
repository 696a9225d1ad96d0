package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session to continue, a new one is started when empty",
			Sources:     cli.EnvVars("HEARTH_SESSION_ID"),
			Destination: &sessionID,
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk with the companion in the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			// Logs go to stderr so they do not interleave with the prompt
			ctx = cfg.setupLogger(ctx, os.Stderr)

			d, err := cfg.newDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			sid := model.SessionID(sessionID)
			if sid == "" {
				session, err := d.uc.CreateSession(ctx)
				if err != nil {
					return err
				}
				sid = session.ID
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     historyFile(),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Session %s started. Type 'exit' to quit.\n", sid)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				message := strings.TrimSpace(line)
				if message == "exit" {
					break
				}
				if message == "" {
					continue
				}

				s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				s.Suffix = " thinking..."
				s.Start()
				result, err := d.uc.HandleTurn(ctx, sid, message)
				s.Stop()
				if err != nil {
					fmt.Fprintf(w, "error: %v\n", err)
					continue
				}

				fmt.Fprintf(w, "%s\n\n", result.Response)
			}

			// Let pending memory jobs finish before the index is closed
			d.uc.Wait()

			fmt.Fprintf(w, "\nSession %s completed\n", sid)
			return nil
		},
	}
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hearth_history")
}
