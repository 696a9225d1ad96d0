package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	api "github.com/m-mizutani/hearth/pkg/controller/http"
	"github.com/m-mizutani/hearth/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg             config
		addr            string
		cors            string
		shutdownTimeout time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("HEARTH_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Usage:       "Comma separated allowed origins, * allows any",
			Value:       "*",
			Sources:     cli.EnvVars("CORS_ORIGINS"),
			Destination: &cors,
		},
		&cli.DurationFlag{
			Name:        "shutdown-timeout",
			Usage:       "Time allowed for in-flight requests and memory jobs on shutdown",
			Value:       10 * time.Second,
			Sources:     cli.EnvVars("HEARTH_SHUTDOWN_TIMEOUT"),
			Destination: &shutdownTimeout,
		},
	}
	flags = append(flags, allFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the chat HTTP API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, os.Stderr)
			logger := logging.From(ctx)

			d, err := cfg.newDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			server := &http.Server{
				Addr:              addr,
				Handler:           api.New(d.uc, api.WithCORSOrigins(corsOrigins(cors))),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext: func(_ net.Listener) context.Context {
					return ctx
				},
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server started", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- goerr.Wrap(err, "server stopped", goerr.V("addr", addr))
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("server shutdown incomplete", "error", err)
			}
			if !d.pool.Shutdown(shutdownTimeout) {
				logger.Warn("memory jobs still running after shutdown timeout")
			}
			return nil
		},
	}
}
