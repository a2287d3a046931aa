package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stolasapp/permits/internal/app"
	"github.com/stolasapp/permits/internal/config"
	"github.com/stolasapp/permits/internal/devdata"
	"github.com/stolasapp/permits/internal/sec"
	"github.com/stolasapp/permits/internal/server"
	"github.com/stolasapp/permits/internal/storage"
)

// devSeedCount is the number of records generated for an empty development
// store.
const devSeedCount = 500

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve the permits REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (runErr error) {
			cfg, logger, store, svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					runErr = errors.Join(runErr, err)
				}
			}()

			gate, err := sec.NewGate(cfg.API)
			if err != nil {
				return err
			}

			// In dev mode, populate an empty development store
			if cfg.DevMode && store.Dialect() == storage.SQLite {
				if err = seedIfEmpty(cmd.Context(), logger, store); err != nil {
					return err
				}
			}

			grp, ctx := errgroup.WithContext(cmd.Context())
			appServer := app.New(cfg, logger, gate, svc, store)
			serveApp(ctx, grp, cfg, logger, appServer)
			return grp.Wait()
		},
	}
}

func serveApp(
	ctx context.Context,
	grp *errgroup.Group,
	cfg *config.Config,
	logger *slog.Logger,
	srv *echo.Echo,
) {
	listener, err := server.Listen(ctx, cfg.Address)
	if err != nil {
		grp.Go(func() error { return err })
		return
	}

	logger.InfoContext(ctx,
		"starting app server...",
		slog.String("address", listener.Addr().String()),
		slog.String("profile", cfg.Query.Profile),
	)
	server.Serve(ctx, grp, srv.Server, listener, cfg.Server)
}

func seedIfEmpty(ctx context.Context, logger *slog.Logger, store *storage.DB) error {
	n, err := devdata.Count(ctx, store.Handle(), store.Dialect())
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	seed := devdata.Seed()
	gen := devdata.NewGenerator(seed, time.Now())
	if err = devdata.Populate(ctx, store.Handle(), store.Dialect(), gen, devSeedCount); err != nil {
		return err
	}
	logger.InfoContext(ctx,
		"seeded development store",
		slog.Int("count", devSeedCount),
		slog.Uint64("seed", seed),
	)
	return nil
}
