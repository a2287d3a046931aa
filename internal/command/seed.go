package command

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/stolasapp/permits/internal/devdata"
	"github.com/stolasapp/permits/internal/storage"
)

func seedCommand() *cobra.Command {
	var (
		count int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the SQLite development store with fake records",
		Long: "Generates fake permit records and inserts them into the development\n" +
			"store. The seed defaults to PERMITS_DEV_SEED, or a random value.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (runErr error) {
			_, logger, store, _, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					runErr = errors.Join(runErr, err)
				}
			}()

			if store.Dialect() != storage.SQLite {
				return storage.ErrNotSQLite
			}
			if !cmd.Flags().Changed("seed") {
				seed = devdata.Seed()
			}

			gen := devdata.NewGenerator(seed, time.Now())
			if err = devdata.Populate(cmd.Context(), store.Handle(), store.Dialect(), gen, count); err != nil {
				return err
			}
			total, err := devdata.Count(cmd.Context(), store.Handle(), store.Dialect())
			if err != nil {
				return err
			}
			logger.InfoContext(cmd.Context(), "seeded development store",
				slog.Int("count", count),
				slog.Int("total", total),
				slog.Uint64("seed", seed),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", devSeedCount, "number of records to generate")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "generator seed")
	return cmd
}
