package command

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func queryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Fetch records once and print them as JSON",
		Long: "Runs the configured record query against the store and writes the\n" +
			"result to stdout in the same shape served by GET /permits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (runErr error) {
			_, _, store, svc, err := loadService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					runErr = errors.Join(runErr, err)
				}
			}()

			var requested *int
			if cmd.Flags().Changed("limit") {
				requested = &limit
			}
			records, err := svc.FetchRecords(cmd.Context(), requested)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of records (full profile only)")
	return cmd
}
