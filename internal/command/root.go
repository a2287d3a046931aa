// Package command contains the CLI command constructors.
package command

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/stolasapp/permits/internal/config"
)

// RootCommand instantiates the root command, with all sub-commands bound.
func RootCommand() *cobra.Command {
	configFilePath := config.DefaultPath()
	envFiles := []string{".env"}
	cmd := &cobra.Command{
		Use:          "permits [command] [flags]",
		Short:        "Read-only REST API over the permit records view",
		Version:      version(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFiles...); err != nil {
				return err
			}
			// the default file is optional; an explicit one must exist
			path := configFilePath
			if !cmd.Flags().Changed("config") {
				if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
					path = ""
				}
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, path))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(
		&configFilePath,
		"config", "c",
		configFilePath,
		"path to the configuration file",
	)
	cmd.PersistentFlags().StringSliceVar(
		&envFiles,
		"env-file",
		envFiles,
		"dotenv files loaded into the environment before configuration",
	)

	cmd.AddCommand(
		serveCommand(),
		queryCommand(),
		seedCommand(),
		hashPasswordCommand(),
	)

	return cmd
}
