package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stolasapp/permits/internal/sec"
)

func hashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash an API password",
		Long: "Prints the bcrypt hash of a password for use as api.password_hash\n" +
			"(or API_PASS_HASH). Passwords may be provided via stdin or through the\n" +
			"interactive prompt.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			passwd, err := prompt("password: ", true)
			if err != nil {
				return err
			}
			hash, err := sec.HashPassword(passwd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return err
		},
	}
}
