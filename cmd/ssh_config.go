package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"steward/internal/remote"
)

// sshConfigCmd prints OpenSSH client config blocks for servers.
var sshConfigCmd = &cobra.Command{
	Use:   "ssh-config <server-id>...",
	Short: "Print ssh config entries for servers",
	Long: `Print an OpenSSH client config block for each server, generating the
server key pair and writing its identity file first if needed. Append the
output to ~/.ssh/config to reach servers by their full domain.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApplication()
		if err != nil {
			return err
		}
		defer application.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		keys := application.Services().Keys
		for _, id := range args {
			srv, err := keys.Ensure(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), remote.SSHConfigEntry(srv, keys.IdentityFile(srv)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sshConfigCmd)
}
