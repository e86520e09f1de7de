package cmd

import "github.com/spf13/cobra"

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session and clear it locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient()

		if err := client.Logout(cmd.Context()); err != nil {
			// the local session is gone either way
			cmd.PrintErrf("Server logout failed: %v\n", err)
		}
		cmd.Println("Logged out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
