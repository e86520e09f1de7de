package cmd

import "github.com/spf13/cobra"

var impersonateCmd = &cobra.Command{
	Use:   "impersonate",
	Short: "Act as another user",
}

var impersonateStartCmd = &cobra.Command{
	Use:   "start USER_ID",
	Short: "Switch to USER_ID's session, keeping the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient()

		if err := client.StartImpersonation(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("Impersonating %s\n", args[0])
		return nil
	},
}

var impersonateStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Restore the session held before impersonation started",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient()

		if err := client.StopImpersonation(cmd.Context()); err != nil {
			return err
		}
		userID, err := client.AuthedID(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Back to %s\n", userID)
		return nil
	},
}

func init() {
	impersonateCmd.AddCommand(impersonateStartCmd)
	impersonateCmd.AddCommand(impersonateStopCmd)
	rootCmd.AddCommand(impersonateCmd)
}
