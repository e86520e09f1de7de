package cmd

import (
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient()

		ctx := cmd.Context()
		s, err := client.Session(ctx)
		if err != nil {
			return err
		}
		if s.AccessToken == "" {
			cmd.Println("Not logged in")
			return nil
		}

		impersonating, err := client.IsImpersonating(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("User:          %s\n", s.UserID)
		cmd.Printf("Device:        %s\n", s.DeviceID)
		cmd.Printf("Impersonating: %t\n", impersonating)
		cmd.Printf("Token expired: %t\n", client.IsAccessTokenExpired(ctx, 0))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
