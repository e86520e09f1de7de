package cmd

import (
	"fmt"

	"github.com/jrsteele09/go-stitch-auth/auth"
	"github.com/jrsteele09/go-stitch-auth/redirect"
	"github.com/spf13/cobra"
)

var (
	redirectProvider string
	redirectURL      string
	redirectStrict   bool
)

var redirectCmd = &cobra.Command{
	Use:   "redirect",
	Short: "Complete a browser redirect login",
}

var redirectURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the provider login URL to open in a browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient()

		u, err := client.AuthorizeURL(cmd.Context(), redirectProvider, redirectURL)
		if err != nil {
			return err
		}
		cmd.Println(u)
		return nil
	},
}

var redirectHandleCmd = &cobra.Command{
	Use:   "handle CALLBACK_URL",
	Short: "Store the session carried in the fragment of the URL the browser landed on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := redirect.NewStaticLocation(args[0])
		if err != nil {
			return fmt.Errorf("invalid callback URL: %w", err)
		}

		var options []auth.Option
		if redirectStrict {
			options = append(options, auth.WithStrictState())
		}
		client, closeClient, err := newClient(cmd.Context(), options...)
		if err != nil {
			return err
		}
		defer closeClient()

		result, err := client.HandleRedirect(cmd.Context(), loc)
		if err != nil {
			return err
		}
		if result.StateChecked && !result.StateValid {
			cmd.PrintErrln("Warning: state did not match the one issued by 'redirect url'")
		}
		if !result.Applied {
			cmd.Println("No session in callback URL")
			return nil
		}
		cmd.Printf("Logged in as %s\n", result.Session.UserID)
		return nil
	},
}

func init() {
	redirectURLCmd.Flags().StringVar(&redirectProvider, "provider", "oauth2-google", "OAuth provider kind")
	redirectURLCmd.Flags().StringVar(&redirectURL, "redirect-url", "http://localhost:8080/callback", "URL the provider sends the browser back to")
	redirectHandleCmd.Flags().BoolVar(&redirectStrict, "strict", false, "reject a callback whose state does not match")
	redirectCmd.AddCommand(redirectURLCmd)
	redirectCmd.AddCommand(redirectHandleCmd)
	rootCmd.AddCommand(redirectCmd)
}
