package cmd

import (
	"fmt"
	"os"

	"github.com/jrsteele09/go-stitch-auth/oauthmodel"
	"github.com/spf13/cobra"
)

const passwordEnvVar = "STITCH_PASSWORD"

var (
	loginProvider string
	loginUsername string
	loginPassword string
	loginAPIKey   string
	loginToken    string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in with one of the providers anon-user, local-userpass, api-key or custom-token.
The password may be supplied through STITCH_PASSWORD instead of --password.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentialsFromFlags()
		if err != nil {
			return err
		}

		client, closeClient, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient()

		s, err := client.Login(cmd.Context(), creds)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		cmd.Printf("Logged in as %s\n", s.UserID)
		return nil
	},
}

func credentialsFromFlags() (oauthmodel.Credentials, error) {
	switch loginProvider {
	case oauthmodel.ProviderAnonymous:
		return oauthmodel.AnonymousCredentials{}, nil
	case oauthmodel.ProviderUserPassword:
		password := loginPassword
		if password == "" {
			password = os.Getenv(passwordEnvVar)
		}
		if loginUsername == "" || password == "" {
			return nil, fmt.Errorf("--username and --password are required for %s", loginProvider)
		}
		return oauthmodel.UserPasswordCredentials{Username: loginUsername, Password: password}, nil
	case oauthmodel.ProviderAPIKey:
		if loginAPIKey == "" {
			return nil, fmt.Errorf("--key is required for %s", loginProvider)
		}
		return oauthmodel.APIKeyCredentials{Key: loginAPIKey}, nil
	case oauthmodel.ProviderCustomToken:
		if loginToken == "" {
			return nil, fmt.Errorf("--token is required for %s", loginProvider)
		}
		return oauthmodel.CustomTokenCredentials{Token: loginToken}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", loginProvider)
	}
}

func init() {
	loginCmd.Flags().StringVar(&loginProvider, "provider", oauthmodel.ProviderUserPassword, "login provider kind")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "username for local-userpass")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password for local-userpass")
	loginCmd.Flags().StringVar(&loginAPIKey, "key", "", "API key for api-key")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "JWT for custom-token")
	rootCmd.AddCommand(loginCmd)
}
