package cmd

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-stitch-auth/auth"
	"github.com/jrsteele09/go-stitch-auth/transport"
	"github.com/spf13/cobra"
)

var (
	callData   string
	callNoAuth bool
)

var callCmd = &cobra.Command{
	Use:   "call METHOD PATH",
	Short: "Send an authenticated request, refreshing the session if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeClient, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient()

		req := &transport.Request{
			Method: strings.ToUpper(args[0]),
			URL:    client.Config().BaseURL + "/" + strings.TrimLeft(args[1], "/"),
			Header: http.Header{},
		}
		if callData != "" {
			req.Body = []byte(callData)
			req.Header.Set("Content-Type", "application/json")
		}

		var options []auth.RequestOption
		if callNoAuth {
			options = append(options, auth.WithNoAuth())
		}

		resp, err := client.Do(cmd.Context(), req, options...)
		var apiErr *auth.APIError
		if errors.As(err, &apiErr) {
			resp = apiErr.Response
		} else if err != nil {
			return err
		}

		cmd.Println(resp.StatusText())
		cmd.Println(string(resp.Body))
		return err
	},
}

func init() {
	callCmd.Flags().StringVarP(&callData, "data", "d", "", "JSON request body")
	callCmd.Flags().BoolVar(&callNoAuth, "no-auth", false, "send without credentials")
	rootCmd.AddCommand(callCmd)
}
