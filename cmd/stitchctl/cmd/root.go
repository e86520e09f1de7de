package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-stitch-auth/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	baseURL   string
	appID     string
	quiet     bool
	appConfig = config.New()
)

var rootCmd = &cobra.Command{
	Use:           "stitchctl",
	Short:         "stitchctl manages an authenticated Stitch session",
	Long:          `Log in, call the API with automatic session refresh, impersonate users and complete redirect logins.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(appConfig.GetLogLevel())
		if !quiet {
			displayAppname(appConfig.GetAppName())
		}
	},
}

// Execute runs the command selected by the process arguments.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", appConfig.GetBaseURL(), "API root URL")
	rootCmd.PersistentFlags().StringVar(&appID, "app-id", appConfig.GetAppID(), "application ID")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not print the banner")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
