// Package main provides the terminal chat clients.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cr4all/supportservices/client"
	"github.com/cr4all/supportservices/config"
)

var (
	configPath string
	baseURL    string
	basePath   string
	timeout    time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "chatctl",
		Short:         "Terminal clients for the support chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Flags left unset fall back to the client section of the config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyClientConfig(cmd, &cfg)
			return nil
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to the JSON config file (default $CHAT_CONFIG or "+config.DefaultPath+")")
	flags.StringVar(&baseURL, "url", "", "Chat service root URL (default client.base_url)")
	flags.StringVar(&basePath, "base-path", "", "Chat API base path (default server.base_path)")
	flags.DurationVar(&timeout, "timeout", 0, "Per-request timeout (default client.timeout_seconds)")

	rootCmd.AddCommand(visitorCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(badgeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func applyClientConfig(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("url") {
		baseURL = cfg.Client.BaseURL
	}
	if !flags.Changed("base-path") {
		basePath = cfg.Server.BasePath
	}
	if !flags.Changed("timeout") {
		timeout = cfg.Client.Timeout()
	}
}

func newClient(token string) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:    baseURL,
		BasePath:   basePath,
		HTTPClient: &http.Client{Timeout: timeout},
		Token:      token,
	})
}
