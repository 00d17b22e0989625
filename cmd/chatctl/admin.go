package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cr4all/supportservices/client"
	"github.com/cr4all/supportservices/tui"
)

func adminCmd() *cobra.Command {
	var (
		username string
		password string
		token    string
		options  client.AdminOptions
	)
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Open the operator dashboard",
		Long: `Open the operator inbox. When the service requires operator
authentication, pass --token or log in with --username and --password
(or CHAT_OPERATOR_PASSWORD).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newClient(token)
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("CHAT_OPERATOR_PASSWORD")
			}
			if username != "" {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if _, err := api.Login(ctx, username, password); err != nil {
					return fmt.Errorf("login: %w", err)
				}
			}

			a := client.NewAdmin(api, options)
			defer a.Unmount()
			_, err = tea.NewProgram(tui.NewAdminModel(a), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Operator password")
	cmd.Flags().StringVar(&token, "token", os.Getenv("CHAT_OPERATOR_TOKEN"), "Operator bearer token")
	cmd.Flags().DurationVar(&options.InboxInterval, "inbox-poll", client.DefaultInboxPollInterval, "Inbox poll interval")
	cmd.Flags().DurationVar(&options.ThreadInterval, "thread-poll", client.DefaultThreadPollInterval, "Thread poll interval")
	return cmd
}
