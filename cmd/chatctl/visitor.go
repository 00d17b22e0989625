package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cr4all/supportservices/client"
	"github.com/cr4all/supportservices/tui"
)

func visitorCmd() *cobra.Command {
	var (
		idFile  string
		options client.VisitorOptions
	)
	cmd := &cobra.Command{
		Use:   "visitor",
		Short: "Chat with support as a visitor",
		Long: `Open the visitor chat. The visitor id is kept on disk so the same
conversation is resumed on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newClient("")
			if err != nil {
				return err
			}
			store, err := visitorStore(idFile)
			if err != nil {
				return err
			}
			options.Store = store

			v := client.NewVisitor(api, options)
			defer v.Close()
			_, err = tea.NewProgram(tui.NewVisitorModel(v), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&idFile, "id-file", "", "Where the visitor id is stored (default in the user config dir)")
	cmd.Flags().DurationVar(&options.PollInterval, "poll", client.DefaultVisitorPollInterval, "Message poll interval")
	return cmd
}

func badgeCmd() *cobra.Command {
	var idFile string
	cmd := &cobra.Command{
		Use:   "badge",
		Short: "Print how many support replies are unread",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newClient("")
			if err != nil {
				return err
			}
			store, err := visitorStore(idFile)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if badge := client.BadgeText(client.UnreadBadge(ctx, api, store)); badge != "" {
				fmt.Println(badge)
			} else {
				fmt.Println("0")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&idFile, "id-file", "", "Where the visitor id is stored (default in the user config dir)")
	return cmd
}

func visitorStore(path string) (client.VisitorIDStore, error) {
	if path != "" {
		return &client.FileStore{Path: path}, nil
	}
	return client.DefaultFileStore()
}
