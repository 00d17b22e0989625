package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cr4all/supportservices/services"
)

func operatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage support operators",
	}

	var username, password string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create an operator account",
		Long: `Create an operator who can log in to the admin dashboard.

Without --password the password is read from the terminal, or from the
first line of stdin when it is not a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readPassword(); err != nil {
					return err
				}
			}

			db, closeDB, err := openMigrated(cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			auth := services.NewAuthService(db, &cfg.Auth)
			operator, err := auth.RegisterOperator(cmd.Context(), username, password)
			if errors.Is(err, services.ErrOperatorExists) {
				return fmt.Errorf("operator %q already exists", username)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Created operator %s (id %d)\n", operator.Username, operator.ID)
			return nil
		},
	}
	addCmd.Flags().StringVarP(&username, "username", "u", "", "Operator username")
	addCmd.Flags().StringVarP(&password, "password", "p", "", "Operator password")
	_ = addCmd.MarkFlagRequired("username")

	cmd.AddCommand(addCmd)
	return cmd
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
