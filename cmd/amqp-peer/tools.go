package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxpert/amqp-peer/auth"
	"github.com/maxpert/amqp-peer/config"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for a users file entry",
	Long:  "Print a bcrypt hash for a users file entry. The password is read from stdin when not given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return errors.New("password must not be empty")
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config <path>",
	Short: "Write the default configuration to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.DefaultConfig().Save(args[0]); err != nil {
			return fmt.Errorf("failed to generate config file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration: %s\n", args[0])
		fmt.Fprintln(cmd.OutOrStdout(), "Edit the file and start the peer with: amqp-peer serve --config "+args[0])
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the amqp-peer version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "amqp-peer version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd, generateConfigCmd, versionCmd)
}
