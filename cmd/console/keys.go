package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"llm_console/internal/auth"
	"llm_console/internal/storage"

	"github.com/spf13/cobra"
)

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hash an operator password for ADMIN_PASSWORD_HASH",
		Long: `Hash an operator password with argon2id. The password is read from the
first argument or, when absent, from the first line of standard input.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, args)
			if err != nil {
				return err
			}
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters long")
			}

			hash, err := auth.HashPasswordArgon2(password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func readPassword(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return "", errors.New("no password given")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

func newGenerateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-key",
		Short: "Print a random base64 AES-256 key for ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := storage.GenerateKey(32)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
