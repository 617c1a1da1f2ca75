package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"advisor/pkg/config"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the encrypted API key store",
	Long: `Keys manages the project's encrypted secrets file. Keys are stored under
their environment variable names (ANTHROPIC_API_KEY, OPENAI_API_KEY,
GEMINI_API_KEY) and encrypted with a password-derived key. Environment
variables always take precedence over the file.`,
}

var keysSetCmd = &cobra.Command{
	Use:   "set <env-var-name>",
	Short: "Add or replace one key in the secrets file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		name := strings.ToUpper(args[0])

		password, err := promptPassword("Secrets password: ")
		if err != nil {
			return err
		}

		secrets := map[string]string{}
		if config.SecretsFileExists(".") {
			secrets, err = config.DecryptSecretsFile(".", password)
			if err != nil {
				return fmt.Errorf("failed to decrypt secrets file: %w", err)
			}
		} else {
			confirm, err := promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if confirm != password {
				return fmt.Errorf("passwords do not match")
			}
		}

		value, err := promptPassword(fmt.Sprintf("Value for %s: ", name))
		if err != nil {
			return err
		}
		if value == "" {
			return fmt.Errorf("empty value")
		}
		secrets[name] = value

		if err := config.EncryptSecretsFile(".", password, secrets); err != nil {
			return fmt.Errorf("failed to write secrets file: %w", err)
		}
		fmt.Printf("stored %s (%d secrets total)\n", name, len(secrets))
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the names stored in the secrets file",
	RunE: func(_ *cobra.Command, _ []string) error {
		if !config.SecretsFileExists(".") {
			return fmt.Errorf("no secrets file found")
		}
		password, err := promptPassword("Secrets password: ")
		if err != nil {
			return err
		}
		secrets, err := config.DecryptSecretsFile(".", password)
		if err != nil {
			return fmt.Errorf("failed to decrypt secrets file: %w", err)
		}

		names := make([]string, 0, len(secrets))
		for name := range secrets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysListCmd)
}

// promptPassword reads a line from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// unlockSecretsIfPresent decrypts the project secrets file into the process
// cache when one exists. Missing file is not an error: keys may come from
// the environment instead.
func unlockSecretsIfPresent() error {
	if !config.SecretsFileExists(".") {
		return nil
	}
	password, err := promptPassword("Secrets password: ")
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(".", password)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets file: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}
