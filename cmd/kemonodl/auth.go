package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/cookies"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored session cookie",
	Long: `Manage the session cookie used for subscriber-only content.

The cookie is stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation (fallback)

A cookies.txt file in ~/.config/kemono-dl/ also works without storing
anything; see 'kemonodl download --help' for the full lookup order.`,
}

// authSetCmd represents the auth set command
var authSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a session cookie securely",
	Long: `Store the session cookie in the system keychain or an encrypted file.

To get the cookie value:
1. Log into the site in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies
4. Copy the "session" cookie value, or the whole Cookie request header`,
	Args: cobra.NoArgs,
	RunE: runAuthSet,
}

// authClearCmd represents the auth clear command
var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored session cookie",
	Args:  cobra.NoArgs,
	RunE:  runAuthClear,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authClearCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	store, err := cookies.OpenStore()
	if err != nil {
		return fmt.Errorf("no usable secret store: %w", err)
	}

	fmt.Print("Cookie value (hidden as you type): ")
	secret, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read cookie: %w", err)
	}
	if secret == "" {
		return errors.New("empty cookie value")
	}

	// A bare value becomes a session cookie pair
	if !strings.Contains(secret, "=") {
		secret = "session=" + secret
	}

	if err := store.Set(secret); err != nil {
		return fmt.Errorf("failed to store cookie: %w", err)
	}

	fmt.Println("Cookie stored.")
	fmt.Println("Enable it per run with 'cookies.enabled: true' in the config,")
	fmt.Println("or pass --cookie to override it for one download.")
	return nil
}

func runAuthClear(cmd *cobra.Command, args []string) error {
	store, err := cookies.OpenStore()
	if err != nil {
		return fmt.Errorf("no usable secret store: %w", err)
	}

	if err := store.Delete(); err != nil {
		if errors.Is(err, cookies.ErrSecretNotFound) {
			fmt.Println("No stored cookie found.")
			return nil
		}
		return fmt.Errorf("failed to remove cookie: %w", err)
	}

	fmt.Println("Stored cookie removed.")
	return nil
}

// readSecret reads a line from stdin without echoing when attached to a
// terminal
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
