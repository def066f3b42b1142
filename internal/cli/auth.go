package cli

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"relay/internal/config"
	"relay/pkg/logger"
)

// NewAuthCmd creates the auth command.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Manage the API key used against the configured backend.`,
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Configure the backend API key",
		Long: `Store the API key for the configured backend.

The key is written to the relay configuration file with 0600
permissions.`,
		Example: `  # Interactive login (hidden input)
  relay auth login

  # Provide the key directly
  relay auth login --key sk-xxxxx`,
		RunE: runAuthLogin,
	}

	cmd.Flags().StringP("key", "k", "", "API key (if not provided, will prompt)")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API key",
		RunE:  runAuthLogout,
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check authentication status",
		RunE:  runAuthStatus,
	}
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config

	key, _ := cmd.Flags().GetString("key")

	if key == "" {
		fmt.Println("Backend Authentication")
		fmt.Println("----------------------")
		fmt.Println("")
		fmt.Printf("Backend: %s\n", cfg.Backend.BaseURL)
		fmt.Println("")
		fmt.Print("Enter your API key: ")

		keyBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
		key = strings.TrimSpace(string(keyBytes))
		fmt.Println()
	}

	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	cfg.Backend.APIKey = key

	configPath := cliCtx.ConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := config.SaveTo(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println("")
	fmt.Println("✓ API key saved successfully!")
	fmt.Printf("Configuration saved to: %s\n", configPath)

	logger.Info().Msg("API key configured")

	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config

	if cfg.Backend.APIKey == "" {
		fmt.Println("No API key configured.")
		return nil
	}

	cfg.Backend.APIKey = ""

	configPath := cliCtx.ConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := config.SaveTo(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println("✓ API key removed successfully!")
	logger.Info().Msg("API key cleared")

	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config

	fmt.Println("Authentication Status")
	fmt.Println("--------------------")
	fmt.Println("")
	fmt.Printf("Backend: %s\n", cfg.Backend.BaseURL)
	fmt.Printf("Model:   %s\n", cfg.Backend.Model)
	fmt.Println("")

	if cfg.Backend.APIKey == "" {
		fmt.Println("Status: no API key configured")
		fmt.Println("")
		fmt.Println("Run 'relay auth login' to configure one. Local backends")
		fmt.Println("such as Ollama do not require a key.")
		return nil
	}

	fmt.Println("Status: ✓ key configured")
	fmt.Printf("Key:    %s\n", maskKey(cfg.Backend.APIKey))

	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
