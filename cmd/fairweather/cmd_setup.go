package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/fairweather/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("fairweather setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.LLM.Provider = prompt(scanner, "LLM provider (gemini or openai)", cfg.LLM.Provider)
		cfg.LLM.APIKey = prompt(scanner, "LLM API key", cfg.LLM.APIKey)
		cfg.LLM.Model = prompt(scanner, "LLM model name", cfg.LLM.Model)
		cfg.Weather.APIKey = prompt(scanner, "OpenWeatherMap API key", cfg.Weather.APIKey)
		cfg.Timezone = prompt(scanner, "Timezone", cfg.Timezone)
		cfg.FallbackLocation = prompt(scanner, "Default location", cfg.FallbackLocation)

		cfg.Calendar.Backend = prompt(scanner, "Calendar backend (local or google)", cfg.Calendar.Backend)
		if cfg.Calendar.Backend == "google" {
			cfg.Calendar.CalendarID = prompt(scanner, "Google calendar id", cfg.Calendar.CalendarID)
			cfg.Calendar.AccessToken = prompt(scanner, "Google access token", cfg.Calendar.AccessToken)
		}

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt shows label with its default and returns the trimmed input, or the
// default when the input is empty.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			return input
		}
	}
	return defaultVal
}
