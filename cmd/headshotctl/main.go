package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/config"
)

// Version set via ldflags during build
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "headshotctl",
	Short: "Inspect and configure the headshot studio",
	Long: `headshotctl works directly on the headshot studio's data directory.

It lists a user's generations, prints the prompt sent to the model for a
style and background, shows the option catalog, tails generation events
and writes a default configuration file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "", "Config file (default "+config.DefaultPath+")")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(rootFlags.configPath)
}

func main() {
	_ = godotenv.Load()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}
