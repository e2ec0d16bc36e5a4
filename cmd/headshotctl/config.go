package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/config"
)

var configFlags struct {
	force bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with the defaults",
	Long: `Write a configuration file with every setting at its default value.

Secrets (GEMINI_API_KEY, TELEGRAM_BOT_TOKEN) are never written; keep them
in the environment or a .env file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath
		if len(args) == 1 {
			path = args[0]
		}

		if _, err := os.Stat(path); err == nil && !configFlags.force {
			return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite", path)
		}

		if err := config.Write(path, config.Defaults()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Config written to: %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration without secrets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configFlags.force, "force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
