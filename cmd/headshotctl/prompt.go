package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/prompt"
)

var promptFlags struct {
	style      string
	background string
	variants   int
}

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the model prompt for a style and background",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := prompt.LookupStyle(promptFlags.style); !ok {
			return fmt.Errorf("unknown style %q; see 'headshotctl catalog'", promptFlags.style)
		}
		if _, ok := prompt.LookupBackground(promptFlags.background); !ok {
			return fmt.Errorf("unknown background %q; see 'headshotctl catalog'", promptFlags.background)
		}

		text, out := prompt.Build(prompt.Options{
			StyleID:      promptFlags.style,
			BackgroundID: promptFlags.background,
			Variants:     promptFlags.variants,
		})

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, text)
		fmt.Fprintf(w, "\ncount=%d quality=%s aspect_ratio=%s\n", out.Count, out.Quality, out.AspectRatio)
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the available styles and backgrounds",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "Styles:")
		for _, o := range prompt.Styles() {
			fmt.Fprintf(w, "  %-13s %s: %s\n", o.ID, o.Name, o.Description)
		}
		fmt.Fprintln(w, "\nBackgrounds:")
		for _, o := range prompt.Backgrounds() {
			fmt.Fprintf(w, "  %-13s %s: %s\n", o.ID, o.Name, o.Description)
		}
	},
}

func init() {
	promptCmd.Flags().StringVarP(&promptFlags.style, "style", "s", "professional", "Style id")
	promptCmd.Flags().StringVarP(&promptFlags.background, "background", "b", "office", "Background id")
	promptCmd.Flags().IntVarP(&promptFlags.variants, "variants", "n", 4, "Number of images requested")
}
