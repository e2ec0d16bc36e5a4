package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/auth"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/history"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/records"
)

var historyFlags struct {
	limit int
	json  bool
}

var historyCmd = &cobra.Command{
	Use:   "history <email|user-id>",
	Short: "List a user's recent generations",
	Long: `List a user's most recent generations, newest first.

The argument is either the user's email address or the opaque user id.
Telegram users sign in as <telegram-id>@telegram.invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 0, "Number of generations (default from config)")
	historyCmd.Flags().BoolVar(&historyFlags.json, "json", false, "Print JSON instead of a table")
}

// userID maps an email to the id the local auth provider assigns it.
func userID(arg string) string {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "@") {
		return auth.IdentityFor(arg, "").ID
	}
	return arg
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := records.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	limit := historyFlags.limit
	if limit <= 0 {
		limit = cfg.HistoryLimit
	}
	view := history.New(history.Options{Records: store, Limit: limit})
	entries := view.Recent(cmd.Context(), userID(args[0]))

	out := cmd.OutOrStdout()
	if historyFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No generations found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTYLE\tBACKGROUND\tSTATUS\tIMAGES\tREFERENCES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.StyleName, e.BackgroundName, e.Status, e.TotalImages, e.ReferenceImages)
	}
	return tw.Flush()
}
