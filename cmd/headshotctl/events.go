package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/events"
)

var eventsFlags struct {
	url string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print generation events as they are published",
	Long: `Connect to the NATS server the services publish to and print every
generation event until interrupted. The embedded bus is in-process only, so
this needs NATS_URL (or --url) to point at a real server.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsFlags.url, "url", "", "NATS server URL (default from config)")
}

func runEvents(cmd *cobra.Command, args []string) error {
	url := eventsFlags.url
	if url == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		url = cfg.NATSURL
	}
	if url == "" || url == "embedded" {
		return errors.New("an external NATS server url is required")
	}

	nc, err := nats.Connect(url, nats.Name("headshotctl"))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	out := cmd.OutOrStdout()
	sub, err := events.Subscribe(nc, func(ev events.GenerationEvent) {
		line := fmt.Sprintf("%s %-9s %s owner=%s style=%s background=%s",
			ev.At.Format("15:04:05"), ev.Kind, ev.GenerationID, ev.OwnerID, ev.StyleID, ev.BackgroundID)
		if len(ev.Images) > 0 {
			line += fmt.Sprintf(" images=%d", len(ev.Images))
		}
		if ev.Error != "" {
			line += " error=" + strings.TrimSpace(ev.Error)
		}
		fmt.Fprintln(out, line)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(out, "Listening on %s at %s\n", events.AllSubjects, url)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
