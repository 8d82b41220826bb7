// Command disastersms answers inbound SMS with a summary of current NWS
// alerts, the local forecast, and emergency news.
//
// Usage:
//
//	disastersms serve              # webhook server
//	disastersms collect            # refresh the cache (cron)
//	disastersms summarize          # regenerate the stored summary (cron)
//	disastersms sign URL k=v ...   # compute an X-Twilio-Signature
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/disaster-sms/internal/config"
	"github.com/couchcryptid/disaster-sms/internal/observability"
)

// app carries what every subcommand needs once the root has initialized.
type app struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func main() {
	if err := newRootCmd(&app{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "disastersms",
		Short:         "SMS disaster briefings from NWS and news sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newCollectCmd(a))
	root.AddCommand(newSummarizeCmd(a))
	root.AddCommand(newSignCmd(a))

	return root
}

func (a *app) init() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(cfg)
	return nil
}
